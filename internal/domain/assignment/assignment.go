package assignment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Assignment struct {
	ID                   uuid.UUID
	KeyID                uuid.UUID
	HolderID             uuid.UUID
	GrantorID            *uuid.UUID
	AccessType           AccessType
	Status               Status
	Reason               string
	AssignedDate         time.Time
	DueDate              time.Time
	ApprovedAt           *time.Time
	ApprovedBy           *uuid.UUID
	CollectedAt          *time.Time
	CollectedBy          *uuid.UUID
	CollectionVerifiedBy *uuid.UUID
	ReturnedAt           *time.Time
	ReturnedBy           *uuid.UUID
	ReturnVerifiedBy     *uuid.UUID
	ReturnReason         string
	ActualDuration       *time.Duration
	CancelledAt          *time.Time
	CancelledBy          *uuid.UUID
	CancelReason         string
	RemindersSent        int
	LastReminderSent     *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusOverdue   Status = "overdue"
	StatusReturned  Status = "returned"
	StatusCancelled Status = "cancelled"

	errInvalidStatusFmt     = "invalid assignment status: %s"
	errInvalidAccessTypeFmt = "invalid access type: %s"
)

// MaxDurationHours bounds requested and extended durations to ten years.
const MaxDurationHours = 10 * 365 * 24

// Outstanding lists the states that block a new assignment for the same key.
var Outstanding = []Status{StatusPending, StatusActive, StatusOverdue}

// Held lists the states in which the holder physically has the key.
var Held = []Status{StatusActive, StatusOverdue}

var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusOverdue, StatusReturned, StatusCancelled},
	StatusOverdue: {StatusActive, StatusReturned, StatusCancelled},
}

func (s Status) Validate() error {
	switch s {
	case StatusPending, StatusActive, StatusOverdue, StatusReturned, StatusCancelled:
		return nil
	default:
		return fmt.Errorf(errInvalidStatusFmt, s)
	}
}

func (s Status) IsOutstanding() bool {
	return s == StatusPending || s == StatusActive || s == StatusOverdue
}

func (s Status) IsHeld() bool {
	return s == StatusActive || s == StatusOverdue
}

func (s Status) IsTerminal() bool {
	return s == StatusReturned || s == StatusCancelled
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type AccessType string

const (
	AccessPermanent AccessType = "permanent"
	AccessTemporary AccessType = "temporary"
	AccessShared    AccessType = "shared"
)

func (t AccessType) Validate() error {
	switch t {
	case AccessPermanent, AccessTemporary, AccessShared:
		return nil
	default:
		return fmt.Errorf(errInvalidAccessTypeFmt, t)
	}
}

// Evaluate returns a copy of the assignment with overdue applied for now.
// Persisted rows are not touched.
func (a Assignment) Evaluate(now time.Time) Assignment {
	if a.Status == StatusActive && now.After(a.DueDate) {
		a.Status = StatusOverdue
	}
	return a
}

// DaysOverdue returns the number of whole days past the due date.
func (a Assignment) DaysOverdue(now time.Time) int {
	if !now.After(a.DueDate) {
		return 0
	}
	return int(now.Sub(a.DueDate) / (24 * time.Hour))
}

type ListAssignmentsFilter struct {
	KeyID    *uuid.UUID
	HolderID *uuid.UUID
	Statuses []Status
	Limit    int
	Offset   int
}
