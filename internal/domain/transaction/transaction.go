package transaction

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is an append-only record of a state change.
type Transaction struct {
	ID           uuid.UUID
	Type         Type
	KeyID        uuid.UUID
	AssignmentID *uuid.UUID
	DelegationID *uuid.UUID
	ActorID      uuid.UUID
	Details      string
	Status       Status
	ErrorMessage string
	RetryCount   int
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Type string

const (
	TypeRequested        Type = "requested"
	TypeApproved         Type = "approved"
	TypeCollected        Type = "collected"
	TypeReturned         Type = "returned"
	TypeForceReturned    Type = "force_returned"
	TypeCancelled        Type = "cancelled"
	TypeExtended         Type = "extended"
	TypeMarkedOverdue    Type = "marked_overdue"
	TypeOverdueReminder  Type = "overdue_reminder"
	TypeShared           Type = "shared"
	TypeShareRevoked     Type = "share_revoked"
	TypeShareCancelled   Type = "share_cancelled"
	TypeShareExpired     Type = "share_expired"
	TypeKeyCreated       Type = "key_created"
	TypeKeyStatusChanged Type = "key_status_changed"
	TypeKeyRetired       Type = "key_retired"
)

var defaultDetails = map[Type]string{
	TypeRequested:        "Key requested",
	TypeApproved:         "Key request approved",
	TypeCollected:        "Key collected",
	TypeReturned:         "Key returned",
	TypeForceReturned:    "Key force returned by administrator",
	TypeCancelled:        "Assignment cancelled",
	TypeExtended:         "Assignment deadline extended",
	TypeMarkedOverdue:    "Assignment marked overdue",
	TypeOverdueReminder:  "Overdue reminder sent",
	TypeShared:           "Key shared",
	TypeShareRevoked:     "Key sharing revoked",
	TypeShareCancelled:   "Key sharing cancelled",
	TypeShareExpired:     "Key sharing expired",
	TypeKeyCreated:       "Key registered",
	TypeKeyStatusChanged: "Key status changed",
	TypeKeyRetired:       "Key retired",
}

// DefaultDetails returns the human-readable description used when none is supplied.
func DefaultDetails(t Type) string {
	if d, ok := defaultDetails[t]; ok {
		return d
	}
	return string(t)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type ListTransactionsFilter struct {
	KeyID        *uuid.UUID
	AssignmentID *uuid.UUID
	DelegationID *uuid.UUID
	ActorID      *uuid.UUID
	Types        []Type
	Statuses     []Status
	Since        *time.Time
	Until        *time.Time
	MaxRetries   *int
	Limit        int
	Offset       int
}

// SystemActorID marks entries written by background sweeps.
var SystemActorID = uuid.Nil
