package delegation

import (
	"time"

	"github.com/google/uuid"
)

// Delegation is a time-boxed sharing grant layered on an active assignment.
type Delegation struct {
	ID           uuid.UUID
	KeyID        uuid.UUID
	AssignmentID uuid.UUID
	DelegatorID  uuid.UUID
	DelegateID   uuid.UUID
	Message      string
	Permissions  Permissions
	Status       Status
	SharedDate   time.Time
	ExpiresAt    time.Time
	EndedAt      *time.Time
	EndedBy      *uuid.UUID
	EndReason    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MaxDurationHours bounds how long a grant may run.
const MaxDurationHours = 10 * 365 * 24

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusRevoked   Status = "revoked"
	StatusCancelled Status = "cancelled"
)

type Permissions struct {
	CanCollect  bool `json:"canCollect"`
	CanReturn   bool `json:"canReturn"`
	CanDelegate bool `json:"canDelegate"`
}

// DefaultPermissions grants collect and return but not re-delegation.
func DefaultPermissions() Permissions {
	return Permissions{CanCollect: true, CanReturn: true, CanDelegate: false}
}

// Evaluate returns a copy with expiry applied for now.
func (d Delegation) Evaluate(now time.Time) Delegation {
	if d.Status == StatusActive && now.After(d.ExpiresAt) {
		d.Status = StatusExpired
	}
	return d
}

func (d Delegation) IsActive(now time.Time) bool {
	return d.Evaluate(now).Status == StatusActive
}

// Involves reports whether actor is the delegator or the delegate.
func (d Delegation) Involves(actor uuid.UUID) bool {
	return d.DelegatorID == actor || d.DelegateID == actor
}

type ListDelegationsFilter struct {
	KeyID        *uuid.UUID
	AssignmentID *uuid.UUID
	DelegatorID  *uuid.UUID
	DelegateID   *uuid.UUID
	Statuses     []Status
	Limit        int
	Offset       int
}
