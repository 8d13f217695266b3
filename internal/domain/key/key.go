package key

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Key struct {
	ID                    uuid.UUID
	Name                  string
	Department            string
	Location              string
	RequiresApproval      bool
	MaxAssignmentDuration time.Duration
	Status                Status
	Override              Status
	RetiredAt             *time.Time
	CreatedBy             uuid.UUID
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Status is the derived holder status of a key.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusAssigned    Status = "assigned"
	StatusMaintenance Status = "maintenance"
	StatusLost        Status = "lost"

	errInvalidStatusFmt = "invalid key status: %s"
)

// Validate validates the status
func (s Status) Validate() error {
	switch s {
	case StatusAvailable, StatusAssigned, StatusMaintenance, StatusLost:
		return nil
	default:
		return fmt.Errorf(errInvalidStatusFmt, s)
	}
}

// IsOverride reports whether s is an administrative override.
func (s Status) IsOverride() bool {
	return s == StatusMaintenance || s == StatusLost
}

// Availability is the externally reported view of a key.
type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityHeld        Availability = "held"
	AvailabilityMaintenance Availability = "maintenance"
	AvailabilityLost        Availability = "lost"
)

func (k *Key) IsRetired() bool {
	return k.RetiredAt != nil
}

// CapDuration limits d to the key's maximum assignment duration when one is set.
func (k *Key) CapDuration(d time.Duration) time.Duration {
	if k.MaxAssignmentDuration > 0 && d > k.MaxAssignmentDuration {
		return k.MaxAssignmentDuration
	}
	return d
}

type CreateKeyInput struct {
	Name                  string
	Department            string
	Location              string
	RequiresApproval      bool
	MaxAssignmentDuration time.Duration
	CreatedBy             uuid.UUID
}

type ListKeysFilter struct {
	Department     string
	Status         Status
	IncludeRetired bool
	Limit          int
	Offset         int
}
