// Package view renders domain records in their JSON wire shape.
package view

import (
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/registry"

	"github.com/google/uuid"
)

type Key struct {
	ID                 uuid.UUID        `json:"id"`
	Name               string           `json:"name"`
	Department         string           `json:"department,omitempty"`
	Location           string           `json:"location,omitempty"`
	RequiresApproval   bool             `json:"requiresApproval"`
	MaxAssignmentHours int              `json:"maxAssignmentHours,omitempty"`
	Status             key.Status       `json:"status"`
	Availability       key.Availability `json:"availability"`
	RetiredAt          *time.Time       `json:"retiredAt,omitempty"`
	CreatedBy          uuid.UUID        `json:"createdBy"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

type Assignment struct {
	ID                   uuid.UUID             `json:"id"`
	KeyID                uuid.UUID             `json:"keyId"`
	HolderID             uuid.UUID             `json:"holderId"`
	GrantorID            *uuid.UUID            `json:"grantorId,omitempty"`
	AccessType           assignment.AccessType `json:"accessType"`
	Status               assignment.Status     `json:"status"`
	Reason               string                `json:"reason,omitempty"`
	AssignedDate         time.Time             `json:"assignedDate"`
	DueDate              time.Time             `json:"dueDate"`
	ApprovedAt           *time.Time            `json:"approvedAt,omitempty"`
	ApprovedBy           *uuid.UUID            `json:"approvedBy,omitempty"`
	CollectedAt          *time.Time            `json:"collectedAt,omitempty"`
	CollectedBy          *uuid.UUID            `json:"collectedBy,omitempty"`
	CollectionVerifiedBy *uuid.UUID            `json:"collectionVerifiedBy,omitempty"`
	ReturnedAt           *time.Time            `json:"returnedAt,omitempty"`
	ReturnedBy           *uuid.UUID            `json:"returnedBy,omitempty"`
	ReturnVerifiedBy     *uuid.UUID            `json:"returnVerifiedBy,omitempty"`
	ReturnReason         string                `json:"returnReason,omitempty"`
	ActualDurationMs     *int64                `json:"actualDurationMs,omitempty"`
	CancelledAt          *time.Time            `json:"cancelledAt,omitempty"`
	CancelledBy          *uuid.UUID            `json:"cancelledBy,omitempty"`
	CancelReason         string                `json:"cancelReason,omitempty"`
	RemindersSent        int                   `json:"remindersSent"`
	LastReminderSent     *time.Time            `json:"lastReminderSent,omitempty"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
}

type Delegation struct {
	ID           uuid.UUID              `json:"id"`
	KeyID        uuid.UUID              `json:"keyId"`
	AssignmentID uuid.UUID              `json:"assignmentId"`
	DelegatorID  uuid.UUID              `json:"delegatorId"`
	DelegateID   uuid.UUID              `json:"delegateId"`
	Message      string                 `json:"message,omitempty"`
	Permissions  delegation.Permissions `json:"permissions"`
	Status       delegation.Status      `json:"status"`
	SharedDate   time.Time              `json:"sharedDate"`
	ExpiresAt    time.Time              `json:"expiresAt"`
	EndedAt      *time.Time             `json:"endedAt,omitempty"`
	EndedBy      *uuid.UUID             `json:"endedBy,omitempty"`
	EndReason    string                 `json:"endReason,omitempty"`
}

type Transaction struct {
	ID           uuid.UUID          `json:"id"`
	Type         transaction.Type   `json:"type"`
	KeyID        uuid.UUID          `json:"keyId"`
	AssignmentID *uuid.UUID         `json:"assignmentId,omitempty"`
	DelegationID *uuid.UUID         `json:"delegationId,omitempty"`
	ActorID      uuid.UUID          `json:"actorId"`
	Details      string             `json:"details"`
	Status       transaction.Status `json:"status"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	RetryCount   int                `json:"retryCount"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

func FromKey(k *key.Key) Key {
	return Key{
		ID:                 k.ID,
		Name:               k.Name,
		Department:         k.Department,
		Location:           k.Location,
		RequiresApproval:   k.RequiresApproval,
		MaxAssignmentHours: int(k.MaxAssignmentDuration / time.Hour),
		Status:             k.Status,
		Availability:       registry.Availability(k),
		RetiredAt:          k.RetiredAt,
		CreatedBy:          k.CreatedBy,
		CreatedAt:          k.CreatedAt,
		UpdatedAt:          k.UpdatedAt,
	}
}

func FromAssignment(a *assignment.Assignment) Assignment {
	out := Assignment{
		ID:                   a.ID,
		KeyID:                a.KeyID,
		HolderID:             a.HolderID,
		GrantorID:            a.GrantorID,
		AccessType:           a.AccessType,
		Status:               a.Status,
		Reason:               a.Reason,
		AssignedDate:         a.AssignedDate,
		DueDate:              a.DueDate,
		ApprovedAt:           a.ApprovedAt,
		ApprovedBy:           a.ApprovedBy,
		CollectedAt:          a.CollectedAt,
		CollectedBy:          a.CollectedBy,
		CollectionVerifiedBy: a.CollectionVerifiedBy,
		ReturnedAt:           a.ReturnedAt,
		ReturnedBy:           a.ReturnedBy,
		ReturnVerifiedBy:     a.ReturnVerifiedBy,
		ReturnReason:         a.ReturnReason,
		CancelledAt:          a.CancelledAt,
		CancelledBy:          a.CancelledBy,
		CancelReason:         a.CancelReason,
		RemindersSent:        a.RemindersSent,
		LastReminderSent:     a.LastReminderSent,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
	if a.ActualDuration != nil {
		ms := a.ActualDuration.Milliseconds()
		out.ActualDurationMs = &ms
	}
	return out
}

func FromDelegation(d *delegation.Delegation) Delegation {
	return Delegation{
		ID:           d.ID,
		KeyID:        d.KeyID,
		AssignmentID: d.AssignmentID,
		DelegatorID:  d.DelegatorID,
		DelegateID:   d.DelegateID,
		Message:      d.Message,
		Permissions:  d.Permissions,
		Status:       d.Status,
		SharedDate:   d.SharedDate,
		ExpiresAt:    d.ExpiresAt,
		EndedAt:      d.EndedAt,
		EndedBy:      d.EndedBy,
		EndReason:    d.EndReason,
	}
}

func FromTransaction(t *transaction.Transaction) Transaction {
	return Transaction{
		ID:           t.ID,
		Type:         t.Type,
		KeyID:        t.KeyID,
		AssignmentID: t.AssignmentID,
		DelegationID: t.DelegationID,
		ActorID:      t.ActorID,
		Details:      t.Details,
		Status:       t.Status,
		ErrorMessage: t.ErrorMessage,
		RetryCount:   t.RetryCount,
		Metadata:     t.Metadata,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func Keys(ks []*key.Key) []Key {
	out := make([]Key, 0, len(ks))
	for _, k := range ks {
		out = append(out, FromKey(k))
	}
	return out
}

func Assignments(as []*assignment.Assignment) []Assignment {
	out := make([]Assignment, 0, len(as))
	for _, a := range as {
		out = append(out, FromAssignment(a))
	}
	return out
}

func Delegations(ds []*delegation.Delegation) []Delegation {
	out := make([]Delegation, 0, len(ds))
	for _, d := range ds {
		out = append(out, FromDelegation(d))
	}
	return out
}

func Transactions(ts []*transaction.Transaction) []Transaction {
	out := make([]Transaction, 0, len(ts))
	for _, t := range ts {
		out = append(out, FromTransaction(t))
	}
	return out
}

// Render converts an operation result into its wire shape. Values without a
// dedicated view are returned unchanged.
func Render(v any) any {
	switch r := v.(type) {
	case *key.Key:
		return FromKey(r)
	case *assignment.Assignment:
		return FromAssignment(r)
	case *delegation.Delegation:
		return FromDelegation(r)
	case *transaction.Transaction:
		return FromTransaction(r)
	default:
		return v
	}
}
