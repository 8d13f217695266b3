package repository

import (
	"context"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"

	"github.com/google/uuid"
)

// KeyRepository defines key data access operations
type KeyRepository interface {
	CreateKey(ctx context.Context, k *key.Key) error
	GetKey(ctx context.Context, id uuid.UUID) (*key.Key, error)
	// GetKeyForUpdate locks the key row for the rest of the transaction where the engine supports it.
	GetKeyForUpdate(ctx context.Context, id uuid.UUID) (*key.Key, error)
	ListKeys(ctx context.Context, filter key.ListKeysFilter) ([]*key.Key, error)
	// UpdateKeyState persists status, override, retired_at and updated_at.
	UpdateKeyState(ctx context.Context, k *key.Key) error
}

// AssignmentRepository defines assignment data access operations
type AssignmentRepository interface {
	// InsertAssignment fails with a Conflict error when the key already has an outstanding assignment.
	InsertAssignment(ctx context.Context, a *assignment.Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error)
	GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error)
	// UpdateAssignment writes a only if its persisted status is one of expected,
	// returning an InvalidState error otherwise.
	UpdateAssignment(ctx context.Context, a *assignment.Assignment, expected ...assignment.Status) error
	ListAssignments(ctx context.Context, filter assignment.ListAssignmentsFilter) ([]*assignment.Assignment, error)
	// ListOverdueCandidates returns persisted overdue rows and active rows due before now.
	ListOverdueCandidates(ctx context.Context, now time.Time) ([]*assignment.Assignment, error)
}

// DelegationRepository defines delegation data access operations
type DelegationRepository interface {
	// InsertDelegation fails with a Conflict error on a duplicate active grant.
	InsertDelegation(ctx context.Context, d *delegation.Delegation) error
	GetDelegation(ctx context.Context, id uuid.UUID) (*delegation.Delegation, error)
	GetDelegationForUpdate(ctx context.Context, id uuid.UUID) (*delegation.Delegation, error)
	UpdateDelegation(ctx context.Context, d *delegation.Delegation, expected ...delegation.Status) error
	ListDelegations(ctx context.Context, filter delegation.ListDelegationsFilter) ([]*delegation.Delegation, error)
	// ListLapsedDelegations returns rows still stored as active whose expiry is before now.
	ListLapsedDelegations(ctx context.Context, now time.Time) ([]*delegation.Delegation, error)
}

// TransactionRepository defines transaction log data access operations
type TransactionRepository interface {
	AppendTransaction(ctx context.Context, t *transaction.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	// UpdateTransactionOutcome persists status, error_message, retry_count and updated_at.
	UpdateTransactionOutcome(ctx context.Context, t *transaction.Transaction) error
	ListTransactions(ctx context.Context, filter transaction.ListTransactionsFilter) ([]*transaction.Transaction, error)
}
