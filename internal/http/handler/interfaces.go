package handler

import (
	"context"
	"net/http"

	"key-service/internal/archive"
	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/handover"
	"key-service/internal/realtime"

	"github.com/google/uuid"
)

// Consumer-side interfaces defined by handlers
// Each interface contains only the methods needed by the specific handler

// KeyHandler interfaces
type KeyService interface {
	CreateKey(ctx context.Context, in key.CreateKeyInput) (*key.Key, error)
	GetKey(ctx context.Context, id uuid.UUID) (*key.Key, error)
	ListKeys(ctx context.Context, filter key.ListKeysFilter) ([]*key.Key, error)
	SetAdministrativeStatus(ctx context.Context, keyID uuid.UUID, status key.Status, actorID uuid.UUID) (*key.Key, error)
	RetireKey(ctx context.Context, keyID uuid.UUID, actorID uuid.UUID) (*key.Key, error)
}

// AssignmentHandler interfaces
type AssignmentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error)
	List(ctx context.Context, filter assignment.ListAssignmentsFilter) ([]*assignment.Assignment, error)
}

type DelegationReader interface {
	Get(ctx context.Context, id uuid.UUID) (*delegation.Delegation, error)
	List(ctx context.Context, filter delegation.ListDelegationsFilter) ([]*delegation.Delegation, error)
}

type OverdueLister interface {
	ListOverdue(ctx context.Context) ([]*assignment.Assignment, error)
}

// TransactionHandler interfaces
type TransactionQuerier interface {
	Query(ctx context.Context, filter transaction.ListTransactionsFilter) ([]*transaction.Transaction, error)
}

type TransactionStreamer interface {
	Serve(w http.ResponseWriter, r *http.Request, filter realtime.Filter) error
}

type TransactionArchiver interface {
	Export(ctx context.Context, req archive.Request) (*archive.Result, error)
}

// OperationHandler interfaces
type OperationDispatcher interface {
	Dispatch(ctx context.Context, op handover.Operation, actor handover.Actor, payload []byte) (any, error)
}
