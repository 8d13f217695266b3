package repository

import "context"

// Queries is the full data access surface. It is satisfied both by a store
// and by the transaction handle passed to WithinTx.
type Queries interface {
	KeyRepository
	AssignmentRepository
	DelegationRepository
	TransactionRepository
}

// Store is implemented by each persistence engine.
type Store interface {
	Queries
	// WithinTx runs fn in a single database transaction. fn must use q for
	// every query; the transaction commits only when fn returns nil.
	WithinTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
