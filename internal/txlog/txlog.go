// Package txlog is the append-only transaction log. Entries are written inside
// the caller's database transaction and published to subscribers after commit.
package txlog

import (
	"context"
	"log/slog"
	"time"

	"key-service/internal/domain/transaction"
	"key-service/internal/repository"

	"github.com/google/uuid"
)

// DefaultMaxRetries bounds redelivery of failed entries.
const DefaultMaxRetries = 3

// Publisher receives committed transactions. Implementations must not block.
type Publisher interface {
	Publish(t *transaction.Transaction)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(t *transaction.Transaction)

func (f PublisherFunc) Publish(t *transaction.Transaction) { f(t) }

// Entry describes a transaction to append.
type Entry struct {
	Type         transaction.Type
	KeyID        uuid.UUID
	AssignmentID *uuid.UUID
	DelegationID *uuid.UUID
	ActorID      uuid.UUID
	Details      string
	// Status defaults to completed.
	Status   transaction.Status
	Metadata map[string]any
}

type Log struct {
	store      repository.Store
	now        func() time.Time
	logger     *slog.Logger
	maxRetries int
	publishers []Publisher
}

type Option func(*Log)

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func WithMaxRetries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(l *Log) { l.publishers = append(l.publishers, p) }
}

func New(store repository.Store, opts ...Option) *Log {
	l := &Log{
		store:      store,
		now:        time.Now,
		logger:     slog.Default(),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) MaxRetries() int {
	return l.maxRetries
}

// Append writes one entry through q.
func (l *Log) Append(ctx context.Context, q repository.TransactionRepository, e Entry) (*transaction.Transaction, error) {
	now := l.now()
	t := &transaction.Transaction{
		ID:           uuid.Must(uuid.NewV7()),
		Type:         e.Type,
		KeyID:        e.KeyID,
		AssignmentID: e.AssignmentID,
		DelegationID: e.DelegationID,
		ActorID:      e.ActorID,
		Details:      e.Details,
		Status:       e.Status,
		Metadata:     e.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Details == "" {
		t.Details = transaction.DefaultDetails(t.Type)
	}
	if t.Status == "" {
		t.Status = transaction.StatusCompleted
	}

	if err := q.AppendTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// MarkCompleted records a successful delivery for a pending or failed entry.
func (l *Log) MarkCompleted(ctx context.Context, q repository.TransactionRepository, t *transaction.Transaction) error {
	t.Status = transaction.StatusCompleted
	t.ErrorMessage = ""
	t.UpdatedAt = l.now()
	return q.UpdateTransactionOutcome(ctx, t)
}

// MarkFailed records a failed delivery and bumps the retry counter.
func (l *Log) MarkFailed(ctx context.Context, q repository.TransactionRepository, t *transaction.Transaction, cause error) error {
	t.Status = transaction.StatusFailed
	if cause != nil {
		t.ErrorMessage = cause.Error()
	}
	t.RetryCount++
	t.UpdatedAt = l.now()
	return q.UpdateTransactionOutcome(ctx, t)
}

// MarkCancelled records that a pending or failed entry will not be delivered.
func (l *Log) MarkCancelled(ctx context.Context, q repository.TransactionRepository, t *transaction.Transaction, reason string) error {
	t.Status = transaction.StatusCancelled
	t.ErrorMessage = reason
	t.UpdatedAt = l.now()
	return q.UpdateTransactionOutcome(ctx, t)
}

// Retryable reports whether a failed entry may be attempted again.
func (l *Log) Retryable(t *transaction.Transaction) bool {
	return t.Status == transaction.StatusFailed && t.RetryCount < l.maxRetries
}

func (l *Log) Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return l.store.GetTransaction(ctx, id)
}

func (l *Log) Query(ctx context.Context, filter transaction.ListTransactionsFilter) ([]*transaction.Transaction, error) {
	return l.store.ListTransactions(ctx, filter)
}

// Publish fans committed transactions out to subscribers.
func (l *Log) Publish(txs ...*transaction.Transaction) {
	for _, t := range txs {
		for _, p := range l.publishers {
			p.Publish(t)
		}
		l.logger.Debug("transaction recorded",
			slog.String("id", t.ID.String()),
			slog.String("type", string(t.Type)),
			slog.String("key_id", t.KeyID.String()),
			slog.String("status", string(t.Status)),
		)
	}
}

// Batch collects entries appended within one database transaction.
type Batch struct {
	log      *Log
	q        repository.TransactionRepository
	recorded []*transaction.Transaction
}

func (l *Log) Batch(q repository.TransactionRepository) *Batch {
	return &Batch{log: l, q: q}
}

func (b *Batch) Record(ctx context.Context, e Entry) (*transaction.Transaction, error) {
	t, err := b.log.Append(ctx, b.q, e)
	if err != nil {
		return nil, err
	}
	b.recorded = append(b.recorded, t)
	return t, nil
}

func (b *Batch) Recorded() []*transaction.Transaction {
	return b.recorded
}
