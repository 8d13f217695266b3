// Package testkit assembles the key handover services over a throwaway
// SQLite store for package tests.
package testkit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/ledger"
	"key-service/internal/overdue"
	"key-service/internal/proof"
	"key-service/internal/registry"
	"key-service/internal/repository/sqlite"
	"key-service/internal/sharing"
	"key-service/internal/txlog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// BaseTime is the default starting instant of a harness clock.
var BaseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock safe for concurrent reads.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Published collects transactions handed to subscribers.
type Published struct {
	mu  sync.Mutex
	txs []*transaction.Transaction
}

func (p *Published) Publish(t *transaction.Transaction) {
	p.mu.Lock()
	p.txs = append(p.txs, t)
	p.mu.Unlock()
}

func (p *Published) Types() []transaction.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transaction.Type, 0, len(p.txs))
	for _, t := range p.txs {
		out = append(out, t.Type)
	}
	return out
}

// NotifierFunc adapts a function to overdue.Notifier.
type NotifierFunc func(ctx context.Context, r overdue.Reminder) error

func (f NotifierFunc) NotifyOverdue(ctx context.Context, r overdue.Reminder) error {
	return f(ctx, r)
}

type Harness struct {
	Store     *sqlite.Store
	Clock     *Clock
	Log       *txlog.Log
	Published *Published
	Registry  *registry.Registry
	Verifier  *proof.Verifier
	Ledger    *ledger.Ledger
	Sharing   *sharing.Manager
	Monitor   *overdue.Monitor
	// Notify is called for every reminder; nil delivers successfully.
	Notify func(ctx context.Context, r overdue.Reminder) error
}

// New builds every service over a fresh database in t.TempDir.
func New(t *testing.T) *Harness {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &Harness{
		Store:     store,
		Clock:     NewClock(BaseTime),
		Published: &Published{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := h.Clock.Now

	h.Log = txlog.New(store,
		txlog.WithClock(now),
		txlog.WithLogger(logger),
		txlog.WithPublisher(h.Published),
	)
	h.Registry = registry.New(store, h.Log, now, logger)
	h.Verifier = proof.NewVerifier(proof.DefaultTTL, now)
	h.Sharing = sharing.New(store, h.Log, now, logger)
	h.Ledger = ledger.New(ledger.Deps{
		Store:    store,
		Registry: h.Registry,
		Verifier: h.Verifier,
		TxLog:    h.Log,
		Closer:   h.Sharing,
		Now:      now,
		Logger:   logger,
	})
	h.Monitor = overdue.New(overdue.Deps{
		Store: store,
		TxLog: h.Log,
		Notifier: NotifierFunc(func(ctx context.Context, r overdue.Reminder) error {
			if h.Notify == nil {
				return nil
			}
			return h.Notify(ctx, r)
		}),
		Expirer: h.Sharing,
		Now:     now,
		Logger:  logger,
	})
	return h
}

// Key registers a key with the given options applied to the input.
func (h *Harness) Key(t *testing.T, opts ...func(*key.CreateKeyInput)) *key.Key {
	t.Helper()
	in := key.CreateKeyInput{
		Name:       "Server room",
		Department: "IT",
		Location:   "B2",
		CreatedBy:  uuid.New(),
	}
	for _, opt := range opts {
		opt(&in)
	}
	k, err := h.Registry.CreateKey(context.Background(), in)
	require.NoError(t, err)
	return k
}

// Request opens a pending assignment for a new holder.
func (h *Harness) Request(t *testing.T, keyID uuid.UUID, hours int) *assignment.Assignment {
	t.Helper()
	a, err := h.Ledger.Request(context.Background(), ledger.RequestInput{
		KeyID:         keyID,
		HolderID:      uuid.New(),
		DurationHours: hours,
	})
	require.NoError(t, err)
	return a
}

// Token mints and encodes a proof for the assignment holder.
func (h *Harness) Token(t *testing.T, assignmentID uuid.UUID, action proof.Action) string {
	t.Helper()
	return h.TokenFor(t, assignmentID, uuid.Nil, action)
}

// TokenFor mints and encodes a proof presented by presenter.
func (h *Harness) TokenFor(t *testing.T, assignmentID, presenter uuid.UUID, action proof.Action) string {
	t.Helper()
	tok, err := h.Ledger.MintProof(context.Background(), ledger.MintProofInput{
		AssignmentID: assignmentID,
		Action:       action,
		HolderID:     presenter,
	})
	require.NoError(t, err)
	raw, err := tok.Encode()
	require.NoError(t, err)
	return raw
}

// Held requests and collects an assignment, returning it active.
func (h *Harness) Held(t *testing.T, keyID uuid.UUID, hours int) *assignment.Assignment {
	t.Helper()
	a := h.Request(t, keyID, hours)
	out, err := h.Ledger.Collect(context.Background(), a.ID, h.Token(t, a.ID, proof.ActionCollection), uuid.New())
	require.NoError(t, err)
	return out
}

// Transactions lists the log entries recorded for an assignment, newest first.
func (h *Harness) Transactions(t *testing.T, assignmentID uuid.UUID) []*transaction.Transaction {
	t.Helper()
	txs, err := h.Log.Query(context.Background(), transaction.ListTransactionsFilter{AssignmentID: &assignmentID})
	require.NoError(t, err)
	return txs
}
