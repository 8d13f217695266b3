package txlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/repository"
	"key-service/internal/repository/sqlite"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)

func newLog(t *testing.T, opts ...Option) (*Log, *sqlite.Store, uuid.UUID) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "txlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	k := &key.Key{
		ID:        uuid.New(),
		Name:      "Archive",
		Status:    key.StatusAvailable,
		CreatedBy: uuid.New(),
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
	require.NoError(t, store.CreateKey(context.Background(), k))

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(store, opts...), store, k.ID
}

func TestAppendDefaults(t *testing.T) {
	log, store, keyID := newLog(t)
	ctx := context.Background()
	actor := uuid.New()

	tx, err := log.Append(ctx, store, Entry{Type: transaction.TypeKeyCreated, KeyID: keyID, ActorID: actor})
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), tx.ID.Version())
	assert.Equal(t, "Key registered", tx.Details)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.True(t, tx.CreatedAt.Equal(fixedNow))

	got, err := log.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, actor, got.ActorID)
}

func TestOutcomeTransitions(t *testing.T) {
	log, store, keyID := newLog(t, WithMaxRetries(2))
	ctx := context.Background()

	tx, err := log.Append(ctx, store, Entry{
		Type:    transaction.TypeOverdueReminder,
		KeyID:   keyID,
		ActorID: transaction.SystemActorID,
		Status:  transaction.StatusPending,
	})
	require.NoError(t, err)
	assert.False(t, log.Retryable(tx))

	require.NoError(t, log.MarkFailed(ctx, store, tx, errors.New("bounced")))
	assert.Equal(t, 1, tx.RetryCount)
	assert.True(t, log.Retryable(tx))

	require.NoError(t, log.MarkFailed(ctx, store, tx, errors.New("bounced")))
	assert.False(t, log.Retryable(tx))

	stored, err := log.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, stored.Status)
	assert.Equal(t, "bounced", stored.ErrorMessage)
	assert.Equal(t, 2, stored.RetryCount)

	require.NoError(t, log.MarkCancelled(ctx, store, tx, "holder returned the key"))
	stored, err = log.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCancelled, stored.Status)
}

func TestBatchRollsBackWithTransaction(t *testing.T) {
	log, store, keyID := newLog(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(q repository.Queries) error {
		batch := log.Batch(q)
		if _, err := batch.Record(ctx, Entry{Type: transaction.TypeKeyStatusChanged, KeyID: keyID}); err != nil {
			return err
		}
		assert.Len(t, batch.Recorded(), 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	txs, err := log.Query(ctx, transaction.ListTransactionsFilter{KeyID: &keyID})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestPublishFansOut(t *testing.T) {
	var first, second []transaction.Type
	log, store, keyID := newLog(t,
		WithPublisher(PublisherFunc(func(tx *transaction.Transaction) { first = append(first, tx.Type) })),
		WithPublisher(PublisherFunc(func(tx *transaction.Transaction) { second = append(second, tx.Type) })),
	)

	tx, err := log.Append(context.Background(), store, Entry{Type: transaction.TypeKeyRetired, KeyID: keyID})
	require.NoError(t, err)
	log.Publish(tx)

	assert.Equal(t, []transaction.Type{transaction.TypeKeyRetired}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, DefaultMaxRetries, log.MaxRetries())
}
