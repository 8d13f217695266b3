package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDatabaseURLEnv = "TEST_DATABASE_URL"

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// openTestDB connects to TEST_DATABASE_URL and applies migrations. Tests are
// skipped when it is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseURLEnv)
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)

	db := NewFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	// Applying twice is a no-op.
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func seedKey(t *testing.T, db *DB, department string) *key.Key {
	t.Helper()
	k := &key.Key{
		ID:         uuid.New(),
		Name:       "Server room",
		Department: department,
		Location:   "B2",
		Status:     key.StatusAvailable,
		CreatedBy:  uuid.New(),
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
	require.NoError(t, db.CreateKey(context.Background(), k))
	return k
}

func newAssignment(keyID uuid.UUID, status assignment.Status) *assignment.Assignment {
	return &assignment.Assignment{
		ID:           uuid.New(),
		KeyID:        keyID,
		HolderID:     uuid.New(),
		AccessType:   assignment.AccessTemporary,
		Status:       status,
		AssignedDate: baseTime,
		DueDate:      baseTime.Add(8 * time.Hour),
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
}

func TestKeyRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	department := "dept-" + uuid.NewString()
	k := seedKey(t, db, department)

	got, err := db.GetKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, k.Name, got.Name)
	assert.True(t, got.CreatedAt.Equal(baseTime))

	keys, err := db.ListKeys(ctx, key.ListKeysFilter{Department: department})
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	_, err = db.GetKey(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestOutstandingAssignmentIsUnique(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	k := seedKey(t, db, "IT")

	first := newAssignment(k.ID, assignment.StatusPending)
	require.NoError(t, db.InsertAssignment(ctx, first))

	err := db.InsertAssignment(ctx, newAssignment(k.ID, assignment.StatusPending))
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	first.Status = assignment.StatusCancelled
	first.UpdatedAt = baseTime.Add(time.Minute)
	require.NoError(t, db.UpdateAssignment(ctx, first, assignment.StatusPending))

	err = db.UpdateAssignment(ctx, first, assignment.StatusPending)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))

	require.NoError(t, db.InsertAssignment(ctx, newAssignment(k.ID, assignment.StatusPending)))
}

func TestWithinTxRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	k := seedKey(t, db, "IT")
	boom := errors.New("boom")

	err := db.WithinTx(ctx, func(q repository.Queries) error {
		if err := q.AppendTransaction(ctx, &transaction.Transaction{
			ID:        uuid.New(),
			Type:      transaction.TypeKeyStatusChanged,
			KeyID:     k.ID,
			Details:   "rolled back",
			Status:    transaction.StatusCompleted,
			CreatedAt: baseTime,
			UpdatedAt: baseTime,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	txs, err := db.ListTransactions(ctx, transaction.ListTransactionsFilter{KeyID: &k.ID})
	require.NoError(t, err)
	assert.Empty(t, txs)
}
