package ledger_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/ledger"
	"key-service/internal/proof"
	"key-service/internal/sharing"
	"key-service/internal/testkit"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typesOf(txs []*transaction.Transaction) []transaction.Type {
	out := make([]transaction.Type, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		out = append(out, txs[i].Type)
	}
	return out
}

func TestRequestValidation(t *testing.T) {
	h := testkit.New(t)
	k := h.Key(t)

	tests := []struct {
		name string
		in   ledger.RequestInput
		want error
	}{
		{
			name: "missing holder",
			in:   ledger.RequestInput{KeyID: k.ID, DurationHours: 4},
			want: apperrors.ErrValidation,
		},
		{
			name: "zero duration",
			in:   ledger.RequestInput{KeyID: k.ID, HolderID: uuid.New()},
			want: apperrors.ErrValidation,
		},
		{
			name: "duration past the bound",
			in:   ledger.RequestInput{KeyID: k.ID, HolderID: uuid.New(), DurationHours: assignment.MaxDurationHours + 1},
			want: apperrors.ErrValidation,
		},
		{
			name: "duration that would overflow",
			in:   ledger.RequestInput{KeyID: k.ID, HolderID: uuid.New(), DurationHours: math.MaxInt64 / 1000},
			want: apperrors.ErrValidation,
		},
		{
			name: "bad access type",
			in:   ledger.RequestInput{KeyID: k.ID, HolderID: uuid.New(), DurationHours: 4, AccessType: "forever"},
			want: apperrors.ErrValidation,
		},
		{
			name: "unknown key",
			in:   ledger.RequestInput{KeyID: uuid.New(), HolderID: uuid.New(), DurationHours: 4},
			want: apperrors.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Ledger.Request(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequestCapsDurationToKeyMaximum(t *testing.T) {
	h := testkit.New(t)
	k := h.Key(t, func(in *key.CreateKeyInput) { in.MaxAssignmentDuration = 8 * time.Hour })

	a := h.Request(t, k.ID, 48)

	assert.Equal(t, assignment.StatusPending, a.Status)
	assert.Equal(t, assignment.AccessTemporary, a.AccessType)
	assert.Equal(t, testkit.BaseTime.Add(8*time.Hour), a.DueDate)

	txs := h.Transactions(t, a.ID)
	require.Len(t, txs, 1)
	assert.Equal(t, transaction.TypeRequested, txs[0].Type)
	assert.EqualValues(t, 8, txs[0].Metadata["cappedToHours"])
}

func TestRequestRejectsUnassignableKeys(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	admin := uuid.New()

	lost := h.Key(t)
	_, err := h.Registry.SetAdministrativeStatus(ctx, lost.ID, key.StatusLost, admin)
	require.NoError(t, err)

	retired := h.Key(t)
	_, err = h.Registry.RetireKey(ctx, retired.ID, admin)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{lost.ID, retired.ID} {
		_, err := h.Ledger.Request(ctx, ledger.RequestInput{KeyID: id, HolderID: uuid.New(), DurationHours: 2})
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	}
}

func TestConcurrentRequestsYieldOneAssignment(t *testing.T) {
	h := testkit.New(t)
	k := h.Key(t)
	ctx := context.Background()

	const racers = 2
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*assignment.Assignment
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			a, err := h.Ledger.Request(ctx, ledger.RequestInput{KeyID: k.ID, HolderID: uuid.New(), DurationHours: 4})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			created = append(created, a)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, created, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], apperrors.ErrConflict)

	pending, err := h.Ledger.List(ctx, assignment.ListAssignmentsFilter{KeyID: &k.ID, Statuses: []assignment.Status{assignment.StatusPending}})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestFullHandoverLifecycle(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	desk := uuid.New()

	a := h.Request(t, k.ID, 8)

	got, err := h.Registry.GetKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, key.StatusAvailable, got.Status)

	collected, err := h.Ledger.Collect(ctx, a.ID, h.Token(t, a.ID, proof.ActionCollection), desk)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusActive, collected.Status)
	require.NotNil(t, collected.CollectedBy)
	assert.Equal(t, a.HolderID, *collected.CollectedBy)
	assert.Equal(t, desk, *collected.CollectionVerifiedBy)
	assert.Equal(t, desk, *collected.GrantorID)

	got, err = h.Registry.GetKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, key.StatusAssigned, got.Status)

	h.Clock.Advance(3 * time.Hour)
	returned, err := h.Ledger.DepositReturn(ctx, a.ID, h.Token(t, a.ID, proof.ActionDeposit), desk, "done")
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusReturned, returned.Status)
	require.NotNil(t, returned.ActualDuration)
	assert.Equal(t, 3*time.Hour, *returned.ActualDuration)
	assert.Equal(t, "done", returned.ReturnReason)

	got, err = h.Registry.GetKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, key.StatusAvailable, got.Status)

	assert.Equal(t,
		[]transaction.Type{transaction.TypeRequested, transaction.TypeCollected, transaction.TypeReturned},
		typesOf(h.Transactions(t, a.ID)),
	)

	// The key can be requested again once closed.
	h.Request(t, k.ID, 2)
}

func TestCollectionTokenIsSingleUse(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Request(t, k.ID, 4)
	raw := h.Token(t, a.ID, proof.ActionCollection)

	_, err := h.Ledger.Collect(ctx, a.ID, raw, uuid.New())
	require.NoError(t, err)

	_, err = h.Ledger.Collect(ctx, a.ID, raw, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestCollectRejectsExpiredToken(t *testing.T) {
	h := testkit.New(t)
	k := h.Key(t)
	a := h.Request(t, k.ID, 4)
	raw := h.Token(t, a.ID, proof.ActionCollection)

	h.Clock.Advance(proof.DefaultTTL + time.Second)
	_, err := h.Ledger.Collect(context.Background(), a.ID, raw, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrExpiredProof)

	got, err := h.Ledger.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusPending, got.Status)
}

func TestHandoverChecksTokenBeforeAssignmentLookup(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Request(t, k.ID, 4)
	expiring := h.Token(t, a.ID, proof.ActionCollection)
	h.Clock.Advance(proof.DefaultTTL + time.Second)
	unknown := uuid.New()

	handovers := map[string]func(raw string) error{
		"collect": func(raw string) error {
			_, err := h.Ledger.Collect(ctx, unknown, raw, uuid.New())
			return err
		},
		"deposit": func(raw string) error {
			_, err := h.Ledger.DepositReturn(ctx, unknown, raw, uuid.New(), "")
			return err
		},
	}
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"malformed", "not json", apperrors.ErrMalformedProof},
		{"empty", "", apperrors.ErrMalformedProof},
		{"expired", expiring, apperrors.ErrExpiredProof},
	}

	for op, run := range handovers {
		for _, tt := range tests {
			t.Run(op+" "+tt.name, func(t *testing.T) {
				assert.ErrorIs(t, run(tt.raw), tt.want)
			})
		}
	}

	// A fresh, well-formed token on an unknown assignment reaches the lookup.
	fresh := h.Token(t, a.ID, proof.ActionCollection)
	_, err := h.Ledger.Collect(ctx, unknown, fresh, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCollectRequiresApproval(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t, func(in *key.CreateKeyInput) { in.RequiresApproval = true })
	a := h.Request(t, k.ID, 4)
	manager := uuid.New()

	_, err := h.Ledger.Collect(ctx, a.ID, h.Token(t, a.ID, proof.ActionCollection), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	approved, err := h.Ledger.Approve(ctx, a.ID, manager)
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, manager, *approved.ApprovedBy)

	_, err = h.Ledger.Approve(ctx, a.ID, manager)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	collected, err := h.Ledger.Collect(ctx, a.ID, h.Token(t, a.ID, proof.ActionCollection), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, manager, *collected.GrantorID)
}

func TestLazyOverdueAndExtension(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Held(t, k.ID, 2)

	h.Clock.Advance(3 * time.Hour)

	got, err := h.Ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusOverdue, got.Status)

	overdue, err := h.Ledger.List(ctx, assignment.ListAssignmentsFilter{Statuses: []assignment.Status{assignment.StatusOverdue}})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, a.ID, overdue[0].ID)

	extended, err := h.Ledger.ExtendDeadline(ctx, a.ID, 4, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusActive, extended.Status)
	assert.Equal(t, a.DueDate.Add(4*time.Hour), extended.DueDate)

	// An extension that still ends in the past leaves the assignment overdue.
	h.Clock.Advance(10 * time.Hour)
	extended, err = h.Ledger.ExtendDeadline(ctx, a.ID, 1, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusOverdue, extended.Status)
}

func TestExtendRejectsPendingAndClosed(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Request(t, k.ID, 2)

	_, err := h.Ledger.ExtendDeadline(ctx, a.ID, 2, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = h.Ledger.ExtendDeadline(ctx, a.ID, 0, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	held := h.Held(t, h.Key(t).ID, 2)
	_, err = h.Ledger.ExtendDeadline(ctx, held.ID, math.MaxInt64/1000, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	got, err := h.Ledger.Get(ctx, held.ID)
	require.NoError(t, err)
	assert.True(t, held.DueDate.Equal(got.DueDate))
}

func TestCancelTwiceIsInvalidState(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Request(t, k.ID, 2)
	admin := uuid.New()

	cancelled, err := h.Ledger.Cancel(ctx, a.ID, admin, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCancelled, cancelled.Status)

	_, err = h.Ledger.Cancel(ctx, a.ID, admin, "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	txs := h.Transactions(t, a.ID)
	require.NotEmpty(t, txs)
	assert.Equal(t, transaction.TypeCancelled, txs[0].Type)
	assert.Contains(t, txs[0].Details, "no longer needed")
}

func TestForceReturnRequiresHeldAssignment(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	admin := uuid.New()

	pending := h.Request(t, k.ID, 2)
	_, err := h.Ledger.ForceReturn(ctx, pending.ID, admin, "lost badge")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = h.Ledger.Cancel(ctx, pending.ID, admin, "")
	require.NoError(t, err)

	held := h.Held(t, k.ID, 2)
	h.Clock.Advance(5 * time.Hour)

	returned, err := h.Ledger.ForceReturn(ctx, held.ID, admin, "holder on leave")
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusReturned, returned.Status)
	assert.Equal(t, admin, *returned.ReturnedBy)

	got, err := h.Registry.GetKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, key.StatusAvailable, got.Status)
}

func TestDelegateDepositsKeyOnBehalfOfHolder(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Held(t, k.ID, 8)
	peer := uuid.New()

	d, err := h.Sharing.Delegate(ctx, sharing.DelegateInput{
		KeyID:         k.ID,
		DelegatorID:   a.HolderID,
		DelegateID:    peer,
		DurationHours: 2,
	})
	require.NoError(t, err)

	raw := h.TokenFor(t, a.ID, peer, proof.ActionDeposit)
	returned, err := h.Ledger.DepositReturn(ctx, a.ID, raw, uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, peer, *returned.ReturnedBy)

	ended, err := h.Sharing.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusCancelled, ended.Status)

	txs := h.Transactions(t, a.ID)
	var returnedTx *transaction.Transaction
	for _, tx := range txs {
		if tx.Type == transaction.TypeReturned {
			returnedTx = tx
		}
	}
	require.NotNil(t, returnedTx)
	require.NotNil(t, returnedTx.DelegationID)
	assert.Equal(t, d.ID, *returnedTx.DelegationID)
	assert.Equal(t, true, returnedTx.Metadata["viaDelegation"])
}

func TestMintProofForStrangerIsDenied(t *testing.T) {
	h := testkit.New(t)
	k := h.Key(t)
	a := h.Held(t, k.ID, 8)

	_, err := h.Ledger.MintProof(context.Background(), ledger.MintProofInput{
		AssignmentID: a.ID,
		Action:       proof.ActionDeposit,
		HolderID:     uuid.New(),
	})
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	_, err = h.Ledger.MintProof(context.Background(), ledger.MintProofInput{
		AssignmentID: a.ID,
		Action:       proof.ActionCollection,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = h.Ledger.MintProof(context.Background(), ledger.MintProofInput{AssignmentID: a.ID, Action: "steal"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestTransitionsPublishAfterCommit(t *testing.T) {
	h := testkit.New(t)
	k := h.Key(t)
	a := h.Request(t, k.ID, 2)

	_, err := h.Ledger.Cancel(context.Background(), a.ID, uuid.New(), "")
	require.NoError(t, err)
	_, err = h.Ledger.Cancel(context.Background(), a.ID, uuid.New(), "")
	require.True(t, errors.Is(err, apperrors.ErrInvalidState))

	assert.Equal(t,
		[]transaction.Type{transaction.TypeKeyCreated, transaction.TypeRequested, transaction.TypeCancelled},
		h.Published.Types(),
	)
}
