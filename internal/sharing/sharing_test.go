package sharing_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"key-service/internal/domain/delegation"
	"key-service/internal/domain/transaction"
	"key-service/internal/sharing"
	"key-service/internal/testkit"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelegateValidation(t *testing.T) {
	h := testkit.New(t)
	k := h.Key(t)
	a := h.Held(t, k.ID, 8)

	tests := []struct {
		name string
		in   sharing.DelegateInput
		want error
	}{
		{
			name: "missing delegate",
			in:   sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DurationHours: 1},
			want: apperrors.ErrValidation,
		},
		{
			name: "self delegation",
			in:   sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: a.HolderID, DurationHours: 1},
			want: apperrors.ErrValidation,
		},
		{
			name: "zero duration",
			in:   sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New()},
			want: apperrors.ErrValidation,
		},
		{
			name: "duration past the bound",
			in:   sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New(), DurationHours: delegation.MaxDurationHours + 1},
			want: apperrors.ErrValidation,
		},
		{
			name: "duration that would overflow",
			in:   sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New(), DurationHours: math.MaxInt64 / 1000},
			want: apperrors.ErrValidation,
		},
		{
			name: "message too long",
			in: sharing.DelegateInput{
				KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New(), DurationHours: 1,
				Message: strings.Repeat("x", 501),
			},
			want: apperrors.ErrValidation,
		},
		{
			name: "delegator holds nothing",
			in:   sharing.DelegateInput{KeyID: k.ID, DelegatorID: uuid.New(), DelegateID: uuid.New(), DurationHours: 1},
			want: apperrors.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Sharing.Delegate(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDelegateDefaultsAndDuplicates(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Held(t, k.ID, 8)
	peer := uuid.New()
	in := sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: peer, DurationHours: 2, Message: " cover my shift "}

	d, err := h.Sharing.Delegate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, delegation.DefaultPermissions(), d.Permissions)
	assert.Equal(t, a.ID, d.AssignmentID)
	assert.Equal(t, "cover my shift", d.Message)
	assert.Equal(t, testkit.BaseTime.Add(2*time.Hour), d.ExpiresAt)

	_, err = h.Sharing.Delegate(ctx, in)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// A second delegate on the same assignment is allowed.
	_, err = h.Sharing.Delegate(ctx, sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New(), DurationHours: 1})
	require.NoError(t, err)

	// Once the first grant lapses it is expired and replaced.
	h.Clock.Advance(3 * time.Hour)
	renewed, err := h.Sharing.Delegate(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, renewed.ID)

	old, err := h.Store.GetDelegation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusExpired, old.Status)
	assert.Equal(t, transaction.SystemActorID, *old.EndedBy)
}

func TestOverdueHolderCannotDelegate(t *testing.T) {
	h := testkit.New(t)
	k := h.Key(t)
	a := h.Held(t, k.ID, 1)
	h.Clock.Advance(2 * time.Hour)

	_, err := h.Sharing.Delegate(context.Background(), sharing.DelegateInput{
		KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New(), DurationHours: 1,
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRevokeAndCancelAuthorization(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Held(t, k.ID, 8)
	peer := uuid.New()

	grant := func() *delegation.Delegation {
		d, err := h.Sharing.Delegate(ctx, sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: peer, DurationHours: 4})
		require.NoError(t, err)
		return d
	}

	d := grant()
	_, err := h.Sharing.Revoke(ctx, sharing.EndInput{DelegationID: d.ID, ActorID: peer})
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	revoked, err := h.Sharing.Revoke(ctx, sharing.EndInput{DelegationID: d.ID, ActorID: a.HolderID, Reason: "back early"})
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusRevoked, revoked.Status)
	assert.Equal(t, "back early", revoked.EndReason)

	_, err = h.Sharing.Revoke(ctx, sharing.EndInput{DelegationID: d.ID, ActorID: a.HolderID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	d = grant()
	_, err = h.Sharing.Cancel(ctx, sharing.EndInput{DelegationID: d.ID, ActorID: uuid.New()})
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	cancelled, err := h.Sharing.Cancel(ctx, sharing.EndInput{DelegationID: d.ID, ActorID: peer})
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusCancelled, cancelled.Status)

	d = grant()
	adminEnded, err := h.Sharing.Revoke(ctx, sharing.EndInput{DelegationID: d.ID, ActorID: uuid.New(), Administrative: true})
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusRevoked, adminEnded.Status)

	_, err = h.Sharing.Revoke(ctx, sharing.EndInput{DelegationID: uuid.New(), ActorID: a.HolderID})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExpireLapsedAndLazyEvaluation(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Held(t, k.ID, 8)

	d, err := h.Sharing.Delegate(ctx, sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New(), DurationHours: 1})
	require.NoError(t, err)

	h.Clock.Advance(90 * time.Minute)

	got, err := h.Sharing.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusExpired, got.Status)

	expiredView, err := h.Sharing.List(ctx, delegation.ListDelegationsFilter{Statuses: []delegation.Status{delegation.StatusExpired}})
	require.NoError(t, err)
	assert.Len(t, expiredView, 1)

	_, err = h.Sharing.Cancel(ctx, sharing.EndInput{DelegationID: d.ID, ActorID: a.HolderID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	n, err := h.Sharing.ExpireLapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.Sharing.ExpireLapsed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := h.Store.GetDelegation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusExpired, stored.Status)
}

func TestClosingAssignmentEndsDelegations(t *testing.T) {
	h := testkit.New(t)
	ctx := context.Background()
	k := h.Key(t)
	a := h.Held(t, k.ID, 8)

	live, err := h.Sharing.Delegate(ctx, sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New(), DurationHours: 6})
	require.NoError(t, err)
	short, err := h.Sharing.Delegate(ctx, sharing.DelegateInput{KeyID: k.ID, DelegatorID: a.HolderID, DelegateID: uuid.New(), DurationHours: 1})
	require.NoError(t, err)

	h.Clock.Advance(2 * time.Hour)
	_, err = h.Ledger.ForceReturn(ctx, a.ID, uuid.New(), "audit")
	require.NoError(t, err)

	got, err := h.Store.GetDelegation(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusCancelled, got.Status)

	got, err = h.Store.GetDelegation(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, delegation.StatusExpired, got.Status)

	ended, err := h.Log.Query(ctx, transaction.ListTransactionsFilter{
		AssignmentID: &a.ID,
		Types:        []transaction.Type{transaction.TypeShareCancelled, transaction.TypeShareExpired},
	})
	require.NoError(t, err)
	assert.Len(t, ended, 2)
}
