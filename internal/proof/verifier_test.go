package proof

import (
	"context"
	"errors"
	"testing"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	assignments map[uuid.UUID]*assignment.Assignment
	delegations []*delegation.Delegation
}

func (m *memSource) GetAssignmentForUpdate(_ context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return nil, apperrors.NotFound("assignment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *memSource) ListDelegations(_ context.Context, f delegation.ListDelegationsFilter) ([]*delegation.Delegation, error) {
	var out []*delegation.Delegation
	for _, d := range m.delegations {
		if f.AssignmentID != nil && d.AssignmentID != *f.AssignmentID {
			continue
		}
		if f.DelegateID != nil && d.DelegateID != *f.DelegateID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type fixture struct {
	now      time.Time
	verifier *Verifier
	source   *memSource
	pending  *assignment.Assignment
	active   *assignment.Assignment
	delegate uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	f.verifier = NewVerifier(DefaultTTL, func() time.Time { return f.now })
	f.pending = &assignment.Assignment{
		ID:       uuid.New(),
		KeyID:    uuid.New(),
		HolderID: uuid.New(),
		Status:   assignment.StatusPending,
		DueDate:  f.now.Add(24 * time.Hour),
	}
	f.active = &assignment.Assignment{
		ID:       uuid.New(),
		KeyID:    uuid.New(),
		HolderID: uuid.New(),
		Status:   assignment.StatusActive,
		DueDate:  f.now.Add(24 * time.Hour),
	}
	f.delegate = uuid.New()
	f.source = &memSource{
		assignments: map[uuid.UUID]*assignment.Assignment{
			f.pending.ID: f.pending,
			f.active.ID:  f.active,
		},
		delegations: []*delegation.Delegation{{
			ID:           uuid.New(),
			KeyID:        f.active.KeyID,
			AssignmentID: f.active.ID,
			DelegatorID:  f.active.HolderID,
			DelegateID:   f.delegate,
			Permissions:  delegation.DefaultPermissions(),
			Status:       delegation.StatusActive,
			ExpiresAt:    f.now.Add(4 * time.Hour),
		}},
	}
	return f
}

func (f *fixture) encode(t *testing.T, tok Token) string {
	t.Helper()
	raw, err := tok.Encode()
	require.NoError(t, err)
	return raw
}

func TestParseRejectsMalformedTokens(t *testing.T) {
	valid := NewToken(uuid.New(), uuid.New(), uuid.New(), ActionCollection, time.Now(), DefaultTTL)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "hello"},
		{name: "empty object", raw: "{}"},
		{name: "unknown field", raw: `{"assignmentId":"` + valid.AssignmentID.String() + `","extra":1}`},
		{name: "bad uuid", raw: `{"assignmentId":"nope"}`},
		{name: "bad action", raw: `{"assignmentId":"` + valid.AssignmentID.String() +
			`","keyId":"` + valid.KeyID.String() + `","holderId":"` + valid.HolderID.String() +
			`","action":"steal","issuedAt":1,"expiresAt":2}`},
		{name: "expires before issue", raw: `{"assignmentId":"` + valid.AssignmentID.String() +
			`","keyId":"` + valid.KeyID.String() + `","holderId":"` + valid.HolderID.String() +
			`","action":"deposit","issuedAt":5,"expiresAt":2}`},
		{name: "trailing data", raw: `{"assignmentId":"` + valid.AssignmentID.String() +
			`","keyId":"` + valid.KeyID.String() + `","holderId":"` + valid.HolderID.String() +
			`","action":"deposit","issuedAt":1,"expiresAt":2} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedProof), "got %v", err)
		})
	}
}

func TestTokenWireFormat(t *testing.T) {
	issued := time.UnixMilli(1_700_000_000_000).UTC()
	tok := NewToken(uuid.New(), uuid.New(), uuid.New(), ActionDeposit, issued, DefaultTTL)

	raw, err := tok.Encode()
	require.NoError(t, err)
	assert.Contains(t, raw, `"action":"deposit"`)
	assert.Contains(t, raw, `"issuedAt":1700000000000`)
	assert.Contains(t, raw, `"expiresAt":1700000600000`)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)
	assert.Equal(t, issued.UnixMilli(), parsed.IssuedAt)
}

func TestPrecheckNeedsNoSource(t *testing.T) {
	f := newFixture(t)
	tok := NewToken(uuid.New(), uuid.New(), uuid.New(), ActionDeposit, f.now, DefaultTTL)
	raw, err := tok.Encode()
	require.NoError(t, err)

	_, err = f.verifier.Precheck("null")
	assert.ErrorIs(t, err, apperrors.ErrMalformedProof)

	got, err := f.verifier.Precheck(raw)
	require.NoError(t, err)
	assert.Equal(t, tok.AssignmentID, got.AssignmentID)

	f.now = f.now.Add(DefaultTTL + time.Millisecond)
	_, err = f.verifier.Precheck(raw)
	assert.ErrorIs(t, err, apperrors.ErrExpiredProof)

	// VerifyToken repeats the expiry check for tokens prechecked earlier.
	_, err = f.verifier.VerifyToken(context.Background(), f.source, got, got.AssignmentID, ActionDeposit)
	assert.ErrorIs(t, err, apperrors.ErrExpiredProof)
}

func TestVerifyHolderCollection(t *testing.T) {
	f := newFixture(t)
	tok, err := f.verifier.Mint(f.pending, f.pending.HolderID, ActionCollection)
	require.NoError(t, err)

	grant, err := f.verifier.Verify(context.Background(), f.source, f.encode(t, tok), f.pending.ID, ActionCollection)
	require.NoError(t, err)
	assert.Nil(t, grant.Delegation)
	assert.Equal(t, f.pending.HolderID, grant.PresentedBy())
}

func TestVerifyFailureOrder(t *testing.T) {
	tests := []struct {
		name    string
		build   func(f *fixture) (raw string, id uuid.UUID, action Action)
		advance time.Duration
		want    error
	}{
		{
			name: "malformed wins over everything",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				return "{", uuid.New(), ActionCollection
			},
			want: apperrors.ErrMalformedProof,
		},
		{
			name: "expired before lookup",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				tok := NewToken(uuid.New(), uuid.New(), uuid.New(), ActionCollection, f.now, DefaultTTL)
				raw, _ := tok.Encode()
				return raw, tok.AssignmentID, ActionCollection
			},
			advance: DefaultTTL + time.Millisecond,
			want:    apperrors.ErrExpiredProof,
		},
		{
			name: "unknown assignment",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				tok := NewToken(uuid.New(), uuid.New(), uuid.New(), ActionCollection, f.now, DefaultTTL)
				raw, _ := tok.Encode()
				return raw, tok.AssignmentID, ActionCollection
			},
			want: apperrors.ErrNotFound,
		},
		{
			name: "token for another key",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				tok := NewToken(f.pending.ID, uuid.New(), f.pending.HolderID, ActionCollection, f.now, DefaultTTL)
				raw, _ := tok.Encode()
				return raw, f.pending.ID, ActionCollection
			},
			want: apperrors.ErrProofMismatch,
		},
		{
			name: "token replayed on another assignment",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				tok := NewToken(f.pending.ID, f.pending.KeyID, f.pending.HolderID, ActionCollection, f.now, DefaultTTL)
				raw, _ := tok.Encode()
				return raw, f.active.ID, ActionCollection
			},
			want: apperrors.ErrProofMismatch,
		},
		{
			name: "collection token used for deposit",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				tok := NewToken(f.active.ID, f.active.KeyID, f.active.HolderID, ActionCollection, f.now, DefaultTTL)
				raw, _ := tok.Encode()
				return raw, f.active.ID, ActionDeposit
			},
			want: apperrors.ErrProofMismatch,
		},
		{
			name: "stranger holder",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				tok := NewToken(f.active.ID, f.active.KeyID, uuid.New(), ActionDeposit, f.now, DefaultTTL)
				raw, _ := tok.Encode()
				return raw, f.active.ID, ActionDeposit
			},
			want: apperrors.ErrProofMismatch,
		},
		{
			name: "collection on held assignment",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				tok := NewToken(f.active.ID, f.active.KeyID, f.active.HolderID, ActionCollection, f.now, DefaultTTL)
				raw, _ := tok.Encode()
				return raw, f.active.ID, ActionCollection
			},
			want: apperrors.ErrInvalidState,
		},
		{
			name: "deposit on pending assignment",
			build: func(f *fixture) (string, uuid.UUID, Action) {
				tok := NewToken(f.pending.ID, f.pending.KeyID, f.pending.HolderID, ActionDeposit, f.now, DefaultTTL)
				raw, _ := tok.Encode()
				return raw, f.pending.ID, ActionDeposit
			},
			want: apperrors.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			raw, id, action := tt.build(f)
			f.now = f.now.Add(tt.advance)

			_, err := f.verifier.Verify(context.Background(), f.source, raw, id, action)
			assert.True(t, errors.Is(err, tt.want), "want %v, got %v", tt.want, err)
		})
	}
}

func TestVerifyDelegateDeposit(t *testing.T) {
	f := newFixture(t)
	tok, err := f.verifier.Mint(f.active, f.delegate, ActionDeposit)
	require.NoError(t, err)

	grant, err := f.verifier.Verify(context.Background(), f.source, f.encode(t, tok), f.active.ID, ActionDeposit)
	require.NoError(t, err)
	require.NotNil(t, grant.Delegation)
	assert.Equal(t, f.delegate, grant.Delegation.DelegateID)
}

func TestVerifyDelegateWithoutReturnBit(t *testing.T) {
	f := newFixture(t)
	f.source.delegations[0].Permissions.CanReturn = false
	tok, err := f.verifier.Mint(f.active, f.delegate, ActionDeposit)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), f.source, f.encode(t, tok), f.active.ID, ActionDeposit)
	assert.True(t, errors.Is(err, apperrors.ErrPermission))
}

func TestVerifyExpiredDelegation(t *testing.T) {
	f := newFixture(t)
	f.source.delegations[0].ExpiresAt = f.now.Add(-time.Minute)
	tok, err := f.verifier.Mint(f.active, f.delegate, ActionDeposit)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), f.source, f.encode(t, tok), f.active.ID, ActionDeposit)
	assert.True(t, errors.Is(err, apperrors.ErrPermission))
}

func TestVerifyDepositWhileLazilyOverdue(t *testing.T) {
	f := newFixture(t)
	f.active.DueDate = f.now.Add(-time.Hour)
	tok, err := f.verifier.Mint(f.active, f.active.HolderID, ActionDeposit)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), f.source, f.encode(t, tok), f.active.ID, ActionDeposit)
	assert.NoError(t, err)
}
