package proof

import (
	"context"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const (
	errTokenExpired        = "proof token has expired"
	errWrongAssignment     = "proof token was minted for a different assignment"
	errWrongAction         = "proof token was minted for a different action"
	errWrongKey            = "proof token key does not match the assignment"
	errWrongHolder         = "proof token holder is neither the holder nor a delegate of the assignment"
	errDelegationInactive  = "delegation for this holder is no longer active"
	errMissingCollectBit   = "delegation does not grant collection"
	errMissingReturnBit    = "delegation does not grant return"
	errNotAwaitingCollect  = "assignment is not awaiting collection"
	errNotHeld             = "assignment is not currently held"
	errUnknownVerifyAction = "unknown handover action"
	errInvalidTTL          = "proof ttl must be positive"
	delegationLookupLimit  = 50
)

// Source is the read surface the verifier needs. Ledger transactions pass
// their transaction-scoped queries so checks and the state change share a snapshot.
type Source interface {
	GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error)
	ListDelegations(ctx context.Context, filter delegation.ListDelegationsFilter) ([]*delegation.Delegation, error)
}

// Grant describes a token that passed verification.
type Grant struct {
	Token      Token
	Assignment *assignment.Assignment
	// Delegation is set when the token was presented by a delegate.
	Delegation *delegation.Delegation
}

// PresentedBy is the principal who physically presented the key.
func (g *Grant) PresentedBy() uuid.UUID {
	return g.Token.HolderID
}

type Verifier struct {
	ttl time.Duration
	now func() time.Time
}

func NewVerifier(ttl time.Duration, now func() time.Time) *Verifier {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{ttl: ttl, now: now}
}

// Mint issues a token for presenter against a.
func (v *Verifier) Mint(a *assignment.Assignment, presenter uuid.UUID, action Action) (Token, error) {
	if !action.Valid() {
		return Token{}, apperrors.Validation(errUnknownVerifyAction)
	}
	if v.ttl <= 0 {
		return Token{}, apperrors.Validation(errInvalidTTL)
	}
	return NewToken(a.ID, a.KeyID, presenter, action, v.now(), v.ttl), nil
}

// Verify checks raw against the assignment it is being used on. Checks run
// in a fixed order so callers get the first failing reason: structure,
// expiry, existence, identity, then state.
func (v *Verifier) Verify(ctx context.Context, src Source, raw string, assignmentID uuid.UUID, action Action) (*Grant, error) {
	token, err := v.Precheck(raw)
	if err != nil {
		return nil, err
	}
	return v.VerifyToken(ctx, src, token, assignmentID, action)
}

// Precheck runs the checks that need no stored state: structure and expiry.
// Callers that look anything up before VerifyToken must run it first.
func (v *Verifier) Precheck(raw string) (Token, error) {
	token, err := Parse(raw)
	if err != nil {
		return Token{}, err
	}
	if token.Expired(v.now()) {
		return Token{}, apperrors.ExpiredProof(errTokenExpired)
	}
	return token, nil
}

// VerifyToken runs the remaining checks on a prechecked token. Expiry is
// checked again because time may have passed since Precheck.
func (v *Verifier) VerifyToken(ctx context.Context, src Source, token Token, assignmentID uuid.UUID, action Action) (*Grant, error) {
	if !action.Valid() {
		return nil, apperrors.Validation(errUnknownVerifyAction)
	}

	now := v.now()
	if token.Expired(now) {
		return nil, apperrors.ExpiredProof(errTokenExpired)
	}

	a, err := src.GetAssignmentForUpdate(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	if token.AssignmentID != a.ID {
		return nil, apperrors.ProofMismatch(errWrongAssignment)
	}
	if token.KeyID != a.KeyID {
		return nil, apperrors.ProofMismatch(errWrongKey)
	}
	if token.Action != action {
		return nil, apperrors.ProofMismatch(errWrongAction)
	}

	grant := &Grant{Token: token, Assignment: a}
	if token.HolderID != a.HolderID {
		d, err := v.delegateFor(ctx, src, a, token.HolderID, action, now)
		if err != nil {
			return nil, err
		}
		grant.Delegation = d
	}

	if err := requireState(a.Evaluate(now).Status, action); err != nil {
		return nil, err
	}

	return grant, nil
}

// delegateFor finds the active delegation that lets presenter act on a.
func (v *Verifier) delegateFor(ctx context.Context, src Source, a *assignment.Assignment, presenter uuid.UUID, action Action, now time.Time) (*delegation.Delegation, error) {
	grants, err := src.ListDelegations(ctx, delegation.ListDelegationsFilter{
		AssignmentID: &a.ID,
		DelegateID:   &presenter,
		Limit:        delegationLookupLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, apperrors.ProofMismatch(errWrongHolder)
	}

	var missingBit bool
	for _, d := range grants {
		if !d.IsActive(now) {
			continue
		}
		if allows(d.Permissions, action) {
			return d, nil
		}
		missingBit = true
	}

	if missingBit {
		if action == ActionCollection {
			return nil, apperrors.Permission(errMissingCollectBit)
		}
		return nil, apperrors.Permission(errMissingReturnBit)
	}
	return nil, apperrors.Permission(errDelegationInactive)
}

func allows(p delegation.Permissions, action Action) bool {
	switch action {
	case ActionCollection:
		return p.CanCollect
	case ActionDeposit:
		return p.CanReturn
	default:
		return false
	}
}

func requireState(status assignment.Status, action Action) error {
	switch action {
	case ActionCollection:
		if status != assignment.StatusPending {
			return apperrors.InvalidState(errNotAwaitingCollect)
		}
	case ActionDeposit:
		if !status.IsHeld() {
			return apperrors.InvalidState(errNotHeld)
		}
	}
	return nil
}
