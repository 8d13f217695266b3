// Package ledger runs the assignment state machine: request, approval,
// verified collection and return, extension, forced return and cancellation.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/proof"
	"key-service/internal/registry"
	"key-service/internal/repository"
	"key-service/internal/txlog"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const (
	errHolderRequired      = "holder is required"
	errActorRequired       = "actor is required"
	errDurationPositive    = "duration must be a positive number of hours"
	errExtensionPositive   = "extension must be a positive number of hours"
	errDurationTooLongFmt  = "duration must not exceed %d hours"
	errExtensionTooLongFmt = "extension must not exceed %d hours"
	errTransitionFmt       = "assignment cannot move from %s to %s"
	errKeyRetired          = "key is retired"
	errKeyUnderOverrideFmt = "key is marked %s"
	errNotPending          = "assignment is not pending"
	errAlreadyApproved     = "assignment is already approved"
	errAwaitingApproval    = "assignment requires approval before collection"
	errNotHeld             = "assignment is not currently held"
	errNotOutstanding      = "assignment is already closed"
	errNoMintPermission    = "presenter has no active delegation allowing this action"
	errUnknownAction       = "action must be collection or deposit"

	reasonAssignmentReturned  = "assignment returned"
	reasonAssignmentCancelled = "assignment cancelled"
	mintDelegationLimit       = 50
)

// DelegationCloser ends the delegations layered on an assignment that is
// being closed, recording one transaction per delegation in batch.
type DelegationCloser interface {
	EndForAssignment(ctx context.Context, q repository.Queries, batch *txlog.Batch, a *assignment.Assignment, actorID uuid.UUID, reason string) error
}

type RequestInput struct {
	KeyID         uuid.UUID
	HolderID      uuid.UUID
	DurationHours int
	Reason        string
	AccessType    assignment.AccessType
}

type MintProofInput struct {
	AssignmentID uuid.UUID
	Action       proof.Action
	// HolderID is the presenter; zero means the assignment holder.
	HolderID uuid.UUID
}

type Ledger struct {
	store    repository.Store
	registry *registry.Registry
	verifier *proof.Verifier
	txlog    *txlog.Log
	closer   DelegationCloser
	now      func() time.Time
	logger   *slog.Logger
}

type Deps struct {
	Store    repository.Store
	Registry *registry.Registry
	Verifier *proof.Verifier
	TxLog    *txlog.Log
	Closer   DelegationCloser
	Now      func() time.Time
	Logger   *slog.Logger
}

func New(deps Deps) *Ledger {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Ledger{
		store:    deps.Store,
		registry: deps.Registry,
		verifier: deps.Verifier,
		txlog:    deps.TxLog,
		closer:   deps.Closer,
		now:      deps.Now,
		logger:   deps.Logger,
	}
}

// Request creates a pending assignment. The insert is guarded by the store's
// one-outstanding-assignment-per-key constraint, so of two racing requests
// exactly one succeeds and the other gets a Conflict error.
func (l *Ledger) Request(ctx context.Context, in RequestInput) (*assignment.Assignment, error) {
	if in.HolderID == uuid.Nil {
		return nil, apperrors.Validation(errHolderRequired)
	}
	if in.DurationHours <= 0 {
		return nil, apperrors.Validation(errDurationPositive)
	}
	if in.DurationHours > assignment.MaxDurationHours {
		return nil, apperrors.Validation(fmt.Sprintf(errDurationTooLongFmt, assignment.MaxDurationHours))
	}
	if in.AccessType == "" {
		in.AccessType = assignment.AccessTemporary
	}
	if err := in.AccessType.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	var out *assignment.Assignment
	err := l.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		k, err := q.GetKeyForUpdate(ctx, in.KeyID)
		if err != nil {
			return err
		}
		if err := requireAssignable(k); err != nil {
			return err
		}

		now := l.now()
		requested := time.Duration(in.DurationHours) * time.Hour
		granted := k.CapDuration(requested)
		a := &assignment.Assignment{
			ID:           uuid.New(),
			KeyID:        k.ID,
			HolderID:     in.HolderID,
			AccessType:   in.AccessType,
			Status:       assignment.StatusPending,
			Reason:       strings.TrimSpace(in.Reason),
			AssignedDate: now,
			DueDate:      now.Add(granted),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := q.InsertAssignment(ctx, a); err != nil {
			return err
		}

		metadata := map[string]any{"durationHours": in.DurationHours}
		if granted != requested {
			metadata["cappedToHours"] = granted.Hours()
		}
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeRequested,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			ActorID:      a.HolderID,
			Metadata:     metadata,
		}); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("assignment requested",
		slog.String("assignment_id", out.ID.String()),
		slog.String("key_id", out.KeyID.String()),
		slog.String("holder_id", out.HolderID.String()),
	)
	return out, nil
}

// Approve records approval of a pending request for a key that requires it.
func (l *Ledger) Approve(ctx context.Context, assignmentID, approverID uuid.UUID) (*assignment.Assignment, error) {
	if approverID == uuid.Nil {
		return nil, apperrors.Validation(errActorRequired)
	}

	var out *assignment.Assignment
	err := l.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		a, _, err := lockAssignment(ctx, q, assignmentID)
		if err != nil {
			return err
		}
		if a.Status != assignment.StatusPending {
			return apperrors.InvalidState(errNotPending)
		}
		if a.ApprovedAt != nil {
			return apperrors.InvalidState(errAlreadyApproved)
		}

		now := l.now()
		a.ApprovedAt = &now
		a.ApprovedBy = &approverID
		a.GrantorID = &approverID
		a.UpdatedAt = now
		if err := q.UpdateAssignment(ctx, a, assignment.StatusPending); err != nil {
			return err
		}
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeApproved,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			ActorID:      approverID,
		}); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MintProof issues a handover token for the holder or an authorised delegate.
func (l *Ledger) MintProof(ctx context.Context, in MintProofInput) (proof.Token, error) {
	if !in.Action.Valid() {
		return proof.Token{}, apperrors.Validation(errUnknownAction)
	}

	a, err := l.Get(ctx, in.AssignmentID)
	if err != nil {
		return proof.Token{}, err
	}

	switch in.Action {
	case proof.ActionCollection:
		if a.Status != assignment.StatusPending {
			return proof.Token{}, apperrors.InvalidState(errNotPending)
		}
	case proof.ActionDeposit:
		if !a.Status.IsHeld() {
			return proof.Token{}, apperrors.InvalidState(errNotHeld)
		}
	}

	presenter := in.HolderID
	if presenter == uuid.Nil {
		presenter = a.HolderID
	}
	if presenter != a.HolderID {
		if err := l.requireDelegate(ctx, a, presenter, in.Action); err != nil {
			return proof.Token{}, err
		}
	}

	return l.verifier.Mint(a, presenter, in.Action)
}

func (l *Ledger) requireDelegate(ctx context.Context, a *assignment.Assignment, presenter uuid.UUID, action proof.Action) error {
	grants, err := l.store.ListDelegations(ctx, delegationFilter(a.ID, presenter, mintDelegationLimit))
	if err != nil {
		return err
	}
	now := l.now()
	for _, d := range grants {
		if !d.IsActive(now) {
			continue
		}
		if (action == proof.ActionCollection && d.Permissions.CanCollect) ||
			(action == proof.ActionDeposit && d.Permissions.CanReturn) {
			return nil
		}
	}
	return apperrors.Permission(errNoMintPermission)
}

// Collect consumes a collection token and moves the assignment to active.
func (l *Ledger) Collect(ctx context.Context, assignmentID uuid.UUID, rawToken string, verifierID uuid.UUID) (*assignment.Assignment, error) {
	if verifierID == uuid.Nil {
		return nil, apperrors.Validation(errActorRequired)
	}

	token, err := l.verifier.Precheck(rawToken)
	if err != nil {
		return nil, err
	}

	var out *assignment.Assignment
	err = l.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		k, err := lockKeyOf(ctx, q, assignmentID)
		if err != nil {
			return err
		}
		grant, err := l.verifier.VerifyToken(ctx, q, token, assignmentID, proof.ActionCollection)
		if err != nil {
			return err
		}
		a := grant.Assignment
		if k.RequiresApproval && a.ApprovedAt == nil {
			return apperrors.InvalidState(errAwaitingApproval)
		}

		if err := advance(a, assignment.StatusActive); err != nil {
			return err
		}
		now := l.now()
		presenter := grant.PresentedBy()
		a.CollectedAt = &now
		a.CollectedBy = &presenter
		a.CollectionVerifiedBy = &verifierID
		if a.GrantorID == nil {
			a.GrantorID = &verifierID
		}
		a.UpdatedAt = now
		if err := q.UpdateAssignment(ctx, a, assignment.StatusPending); err != nil {
			return err
		}
		if _, err := l.registry.Sync(ctx, q, a.KeyID); err != nil {
			return err
		}
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeCollected,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			DelegationID: delegationID(grant),
			ActorID:      presenter,
			Metadata:     handoverMetadata(grant, verifierID),
		}); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DepositReturn consumes a deposit token and closes the assignment.
func (l *Ledger) DepositReturn(ctx context.Context, assignmentID uuid.UUID, rawToken string, verifierID uuid.UUID, reason string) (*assignment.Assignment, error) {
	if verifierID == uuid.Nil {
		return nil, apperrors.Validation(errActorRequired)
	}

	token, err := l.verifier.Precheck(rawToken)
	if err != nil {
		return nil, err
	}

	var out *assignment.Assignment
	err = l.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		if _, err := lockKeyOf(ctx, q, assignmentID); err != nil {
			return err
		}
		grant, err := l.verifier.VerifyToken(ctx, q, token, assignmentID, proof.ActionDeposit)
		if err != nil {
			return err
		}
		a := grant.Assignment
		presenter := grant.PresentedBy()

		if err := l.closeReturned(ctx, q, a, presenter, verifierID, reason); err != nil {
			return err
		}
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeReturned,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			DelegationID: delegationID(grant),
			ActorID:      presenter,
			Metadata:     handoverMetadata(grant, verifierID),
		}); err != nil {
			return err
		}
		if err := l.endDelegations(ctx, q, batch, a, presenter, reasonAssignmentReturned); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("key returned",
		slog.String("assignment_id", out.ID.String()),
		slog.String("key_id", out.KeyID.String()),
		slog.String("verified_by", verifierID.String()),
	)
	return out, nil
}

// ExtendDeadline pushes the due date out. An overdue assignment whose new
// due date is in the future becomes active again.
func (l *Ledger) ExtendDeadline(ctx context.Context, assignmentID uuid.UUID, extraHours int, actorID uuid.UUID) (*assignment.Assignment, error) {
	if extraHours <= 0 {
		return nil, apperrors.Validation(errExtensionPositive)
	}
	if extraHours > assignment.MaxDurationHours {
		return nil, apperrors.Validation(fmt.Sprintf(errExtensionTooLongFmt, assignment.MaxDurationHours))
	}

	var out *assignment.Assignment
	err := l.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		a, _, err := lockAssignment(ctx, q, assignmentID)
		if err != nil {
			return err
		}
		now := l.now()
		if !a.Evaluate(now).Status.IsHeld() {
			return apperrors.InvalidState(errNotHeld)
		}

		previousDue := a.DueDate
		previousStatus := a.Status
		a.DueDate = a.DueDate.Add(time.Duration(extraHours) * time.Hour)
		to := assignment.StatusActive
		if now.After(a.DueDate) {
			to = assignment.StatusOverdue
		}
		if err := advance(a, to); err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := q.UpdateAssignment(ctx, a, assignment.Held...); err != nil {
			return err
		}
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeExtended,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			ActorID:      actorID,
			Metadata: map[string]any{
				"extraHours":      extraHours,
				"previousDueDate": previousDue.UTC().Format(time.RFC3339),
				"newDueDate":      a.DueDate.UTC().Format(time.RFC3339),
				"previousStatus":  string(previousStatus),
			},
		}); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForceReturn closes a held assignment without a proof token.
func (l *Ledger) ForceReturn(ctx context.Context, assignmentID, actorID uuid.UUID, reason string) (*assignment.Assignment, error) {
	if actorID == uuid.Nil {
		return nil, apperrors.Validation(errActorRequired)
	}

	var out *assignment.Assignment
	err := l.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		a, _, err := lockAssignment(ctx, q, assignmentID)
		if err != nil {
			return err
		}
		if !a.Status.IsHeld() {
			return apperrors.InvalidState(errNotHeld)
		}

		if err := l.closeReturned(ctx, q, a, actorID, actorID, reason); err != nil {
			return err
		}
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeForceReturned,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			ActorID:      actorID,
			Metadata:     map[string]any{"holderId": a.HolderID.String(), "reason": a.ReturnReason},
		}); err != nil {
			return err
		}
		if err := l.endDelegations(ctx, q, batch, a, actorID, reasonAssignmentReturned); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel closes an outstanding assignment. Cancelling a closed assignment is
// an InvalidState error so stale callers can tell.
func (l *Ledger) Cancel(ctx context.Context, assignmentID, actorID uuid.UUID, reason string) (*assignment.Assignment, error) {
	if actorID == uuid.Nil {
		return nil, apperrors.Validation(errActorRequired)
	}

	var out *assignment.Assignment
	err := l.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		a, _, err := lockAssignment(ctx, q, assignmentID)
		if err != nil {
			return err
		}
		if !a.Status.IsOutstanding() {
			return apperrors.InvalidState(errNotOutstanding)
		}

		previous := a.Status
		if err := advance(a, assignment.StatusCancelled); err != nil {
			return err
		}
		now := l.now()
		a.CancelledAt = &now
		a.CancelledBy = &actorID
		a.CancelReason = strings.TrimSpace(reason)
		a.UpdatedAt = now
		if err := q.UpdateAssignment(ctx, a, assignment.Outstanding...); err != nil {
			return err
		}
		if _, err := l.registry.Sync(ctx, q, a.KeyID); err != nil {
			return err
		}
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeCancelled,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			ActorID:      actorID,
			Details:      cancelDetails(a.CancelReason),
			Metadata:     map[string]any{"previousStatus": string(previous)},
		}); err != nil {
			return err
		}
		if err := l.endDelegations(ctx, q, batch, a, actorID, reasonAssignmentCancelled); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the assignment with overdue evaluated for the current time.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	a, err := l.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	evaluated := a.Evaluate(l.now())
	return &evaluated, nil
}

// List returns assignments with overdue evaluated. Status filters apply to
// the evaluated status, so an active row past due matches "overdue".
func (l *Ledger) List(ctx context.Context, filter assignment.ListAssignmentsFilter) ([]*assignment.Assignment, error) {
	wanted := make(map[assignment.Status]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		if err := s.Validate(); err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		wanted[s] = true
	}
	if wanted[assignment.StatusOverdue] && !wanted[assignment.StatusActive] {
		filter.Statuses = append(filter.Statuses, assignment.StatusActive)
	}

	rows, err := l.store.ListAssignments(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := l.now()
	out := make([]*assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		evaluated := row.Evaluate(now)
		if len(wanted) > 0 && !wanted[evaluated.Status] {
			continue
		}
		out = append(out, &evaluated)
	}
	return out, nil
}

// transition runs fn in one database transaction and publishes what it recorded.
func (l *Ledger) transition(ctx context.Context, fn func(q repository.Queries, batch *txlog.Batch) error) error {
	var recorded []*transaction.Transaction
	err := l.store.WithinTx(ctx, func(q repository.Queries) error {
		batch := l.txlog.Batch(q)
		if err := fn(q, batch); err != nil {
			return err
		}
		recorded = batch.Recorded()
		return nil
	})
	if err != nil {
		return err
	}
	l.txlog.Publish(recorded...)
	return nil
}

func (l *Ledger) closeReturned(ctx context.Context, q repository.Queries, a *assignment.Assignment, returnedBy, verifiedBy uuid.UUID, reason string) error {
	if err := advance(a, assignment.StatusReturned); err != nil {
		return err
	}
	now := l.now()
	a.ReturnedAt = &now
	a.ReturnedBy = &returnedBy
	a.ReturnVerifiedBy = &verifiedBy
	a.ReturnReason = strings.TrimSpace(reason)
	if a.CollectedAt != nil {
		held := now.Sub(*a.CollectedAt)
		a.ActualDuration = &held
	}
	a.UpdatedAt = now
	if err := q.UpdateAssignment(ctx, a, assignment.Held...); err != nil {
		return err
	}
	_, err := l.registry.Sync(ctx, q, a.KeyID)
	return err
}

func (l *Ledger) endDelegations(ctx context.Context, q repository.Queries, batch *txlog.Batch, a *assignment.Assignment, actorID uuid.UUID, reason string) error {
	if l.closer == nil {
		return nil
	}
	return l.closer.EndForAssignment(ctx, q, batch, a, actorID, reason)
}

// lockKeyOf locks the key row of an assignment. Transitions lock the key
// before the assignment, matching Request, so lock order is uniform.
func lockKeyOf(ctx context.Context, q repository.Queries, assignmentID uuid.UUID) (*key.Key, error) {
	a, err := q.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return q.GetKeyForUpdate(ctx, a.KeyID)
}

func lockAssignment(ctx context.Context, q repository.Queries, assignmentID uuid.UUID) (*assignment.Assignment, *key.Key, error) {
	k, err := lockKeyOf(ctx, q, assignmentID)
	if err != nil {
		return nil, nil, err
	}
	a, err := q.GetAssignmentForUpdate(ctx, assignmentID)
	if err != nil {
		return nil, nil, err
	}
	return a, k, nil
}

// advance moves a to status, refusing moves the state machine does not allow.
// Staying in the same status is not a move.
func advance(a *assignment.Assignment, to assignment.Status) error {
	if a.Status != to && !assignment.CanTransition(a.Status, to) {
		return apperrors.InvalidState(fmt.Sprintf(errTransitionFmt, a.Status, to))
	}
	a.Status = to
	return nil
}

func requireAssignable(k *key.Key) error {
	if k.IsRetired() {
		return apperrors.InvalidState(errKeyRetired)
	}
	if k.Override.IsOverride() {
		return apperrors.InvalidState(overrideMessage(k.Override))
	}
	return nil
}
