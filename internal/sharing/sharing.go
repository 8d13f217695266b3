// Package sharing manages delegations: time-boxed grants that let a peer
// collect or return a key on behalf of its active holder.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/delegation"
	"key-service/internal/domain/transaction"
	"key-service/internal/repository"
	"key-service/internal/txlog"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const (
	errPartiesRequired    = "delegator and delegate are required"
	errSelfDelegation     = "cannot delegate a key to yourself"
	errDurationPositive   = "duration must be a positive number of hours"
	errDurationTooLongFmt = "duration must not exceed %d hours"
	errMessageTooLong     = "message must be at most 500 characters"
	errDelegatorNotActive = "delegator does not hold an active assignment for this key"
	errDuplicateGrant     = "an active delegation to this delegate already exists for the key"
	errNotActive          = "delegation is not active"
	errOnlyDelegator      = "only the delegator can revoke a delegation"
	errNotParty           = "only the delegator or delegate can cancel a delegation"

	reasonLapsed   = "delegation expired"
	maxMessageLen  = 500
	heldScanLimit  = 10
	grantScanLimit = repository.MaxListLimit
)

type DelegateInput struct {
	KeyID         uuid.UUID
	DelegatorID   uuid.UUID
	DelegateID    uuid.UUID
	DurationHours int
	Message       string
	// Permissions overrides the defaults when set.
	Permissions *delegation.Permissions
}

// EndInput identifies a delegation being revoked or cancelled. Administrative
// requests skip the party checks.
type EndInput struct {
	DelegationID   uuid.UUID
	ActorID        uuid.UUID
	Reason         string
	Administrative bool
}

type Manager struct {
	store  repository.Store
	txlog  *txlog.Log
	now    func() time.Time
	logger *slog.Logger
}

func New(store repository.Store, log *txlog.Log, now func() time.Time, logger *slog.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, txlog: log, now: now, logger: logger}
}

// Delegate grants delegate time-boxed handover rights on the delegator's
// active assignment for the key.
func (m *Manager) Delegate(ctx context.Context, in DelegateInput) (*delegation.Delegation, error) {
	if in.DelegatorID == uuid.Nil || in.DelegateID == uuid.Nil {
		return nil, apperrors.Validation(errPartiesRequired)
	}
	if in.DelegatorID == in.DelegateID {
		return nil, apperrors.Validation(errSelfDelegation)
	}
	if in.DurationHours <= 0 {
		return nil, apperrors.Validation(errDurationPositive)
	}
	if in.DurationHours > delegation.MaxDurationHours {
		return nil, apperrors.Validation(fmt.Sprintf(errDurationTooLongFmt, delegation.MaxDurationHours))
	}
	in.Message = strings.TrimSpace(in.Message)
	if len(in.Message) > maxMessageLen {
		return nil, apperrors.Validation(errMessageTooLong)
	}
	permissions := delegation.DefaultPermissions()
	if in.Permissions != nil {
		permissions = *in.Permissions
	}

	var out *delegation.Delegation
	err := m.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		if _, err := q.GetKeyForUpdate(ctx, in.KeyID); err != nil {
			return err
		}

		now := m.now()
		held, err := m.activeAssignment(ctx, q, in.KeyID, in.DelegatorID, now)
		if err != nil {
			return err
		}
		if err := m.clearDuplicates(ctx, q, batch, in, now); err != nil {
			return err
		}

		d := &delegation.Delegation{
			ID:           uuid.New(),
			KeyID:        in.KeyID,
			AssignmentID: held.ID,
			DelegatorID:  in.DelegatorID,
			DelegateID:   in.DelegateID,
			Message:      in.Message,
			Permissions:  permissions,
			Status:       delegation.StatusActive,
			SharedDate:   now,
			ExpiresAt:    now.Add(time.Duration(in.DurationHours) * time.Hour),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := q.InsertDelegation(ctx, d); err != nil {
			return err
		}
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeShared,
			KeyID:        d.KeyID,
			AssignmentID: &d.AssignmentID,
			DelegationID: &d.ID,
			ActorID:      d.DelegatorID,
			Details:      d.Message,
			Metadata: map[string]any{
				"delegateId":    d.DelegateID.String(),
				"durationHours": in.DurationHours,
				"canCollect":    permissions.CanCollect,
				"canReturn":     permissions.CanReturn,
				"canDelegate":   permissions.CanDelegate,
			},
		}); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("key shared",
		slog.String("delegation_id", out.ID.String()),
		slog.String("key_id", out.KeyID.String()),
		slog.String("delegate_id", out.DelegateID.String()),
	)
	return out, nil
}

// activeAssignment returns the delegator's assignment for key if it is
// active at now. Overdue holders cannot delegate.
func (m *Manager) activeAssignment(ctx context.Context, q repository.Queries, keyID, holderID uuid.UUID, now time.Time) (*assignment.Assignment, error) {
	held, err := q.ListAssignments(ctx, assignment.ListAssignmentsFilter{
		KeyID:    &keyID,
		HolderID: &holderID,
		Statuses: assignment.Held,
		Limit:    heldScanLimit,
	})
	if err != nil {
		return nil, err
	}
	for _, a := range held {
		if a.Evaluate(now).Status == assignment.StatusActive {
			return a, nil
		}
	}
	return nil, apperrors.Conflict(errDelegatorNotActive)
}

// clearDuplicates fails on a live duplicate grant and expires lapsed ones so
// the unique active-grant index does not block a fresh delegation.
func (m *Manager) clearDuplicates(ctx context.Context, q repository.Queries, batch *txlog.Batch, in DelegateInput, now time.Time) error {
	existing, err := q.ListDelegations(ctx, delegation.ListDelegationsFilter{
		KeyID:       &in.KeyID,
		DelegatorID: &in.DelegatorID,
		DelegateID:  &in.DelegateID,
		Statuses:    []delegation.Status{delegation.StatusActive},
		Limit:       heldScanLimit,
	})
	if err != nil {
		return err
	}
	for _, d := range existing {
		if d.IsActive(now) {
			return apperrors.Conflict(errDuplicateGrant)
		}
		if err := m.end(ctx, q, batch, d, delegation.StatusExpired, transaction.SystemActorID, reasonLapsed); err != nil {
			return err
		}
	}
	return nil
}

// Revoke ends an active delegation on the delegator's initiative.
func (m *Manager) Revoke(ctx context.Context, in EndInput) (*delegation.Delegation, error) {
	return m.finish(ctx, in, delegation.StatusRevoked, func(d *delegation.Delegation) error {
		if !in.Administrative && d.DelegatorID != in.ActorID {
			return apperrors.Permission(errOnlyDelegator)
		}
		return nil
	})
}

// Cancel lets either party withdraw an active delegation.
func (m *Manager) Cancel(ctx context.Context, in EndInput) (*delegation.Delegation, error) {
	return m.finish(ctx, in, delegation.StatusCancelled, func(d *delegation.Delegation) error {
		if !in.Administrative && !d.Involves(in.ActorID) {
			return apperrors.Permission(errNotParty)
		}
		return nil
	})
}

func (m *Manager) finish(ctx context.Context, in EndInput, to delegation.Status, authorize func(*delegation.Delegation) error) (*delegation.Delegation, error) {
	var out *delegation.Delegation
	err := m.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
		d, err := lockDelegation(ctx, q, in.DelegationID)
		if err != nil {
			return err
		}
		if err := authorize(d); err != nil {
			return err
		}
		if !d.IsActive(m.now()) {
			return apperrors.InvalidState(errNotActive)
		}
		if err := m.end(ctx, q, batch, d, to, in.ActorID, in.Reason); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EndForAssignment closes every delegation still stored as active on a.
// Lapsed grants are recorded as expired, live ones as cancelled.
func (m *Manager) EndForAssignment(ctx context.Context, q repository.Queries, batch *txlog.Batch, a *assignment.Assignment, actorID uuid.UUID, reason string) error {
	grants, err := q.ListDelegations(ctx, delegation.ListDelegationsFilter{
		AssignmentID: &a.ID,
		Statuses:     []delegation.Status{delegation.StatusActive},
		Limit:        grantScanLimit,
	})
	if err != nil {
		return err
	}

	now := m.now()
	for _, d := range grants {
		if d.IsActive(now) {
			err = m.end(ctx, q, batch, d, delegation.StatusCancelled, actorID, reason)
		} else {
			err = m.end(ctx, q, batch, d, delegation.StatusExpired, transaction.SystemActorID, reasonLapsed)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ExpireLapsed persists expiry for delegations past their end time and
// returns how many were expired. Each grant is ended in its own transaction;
// grants changed concurrently are skipped.
func (m *Manager) ExpireLapsed(ctx context.Context) (int, error) {
	lapsed, err := m.store.ListLapsedDelegations(ctx, m.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range lapsed {
		err := m.transition(ctx, func(q repository.Queries, batch *txlog.Batch) error {
			d, err := lockDelegation(ctx, q, candidate.ID)
			if err != nil {
				return err
			}
			if d.Status != delegation.StatusActive || d.IsActive(m.now()) {
				return apperrors.InvalidState(errNotActive)
			}
			return m.end(ctx, q, batch, d, delegation.StatusExpired, transaction.SystemActorID, reasonLapsed)
		})
		if errors.Is(err, apperrors.ErrInvalidState) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// Get returns the delegation with expiry evaluated for the current time.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*delegation.Delegation, error) {
	d, err := m.store.GetDelegation(ctx, id)
	if err != nil {
		return nil, err
	}
	evaluated := d.Evaluate(m.now())
	return &evaluated, nil
}

// List returns delegations with expiry evaluated; status filters match the
// evaluated status.
func (m *Manager) List(ctx context.Context, filter delegation.ListDelegationsFilter) ([]*delegation.Delegation, error) {
	wanted := make(map[delegation.Status]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		wanted[s] = true
	}
	if wanted[delegation.StatusExpired] && !wanted[delegation.StatusActive] {
		filter.Statuses = append(filter.Statuses, delegation.StatusActive)
	}

	rows, err := m.store.ListDelegations(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]*delegation.Delegation, 0, len(rows))
	for _, row := range rows {
		evaluated := row.Evaluate(now)
		if len(wanted) > 0 && !wanted[evaluated.Status] {
			continue
		}
		out = append(out, &evaluated)
	}
	return out, nil
}

func (m *Manager) end(ctx context.Context, q repository.Queries, batch *txlog.Batch, d *delegation.Delegation, to delegation.Status, actorID uuid.UUID, reason string) error {
	now := m.now()
	d.Status = to
	d.EndedAt = &now
	d.EndedBy = &actorID
	d.EndReason = strings.TrimSpace(reason)
	d.UpdatedAt = now
	if err := q.UpdateDelegation(ctx, d, delegation.StatusActive); err != nil {
		return err
	}

	_, err := batch.Record(ctx, txlog.Entry{
		Type:         endType(to),
		KeyID:        d.KeyID,
		AssignmentID: &d.AssignmentID,
		DelegationID: &d.ID,
		ActorID:      actorID,
		Metadata: map[string]any{
			"delegateId": d.DelegateID.String(),
			"reason":     d.EndReason,
		},
	})
	return err
}

func (m *Manager) transition(ctx context.Context, fn func(q repository.Queries, batch *txlog.Batch) error) error {
	var recorded []*transaction.Transaction
	err := m.store.WithinTx(ctx, func(q repository.Queries) error {
		batch := m.txlog.Batch(q)
		if err := fn(q, batch); err != nil {
			return err
		}
		recorded = batch.Recorded()
		return nil
	})
	if err != nil {
		return err
	}
	m.txlog.Publish(recorded...)
	return nil
}

func endType(status delegation.Status) transaction.Type {
	switch status {
	case delegation.StatusRevoked:
		return transaction.TypeShareRevoked
	case delegation.StatusExpired:
		return transaction.TypeShareExpired
	default:
		return transaction.TypeShareCancelled
	}
}

// lockDelegation locks the key before the delegation row.
func lockDelegation(ctx context.Context, q repository.Queries, id uuid.UUID) (*delegation.Delegation, error) {
	d, err := q.GetDelegation(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := q.GetKeyForUpdate(ctx, d.KeyID); err != nil {
		return nil, err
	}
	return q.GetDelegationForUpdate(ctx, id)
}
