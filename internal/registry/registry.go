// Package registry owns keys and their derived holder status.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/repository"
	"key-service/internal/txlog"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const (
	errNameRequired        = "key name is required"
	errNegativeMaxDuration = "max assignment duration cannot be negative"
	errStatusNotSettable   = "assigned is derived from assignments and cannot be set"
	errKeyOutstanding      = "key has an outstanding assignment"
	errKeyRetired          = "key is retired"
	outstandingLookupLimit = 10
)

// RecomputeKeyStatus derives a key's status from its assignments. A held
// assignment wins; otherwise an administrative override applies.
func RecomputeKeyStatus(k *key.Key, assignments []*assignment.Assignment) key.Status {
	for _, a := range assignments {
		if a.KeyID == k.ID && a.Status.IsHeld() {
			return key.StatusAssigned
		}
	}
	if k.Override.IsOverride() {
		return k.Override
	}
	return key.StatusAvailable
}

// Availability maps a key to the externally reported view.
func Availability(k *key.Key) key.Availability {
	switch k.Status {
	case key.StatusAssigned:
		return key.AvailabilityHeld
	case key.StatusMaintenance:
		return key.AvailabilityMaintenance
	case key.StatusLost:
		return key.AvailabilityLost
	default:
		return key.AvailabilityAvailable
	}
}

type Registry struct {
	store  repository.Store
	txlog  *txlog.Log
	now    func() time.Time
	logger *slog.Logger
}

func New(store repository.Store, log *txlog.Log, now func() time.Time, logger *slog.Logger) *Registry {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, txlog: log, now: now, logger: logger}
}

func (r *Registry) CreateKey(ctx context.Context, in key.CreateKeyInput) (*key.Key, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperrors.Validation(errNameRequired)
	}
	if in.MaxAssignmentDuration < 0 {
		return nil, apperrors.Validation(errNegativeMaxDuration)
	}

	now := r.now()
	k := &key.Key{
		ID:                    uuid.New(),
		Name:                  in.Name,
		Department:            strings.TrimSpace(in.Department),
		Location:              strings.TrimSpace(in.Location),
		RequiresApproval:      in.RequiresApproval,
		MaxAssignmentDuration: in.MaxAssignmentDuration,
		Status:                key.StatusAvailable,
		CreatedBy:             in.CreatedBy,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	var recorded []*transaction.Transaction
	err := r.store.WithinTx(ctx, func(q repository.Queries) error {
		if err := q.CreateKey(ctx, k); err != nil {
			return err
		}
		batch := r.txlog.Batch(q)
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:    transaction.TypeKeyCreated,
			KeyID:   k.ID,
			ActorID: in.CreatedBy,
		}); err != nil {
			return err
		}
		recorded = batch.Recorded()
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.txlog.Publish(recorded...)
	r.logger.Info("key created", slog.String("key_id", k.ID.String()), slog.String("name", k.Name))
	return k, nil
}

func (r *Registry) GetKey(ctx context.Context, id uuid.UUID) (*key.Key, error) {
	return r.store.GetKey(ctx, id)
}

func (r *Registry) ListKeys(ctx context.Context, filter key.ListKeysFilter) ([]*key.Key, error) {
	if filter.Status != "" {
		if err := filter.Status.Validate(); err != nil {
			return nil, apperrors.Validation(err.Error())
		}
	}
	return r.store.ListKeys(ctx, filter)
}

// SetAdministrativeStatus applies or clears a maintenance/lost override.
func (r *Registry) SetAdministrativeStatus(ctx context.Context, keyID uuid.UUID, status key.Status, actorID uuid.UUID) (*key.Key, error) {
	if err := status.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if status == key.StatusAssigned {
		return nil, apperrors.Validation(errStatusNotSettable)
	}

	var out *key.Key
	var recorded []*transaction.Transaction
	err := r.store.WithinTx(ctx, func(q repository.Queries) error {
		k, err := r.lockIdle(ctx, q, keyID)
		if err != nil {
			return err
		}

		previous := k.Status
		k.Override = ""
		if status.IsOverride() {
			k.Override = status
		}
		k.Status = RecomputeKeyStatus(k, nil)
		k.UpdatedAt = r.now()
		if err := q.UpdateKeyState(ctx, k); err != nil {
			return err
		}

		batch := r.txlog.Batch(q)
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:    transaction.TypeKeyStatusChanged,
			KeyID:   k.ID,
			ActorID: actorID,
			Metadata: map[string]any{
				"from": string(previous),
				"to":   string(k.Status),
			},
		}); err != nil {
			return err
		}
		recorded = batch.Recorded()
		out = k
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.txlog.Publish(recorded...)
	return out, nil
}

// RetireKey soft-deletes a key. History is kept; new requests are refused.
func (r *Registry) RetireKey(ctx context.Context, keyID uuid.UUID, actorID uuid.UUID) (*key.Key, error) {
	var out *key.Key
	var recorded []*transaction.Transaction
	err := r.store.WithinTx(ctx, func(q repository.Queries) error {
		k, err := r.lockIdle(ctx, q, keyID)
		if err != nil {
			return err
		}
		if k.IsRetired() {
			return apperrors.InvalidState(errKeyRetired)
		}

		now := r.now()
		k.RetiredAt = &now
		k.UpdatedAt = now
		if err := q.UpdateKeyState(ctx, k); err != nil {
			return err
		}

		batch := r.txlog.Batch(q)
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:    transaction.TypeKeyRetired,
			KeyID:   k.ID,
			ActorID: actorID,
		}); err != nil {
			return err
		}
		recorded = batch.Recorded()
		out = k
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.txlog.Publish(recorded...)
	return out, nil
}

// Sync recomputes and stores the derived status of keyID using q, which must
// belong to the transaction that changed the key's assignments.
func (r *Registry) Sync(ctx context.Context, q repository.Queries, keyID uuid.UUID) (*key.Key, error) {
	k, err := q.GetKeyForUpdate(ctx, keyID)
	if err != nil {
		return nil, err
	}
	held, err := q.ListAssignments(ctx, assignment.ListAssignmentsFilter{
		KeyID:    &keyID,
		Statuses: assignment.Held,
		Limit:    outstandingLookupLimit,
	})
	if err != nil {
		return nil, err
	}

	status := RecomputeKeyStatus(k, held)
	if status == k.Status {
		return k, nil
	}
	k.Status = status
	k.UpdatedAt = r.now()
	if err := q.UpdateKeyState(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// lockIdle loads a key for update and fails if it has an outstanding assignment.
func (r *Registry) lockIdle(ctx context.Context, q repository.Queries, keyID uuid.UUID) (*key.Key, error) {
	k, err := q.GetKeyForUpdate(ctx, keyID)
	if err != nil {
		return nil, err
	}
	outstanding, err := q.ListAssignments(ctx, assignment.ListAssignmentsFilter{
		KeyID:    &keyID,
		Statuses: assignment.Outstanding,
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(outstanding) > 0 {
		return nil, apperrors.Conflict(errKeyOutstanding)
	}
	return k, nil
}
