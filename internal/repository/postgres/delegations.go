package postgres

import (
	"context"
	"errors"
	"time"

	"key-service/internal/domain/delegation"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const delegationColumns = `
	id, key_id, assignment_id, delegator_id, delegate_id, message,
	can_collect, can_return, can_delegate, status, shared_date, expires_at,
	ended_at, ended_by, end_reason, created_at, updated_at
`

func scanDelegation(row pgx.Row) (*delegation.Delegation, error) {
	d := &delegation.Delegation{}
	var status string
	err := row.Scan(
		&d.ID,
		&d.KeyID,
		&d.AssignmentID,
		&d.DelegatorID,
		&d.DelegateID,
		&d.Message,
		&d.Permissions.CanCollect,
		&d.Permissions.CanReturn,
		&d.Permissions.CanDelegate,
		&status,
		&d.SharedDate,
		&d.ExpiresAt,
		&d.EndedAt,
		&d.EndedBy,
		&d.EndReason,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = delegation.Status(status)
	return d, nil
}

func (q *queries) InsertDelegation(ctx context.Context, d *delegation.Delegation) error {
	query := `
		INSERT INTO delegations (` + delegationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := q.db.Exec(ctx, query,
		d.ID,
		d.KeyID,
		d.AssignmentID,
		d.DelegatorID,
		d.DelegateID,
		d.Message,
		d.Permissions.CanCollect,
		d.Permissions.CanReturn,
		d.Permissions.CanDelegate,
		string(d.Status),
		d.SharedDate,
		d.ExpiresAt,
		d.EndedAt,
		d.EndedBy,
		d.EndReason,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(errDuplicateDelegation)
		}
		if isForeignKeyViolation(err) {
			return apperrors.NotFound(errAssignmentNotFound)
		}
		return errFailedCreateDelegation(err)
	}

	return nil
}

func (q *queries) GetDelegation(ctx context.Context, id uuid.UUID) (*delegation.Delegation, error) {
	return q.getDelegation(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE id = $1`, id)
}

func (q *queries) GetDelegationForUpdate(ctx context.Context, id uuid.UUID) (*delegation.Delegation, error) {
	return q.getDelegation(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) getDelegation(ctx context.Context, query string, id uuid.UUID) (*delegation.Delegation, error) {
	d, err := scanDelegation(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(errDelegationNotFound)
		}
		return nil, errFailedGetDelegation(err)
	}
	return d, nil
}

func (q *queries) UpdateDelegation(ctx context.Context, d *delegation.Delegation, expected ...delegation.Status) error {
	query := `
		UPDATE delegations
		SET status = $2, expires_at = $3, ended_at = $4, ended_by = $5, end_reason = $6, updated_at = $7
		WHERE id = $1 AND status = ANY($8)
	`

	result, err := q.db.Exec(ctx, query,
		d.ID,
		string(d.Status),
		d.ExpiresAt,
		d.EndedAt,
		d.EndedBy,
		d.EndReason,
		d.UpdatedAt,
		stringSlice(expected),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(errDuplicateDelegation)
		}
		return errFailedUpdateDelegation(err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.InvalidState(errDelegationStateStale)
	}

	return nil
}

func (q *queries) ListDelegations(ctx context.Context, filter delegation.ListDelegationsFilter) ([]*delegation.Delegation, error) {
	w := &whereBuilder{}
	if filter.KeyID != nil {
		w.add("key_id = $%d", *filter.KeyID)
	}
	if filter.AssignmentID != nil {
		w.add("assignment_id = $%d", *filter.AssignmentID)
	}
	if filter.DelegatorID != nil {
		w.add("delegator_id = $%d", *filter.DelegatorID)
	}
	if filter.DelegateID != nil {
		w.add("delegate_id = $%d", *filter.DelegateID)
	}
	if len(filter.Statuses) > 0 {
		w.add("status = ANY($%d)", stringSlice(filter.Statuses))
	}

	query := `SELECT ` + delegationColumns + ` FROM delegations` + w.sql() +
		` ORDER BY shared_date DESC, id` + w.page(repository.NormalizeLimit(filter.Limit), filter.Offset)

	return q.queryDelegations(ctx, query, w.args...)
}

func (q *queries) ListLapsedDelegations(ctx context.Context, now time.Time) ([]*delegation.Delegation, error) {
	query := `
		SELECT ` + delegationColumns + `
		FROM delegations
		WHERE status = 'active' AND expires_at < $1
		ORDER BY expires_at, id
	`
	return q.queryDelegations(ctx, query, now)
}

func (q *queries) queryDelegations(ctx context.Context, query string, args ...any) ([]*delegation.Delegation, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errFailedListDelegations(err)
	}
	defer rows.Close()

	delegations := make([]*delegation.Delegation, 0)
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, errFailedScanDelegation(err)
		}
		delegations = append(delegations, d)
	}

	return delegations, rows.Err()
}
