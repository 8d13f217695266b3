package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"key-service/internal/domain/delegation"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const delegationColumns = `id, key_id, assignment_id, delegator_id, delegate_id, message,
	can_collect, can_return, can_delegate, status, shared_date, expires_at,
	ended_at, ended_by, end_reason, created_at, updated_at`

func scanDelegation(scan scanFunc) (*delegation.Delegation, error) {
	d := &delegation.Delegation{}
	var canCollect, canReturn, canDelegate int
	var status string
	var sharedDate, expiresAt, createdAt, updatedAt int64
	var endedAt sql.NullInt64
	err := scan(
		&d.ID,
		&d.KeyID,
		&d.AssignmentID,
		&d.DelegatorID,
		&d.DelegateID,
		&d.Message,
		&canCollect,
		&canReturn,
		&canDelegate,
		&status,
		&sharedDate,
		&expiresAt,
		&endedAt,
		&d.EndedBy,
		&d.EndReason,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Permissions = delegation.Permissions{
		CanCollect:  canCollect == 1,
		CanReturn:   canReturn == 1,
		CanDelegate: canDelegate == 1,
	}
	d.Status = delegation.Status(status)
	d.SharedDate = fromMillis(sharedDate)
	d.ExpiresAt = fromMillis(expiresAt)
	d.EndedAt = timePtr(endedAt)
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updatedAt)
	return d, nil
}

func (q *queries) InsertDelegation(ctx context.Context, d *delegation.Delegation) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO delegations (`+delegationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		d.ID,
		d.KeyID,
		d.AssignmentID,
		d.DelegatorID,
		d.DelegateID,
		d.Message,
		boolInt(d.Permissions.CanCollect),
		boolInt(d.Permissions.CanReturn),
		boolInt(d.Permissions.CanDelegate),
		string(d.Status),
		toMillis(d.SharedDate),
		toMillis(d.ExpiresAt),
		nullableMillis(d.EndedAt),
		d.EndedBy,
		d.EndReason,
		toMillis(d.CreatedAt),
		toMillis(d.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(errDuplicateDelegation)
		}
		if isForeignKeyViolation(err) {
			return apperrors.NotFound(errAssignmentNotFound)
		}
		return fmt.Errorf("create delegation: %w", err)
	}
	return nil
}

func (q *queries) GetDelegation(ctx context.Context, id uuid.UUID) (*delegation.Delegation, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE id = ?`, id)
	d, err := scanDelegation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound(errDelegationNotFound)
		}
		return nil, fmt.Errorf("get delegation: %w", err)
	}
	return d, nil
}

func (q *queries) GetDelegationForUpdate(ctx context.Context, id uuid.UUID) (*delegation.Delegation, error) {
	return q.GetDelegation(ctx, id)
}

func (q *queries) UpdateDelegation(ctx context.Context, d *delegation.Delegation, expected ...delegation.Status) error {
	f := &filter{}
	f.add("id = ?", d.ID)
	in(f, "status", expected)

	args := []any{
		string(d.Status),
		toMillis(d.ExpiresAt),
		nullableMillis(d.EndedAt),
		d.EndedBy,
		d.EndReason,
		toMillis(d.UpdatedAt),
	}

	result, err := q.db.ExecContext(ctx, `
UPDATE delegations
SET status = ?, expires_at = ?, ended_at = ?, ended_by = ?, end_reason = ?, updated_at = ?`+f.sql(),
		append(args, f.args...)...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(errDuplicateDelegation)
		}
		return fmt.Errorf("update delegation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delegation: %w", err)
	}
	if affected == 0 {
		return apperrors.InvalidState(errDelegationStateStale)
	}
	return nil
}

func (q *queries) ListDelegations(ctx context.Context, listFilter delegation.ListDelegationsFilter) ([]*delegation.Delegation, error) {
	f := &filter{}
	if listFilter.KeyID != nil {
		f.add("key_id = ?", *listFilter.KeyID)
	}
	if listFilter.AssignmentID != nil {
		f.add("assignment_id = ?", *listFilter.AssignmentID)
	}
	if listFilter.DelegatorID != nil {
		f.add("delegator_id = ?", *listFilter.DelegatorID)
	}
	if listFilter.DelegateID != nil {
		f.add("delegate_id = ?", *listFilter.DelegateID)
	}
	in(f, "status", listFilter.Statuses)

	query := `SELECT ` + delegationColumns + ` FROM delegations` + f.sql() +
		` ORDER BY shared_date DESC, id` + f.page(repository.NormalizeLimit(listFilter.Limit), listFilter.Offset)

	return q.queryDelegations(ctx, query, f.args...)
}

func (q *queries) ListLapsedDelegations(ctx context.Context, now time.Time) ([]*delegation.Delegation, error) {
	return q.queryDelegations(ctx, `
SELECT `+delegationColumns+`
FROM delegations
WHERE status = 'active' AND expires_at < ?
ORDER BY expires_at, id
`, toMillis(now))
}

func (q *queries) queryDelegations(ctx context.Context, query string, args ...any) ([]*delegation.Delegation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	defer rows.Close()

	delegations := make([]*delegation.Delegation, 0)
	for rows.Next() {
		d, err := scanDelegation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan delegation: %w", err)
		}
		delegations = append(delegations, d)
	}
	return delegations, rows.Err()
}
