package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"key-service/internal/domain/key"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const keyColumns = `id, name, department, location, requires_approval, max_assignment_ms,
	status, override, retired_at, created_by, created_at, updated_at`

type scanFunc func(dest ...any) error

func scanKey(scan scanFunc) (*key.Key, error) {
	k := &key.Key{}
	var requiresApproval int
	var maxMs, createdAt, updatedAt int64
	var status, override string
	var retiredAt sql.NullInt64
	err := scan(
		&k.ID,
		&k.Name,
		&k.Department,
		&k.Location,
		&requiresApproval,
		&maxMs,
		&status,
		&override,
		&retiredAt,
		&k.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	k.RequiresApproval = requiresApproval == 1
	k.MaxAssignmentDuration = time.Duration(maxMs) * time.Millisecond
	k.Status = key.Status(status)
	k.Override = key.Status(override)
	k.RetiredAt = timePtr(retiredAt)
	k.CreatedAt = fromMillis(createdAt)
	k.UpdatedAt = fromMillis(updatedAt)
	return k, nil
}

func (q *queries) CreateKey(ctx context.Context, k *key.Key) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO keys (`+keyColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		k.ID,
		k.Name,
		k.Department,
		k.Location,
		boolInt(k.RequiresApproval),
		k.MaxAssignmentDuration.Milliseconds(),
		string(k.Status),
		string(k.Override),
		nullableMillis(k.RetiredAt),
		k.CreatedBy,
		toMillis(k.CreatedAt),
		toMillis(k.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(errKeyExists)
		}
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

// GetKey loads one key.
func (q *queries) GetKey(ctx context.Context, id uuid.UUID) (*key.Key, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM keys WHERE id = ?`, id)
	k, err := scanKey(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound(errKeyNotFound)
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	return k, nil
}

// GetKeyForUpdate is GetKey; transactions take the write lock at BEGIN.
func (q *queries) GetKeyForUpdate(ctx context.Context, id uuid.UUID) (*key.Key, error) {
	return q.GetKey(ctx, id)
}

func (q *queries) ListKeys(ctx context.Context, listFilter key.ListKeysFilter) ([]*key.Key, error) {
	f := &filter{}
	if listFilter.Department != "" {
		f.add("department = ?", listFilter.Department)
	}
	if listFilter.Status != "" {
		f.add("status = ?", string(listFilter.Status))
	}
	if !listFilter.IncludeRetired {
		f.raw("retired_at IS NULL")
	}

	query := `SELECT ` + keyColumns + ` FROM keys` + f.sql() + ` ORDER BY name, id` +
		f.page(repository.NormalizeLimit(listFilter.Limit), listFilter.Offset)

	rows, err := q.db.QueryContext(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*key.Key, 0)
	for rows.Next() {
		k, err := scanKey(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (q *queries) UpdateKeyState(ctx context.Context, k *key.Key) error {
	result, err := q.db.ExecContext(ctx, `
UPDATE keys SET status = ?, override = ?, retired_at = ?, updated_at = ?
WHERE id = ?
`, string(k.Status), string(k.Override), nullableMillis(k.RetiredAt), toMillis(k.UpdatedAt), k.ID)
	if err != nil {
		return fmt.Errorf("update key state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update key state: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound(errKeyNotFound)
	}
	return nil
}
