package postgres

import (
	"context"
	"errors"
	"time"

	"key-service/internal/domain/key"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const keyColumns = `
	id, name, department, location, requires_approval, max_assignment_ms,
	status, override, retired_at, created_by, created_at, updated_at
`

func scanKey(row pgx.Row) (*key.Key, error) {
	k := &key.Key{}
	var maxMs int64
	var status, override string
	err := row.Scan(
		&k.ID,
		&k.Name,
		&k.Department,
		&k.Location,
		&k.RequiresApproval,
		&maxMs,
		&status,
		&override,
		&k.RetiredAt,
		&k.CreatedBy,
		&k.CreatedAt,
		&k.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	k.MaxAssignmentDuration = time.Duration(maxMs) * time.Millisecond
	k.Status = key.Status(status)
	k.Override = key.Status(override)
	return k, nil
}

func (q *queries) CreateKey(ctx context.Context, k *key.Key) error {
	query := `
		INSERT INTO keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := q.db.Exec(ctx, query,
		k.ID,
		k.Name,
		k.Department,
		k.Location,
		k.RequiresApproval,
		k.MaxAssignmentDuration.Milliseconds(),
		string(k.Status),
		string(k.Override),
		k.RetiredAt,
		k.CreatedBy,
		k.CreatedAt,
		k.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("key already exists")
		}
		return errFailedCreateKey(err)
	}

	return nil
}

func (q *queries) GetKey(ctx context.Context, id uuid.UUID) (*key.Key, error) {
	return q.getKey(ctx, `SELECT `+keyColumns+` FROM keys WHERE id = $1`, id)
}

func (q *queries) GetKeyForUpdate(ctx context.Context, id uuid.UUID) (*key.Key, error) {
	return q.getKey(ctx, `SELECT `+keyColumns+` FROM keys WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) getKey(ctx context.Context, query string, id uuid.UUID) (*key.Key, error) {
	k, err := scanKey(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(errKeyNotFound)
		}
		return nil, errFailedGetKey(err)
	}
	return k, nil
}

func (q *queries) ListKeys(ctx context.Context, filter key.ListKeysFilter) ([]*key.Key, error) {
	w := &whereBuilder{}
	if filter.Department != "" {
		w.add("department = $%d", filter.Department)
	}
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}
	if !filter.IncludeRetired {
		w.clauses = append(w.clauses, "retired_at IS NULL")
	}

	query := `SELECT ` + keyColumns + ` FROM keys` + w.sql() + ` ORDER BY name, id` +
		w.page(repository.NormalizeLimit(filter.Limit), filter.Offset)

	rows, err := q.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, errFailedListKeys(err)
	}
	defer rows.Close()

	keys := make([]*key.Key, 0)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, errFailedScanKey(err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

func (q *queries) UpdateKeyState(ctx context.Context, k *key.Key) error {
	query := `
		UPDATE keys
		SET status = $2, override = $3, retired_at = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := q.db.Exec(ctx, query, k.ID, string(k.Status), string(k.Override), k.RetiredAt, k.UpdatedAt)
	if err != nil {
		return errFailedUpdateKeyState(err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound(errKeyNotFound)
	}

	return nil
}
