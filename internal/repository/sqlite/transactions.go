package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"key-service/internal/domain/transaction"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const transactionColumns = `id, type, key_id, assignment_id, delegation_id, actor_id, details,
	status, error_message, retry_count, metadata_json, created_at, updated_at`

func scanTransaction(scan scanFunc) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}
	var txType, status string
	var metadata sql.NullString
	var createdAt, updatedAt int64
	err := scan(
		&t.ID,
		&txType,
		&t.KeyID,
		&t.AssignmentID,
		&t.DelegationID,
		&t.ActorID,
		&t.Details,
		&status,
		&t.ErrorMessage,
		&t.RetryCount,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Type = transaction.Type(txType)
	t.Status = transaction.Status(status)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	return t, nil
}

func (q *queries) AppendTransaction(ctx context.Context, t *transaction.Transaction) error {
	var metadata any
	if len(t.Metadata) > 0 {
		encoded, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("encode transaction metadata: %w", err)
		}
		metadata = string(encoded)
	}

	_, err := q.db.ExecContext(ctx, `
INSERT INTO transactions (`+transactionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		t.ID,
		string(t.Type),
		t.KeyID,
		t.AssignmentID,
		t.DelegationID,
		t.ActorID,
		t.Details,
		string(t.Status),
		t.ErrorMessage,
		t.RetryCount,
		metadata,
		toMillis(t.CreatedAt),
		toMillis(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound(errTransactionNotFound)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (q *queries) UpdateTransactionOutcome(ctx context.Context, t *transaction.Transaction) error {
	result, err := q.db.ExecContext(ctx, `
UPDATE transactions SET status = ?, error_message = ?, retry_count = ?, updated_at = ?
WHERE id = ?
`, string(t.Status), t.ErrorMessage, t.RetryCount, toMillis(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound(errTransactionNotFound)
	}
	return nil
}

func (q *queries) ListTransactions(ctx context.Context, listFilter transaction.ListTransactionsFilter) ([]*transaction.Transaction, error) {
	f := &filter{}
	if listFilter.KeyID != nil {
		f.add("key_id = ?", *listFilter.KeyID)
	}
	if listFilter.AssignmentID != nil {
		f.add("assignment_id = ?", *listFilter.AssignmentID)
	}
	if listFilter.DelegationID != nil {
		f.add("delegation_id = ?", *listFilter.DelegationID)
	}
	if listFilter.ActorID != nil {
		f.add("actor_id = ?", *listFilter.ActorID)
	}
	in(f, "type", listFilter.Types)
	in(f, "status", listFilter.Statuses)
	if listFilter.Since != nil {
		f.add("created_at >= ?", toMillis(*listFilter.Since))
	}
	if listFilter.Until != nil {
		f.add("created_at < ?", toMillis(*listFilter.Until))
	}
	if listFilter.MaxRetries != nil {
		f.add("retry_count < ?", *listFilter.MaxRetries)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + f.sql() +
		` ORDER BY created_at DESC, id DESC` + f.page(repository.NormalizeLimit(listFilter.Limit), listFilter.Offset)

	rows, err := q.db.QueryContext(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*transaction.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
