package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"key-service/internal/domain/transaction"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `
	id, type, key_id, assignment_id, delegation_id, actor_id, details,
	status, error_message, retry_count, metadata, created_at, updated_at
`

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}
	var txType, status string
	var metadata []byte
	err := row.Scan(
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
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Type = transaction.Type(txType)
	t.Status = transaction.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, errFailedDecodeMetadata(err)
		}
	}
	return t, nil
}

func (q *queries) AppendTransaction(ctx context.Context, t *transaction.Transaction) error {
	var metadata []byte
	if len(t.Metadata) > 0 {
		encoded, err := json.Marshal(t.Metadata)
		if err != nil {
			return errFailedEncodeMetadata(err)
		}
		metadata = encoded
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := q.db.Exec(ctx, query,
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
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return errFailedAppendTransaction(err)
	}

	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(errTransactionNotFound)
		}
		return nil, errFailedGetTransaction(err)
	}
	return t, nil
}

func (q *queries) UpdateTransactionOutcome(ctx context.Context, t *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $2, error_message = $3, retry_count = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := q.db.Exec(ctx, query, t.ID, string(t.Status), t.ErrorMessage, t.RetryCount, t.UpdatedAt)
	if err != nil {
		return errFailedUpdateTransaction(err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound(errTransactionNotFound)
	}

	return nil
}

func (q *queries) ListTransactions(ctx context.Context, filter transaction.ListTransactionsFilter) ([]*transaction.Transaction, error) {
	w := &whereBuilder{}
	if filter.KeyID != nil {
		w.add("key_id = $%d", *filter.KeyID)
	}
	if filter.AssignmentID != nil {
		w.add("assignment_id = $%d", *filter.AssignmentID)
	}
	if filter.DelegationID != nil {
		w.add("delegation_id = $%d", *filter.DelegationID)
	}
	if filter.ActorID != nil {
		w.add("actor_id = $%d", *filter.ActorID)
	}
	if len(filter.Types) > 0 {
		w.add("type = ANY($%d)", stringSlice(filter.Types))
	}
	if len(filter.Statuses) > 0 {
		w.add("status = ANY($%d)", stringSlice(filter.Statuses))
	}
	if filter.Since != nil {
		w.add("created_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		w.add("created_at < $%d", *filter.Until)
	}
	if filter.MaxRetries != nil {
		w.add("retry_count < $%d", *filter.MaxRetries)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + w.sql() +
		` ORDER BY created_at DESC, id DESC` + w.page(repository.NormalizeLimit(filter.Limit), filter.Offset)

	rows, err := q.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, errFailedListTransactions(err)
	}
	defer rows.Close()

	transactions := make([]*transaction.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errFailedScanTransaction(err)
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}
