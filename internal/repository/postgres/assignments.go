package postgres

import (
	"context"
	"errors"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const assignmentColumns = `
	id, key_id, holder_id, grantor_id, access_type, status, reason,
	assigned_date, due_date, approved_at, approved_by,
	collected_at, collected_by, collection_verified_by,
	returned_at, returned_by, return_verified_by, return_reason, actual_duration_ms,
	cancelled_at, cancelled_by, cancel_reason,
	reminders_sent, last_reminder_sent, created_at, updated_at
`

func scanAssignment(row pgx.Row) (*assignment.Assignment, error) {
	a := &assignment.Assignment{}
	var accessType, status string
	var actualMs *int64
	err := row.Scan(
		&a.ID,
		&a.KeyID,
		&a.HolderID,
		&a.GrantorID,
		&accessType,
		&status,
		&a.Reason,
		&a.AssignedDate,
		&a.DueDate,
		&a.ApprovedAt,
		&a.ApprovedBy,
		&a.CollectedAt,
		&a.CollectedBy,
		&a.CollectionVerifiedBy,
		&a.ReturnedAt,
		&a.ReturnedBy,
		&a.ReturnVerifiedBy,
		&a.ReturnReason,
		&actualMs,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CancelReason,
		&a.RemindersSent,
		&a.LastReminderSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.AccessType = assignment.AccessType(accessType)
	a.Status = assignment.Status(status)
	a.ActualDuration = millisDuration(actualMs)
	return a, nil
}

func assignmentArgs(a *assignment.Assignment) []any {
	return []any{
		a.ID,
		a.KeyID,
		a.HolderID,
		a.GrantorID,
		string(a.AccessType),
		string(a.Status),
		a.Reason,
		a.AssignedDate,
		a.DueDate,
		a.ApprovedAt,
		a.ApprovedBy,
		a.CollectedAt,
		a.CollectedBy,
		a.CollectionVerifiedBy,
		a.ReturnedAt,
		a.ReturnedBy,
		a.ReturnVerifiedBy,
		a.ReturnReason,
		durationMillis(a.ActualDuration),
		a.CancelledAt,
		a.CancelledBy,
		a.CancelReason,
		a.RemindersSent,
		a.LastReminderSent,
		a.CreatedAt,
		a.UpdatedAt,
	}
}

func (q *queries) InsertAssignment(ctx context.Context, a *assignment.Assignment) error {
	query := `
		INSERT INTO assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`

	if _, err := q.db.Exec(ctx, query, assignmentArgs(a)...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(errKeyHasOutstanding)
		}
		if isForeignKeyViolation(err) {
			return apperrors.NotFound(errKeyNotFound)
		}
		return errFailedCreateAssignment(err)
	}

	return nil
}

func (q *queries) GetAssignment(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	return q.getAssignment(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
}

func (q *queries) GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	return q.getAssignment(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id)
}

func (q *queries) getAssignment(ctx context.Context, query string, id uuid.UUID) (*assignment.Assignment, error) {
	a, err := scanAssignment(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(errAssignmentNotFound)
		}
		return nil, errFailedGetAssignment(err)
	}
	return a, nil
}

func (q *queries) UpdateAssignment(ctx context.Context, a *assignment.Assignment, expected ...assignment.Status) error {
	query := `
		UPDATE assignments SET
			grantor_id = $2, status = $3, reason = $4, due_date = $5,
			approved_at = $6, approved_by = $7,
			collected_at = $8, collected_by = $9, collection_verified_by = $10,
			returned_at = $11, returned_by = $12, return_verified_by = $13,
			return_reason = $14, actual_duration_ms = $15,
			cancelled_at = $16, cancelled_by = $17, cancel_reason = $18,
			reminders_sent = $19, last_reminder_sent = $20, updated_at = $21
		WHERE id = $1 AND status = ANY($22)
	`

	result, err := q.db.Exec(ctx, query,
		a.ID,
		a.GrantorID,
		string(a.Status),
		a.Reason,
		a.DueDate,
		a.ApprovedAt,
		a.ApprovedBy,
		a.CollectedAt,
		a.CollectedBy,
		a.CollectionVerifiedBy,
		a.ReturnedAt,
		a.ReturnedBy,
		a.ReturnVerifiedBy,
		a.ReturnReason,
		durationMillis(a.ActualDuration),
		a.CancelledAt,
		a.CancelledBy,
		a.CancelReason,
		a.RemindersSent,
		a.LastReminderSent,
		a.UpdatedAt,
		stringSlice(expected),
	)
	if err != nil {
		return errFailedUpdateAssignment(err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.InvalidState(errAssignmentStateStale)
	}

	return nil
}

func (q *queries) ListAssignments(ctx context.Context, filter assignment.ListAssignmentsFilter) ([]*assignment.Assignment, error) {
	w := &whereBuilder{}
	if filter.KeyID != nil {
		w.add("key_id = $%d", *filter.KeyID)
	}
	if filter.HolderID != nil {
		w.add("holder_id = $%d", *filter.HolderID)
	}
	if len(filter.Statuses) > 0 {
		w.add("status = ANY($%d)", stringSlice(filter.Statuses))
	}

	query := `SELECT ` + assignmentColumns + ` FROM assignments` + w.sql() +
		` ORDER BY assigned_date DESC, id` + w.page(repository.NormalizeLimit(filter.Limit), filter.Offset)

	return q.queryAssignments(ctx, query, w.args...)
}

func (q *queries) ListOverdueCandidates(ctx context.Context, now time.Time) ([]*assignment.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE status = 'overdue' OR (status = 'active' AND due_date < $1)
		ORDER BY due_date, id
	`
	return q.queryAssignments(ctx, query, now)
}

func (q *queries) queryAssignments(ctx context.Context, query string, args ...any) ([]*assignment.Assignment, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errFailedListAssignments(err)
	}
	defer rows.Close()

	assignments := make([]*assignment.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, errFailedScanAssignment(err)
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}
