package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/repository"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const assignmentColumns = `id, key_id, holder_id, grantor_id, access_type, status, reason,
	assigned_date, due_date, approved_at, approved_by,
	collected_at, collected_by, collection_verified_by,
	returned_at, returned_by, return_verified_by, return_reason, actual_duration_ms,
	cancelled_at, cancelled_by, cancel_reason,
	reminders_sent, last_reminder_sent, created_at, updated_at`

func scanAssignment(scan scanFunc) (*assignment.Assignment, error) {
	a := &assignment.Assignment{}
	var accessType, status string
	var assignedDate, dueDate, createdAt, updatedAt int64
	var approvedAt, collectedAt, returnedAt, cancelledAt, lastReminder, actualMs sql.NullInt64
	err := scan(
		&a.ID,
		&a.KeyID,
		&a.HolderID,
		&a.GrantorID,
		&accessType,
		&status,
		&a.Reason,
		&assignedDate,
		&dueDate,
		&approvedAt,
		&a.ApprovedBy,
		&collectedAt,
		&a.CollectedBy,
		&a.CollectionVerifiedBy,
		&returnedAt,
		&a.ReturnedBy,
		&a.ReturnVerifiedBy,
		&a.ReturnReason,
		&actualMs,
		&cancelledAt,
		&a.CancelledBy,
		&a.CancelReason,
		&a.RemindersSent,
		&lastReminder,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.AccessType = assignment.AccessType(accessType)
	a.Status = assignment.Status(status)
	a.AssignedDate = fromMillis(assignedDate)
	a.DueDate = fromMillis(dueDate)
	a.ApprovedAt = timePtr(approvedAt)
	a.CollectedAt = timePtr(collectedAt)
	a.ReturnedAt = timePtr(returnedAt)
	a.ActualDuration = durationPtr(actualMs)
	a.CancelledAt = timePtr(cancelledAt)
	a.LastReminderSent = timePtr(lastReminder)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

func (q *queries) InsertAssignment(ctx context.Context, a *assignment.Assignment) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO assignments (`+assignmentColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		a.ID,
		a.KeyID,
		a.HolderID,
		a.GrantorID,
		string(a.AccessType),
		string(a.Status),
		a.Reason,
		toMillis(a.AssignedDate),
		toMillis(a.DueDate),
		nullableMillis(a.ApprovedAt),
		a.ApprovedBy,
		nullableMillis(a.CollectedAt),
		a.CollectedBy,
		a.CollectionVerifiedBy,
		nullableMillis(a.ReturnedAt),
		a.ReturnedBy,
		a.ReturnVerifiedBy,
		a.ReturnReason,
		nullableDuration(a.ActualDuration),
		nullableMillis(a.CancelledAt),
		a.CancelledBy,
		a.CancelReason,
		a.RemindersSent,
		nullableMillis(a.LastReminderSent),
		toMillis(a.CreatedAt),
		toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(errKeyHasOutstanding)
		}
		if isForeignKeyViolation(err) {
			return apperrors.NotFound(errKeyNotFound)
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (q *queries) GetAssignment(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound(errAssignmentNotFound)
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (q *queries) GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	return q.GetAssignment(ctx, id)
}

func (q *queries) UpdateAssignment(ctx context.Context, a *assignment.Assignment, expected ...assignment.Status) error {
	f := &filter{}
	f.add("id = ?", a.ID)
	in(f, "status", expected)

	args := []any{
		a.GrantorID,
		string(a.Status),
		a.Reason,
		toMillis(a.DueDate),
		nullableMillis(a.ApprovedAt),
		a.ApprovedBy,
		nullableMillis(a.CollectedAt),
		a.CollectedBy,
		a.CollectionVerifiedBy,
		nullableMillis(a.ReturnedAt),
		a.ReturnedBy,
		a.ReturnVerifiedBy,
		a.ReturnReason,
		nullableDuration(a.ActualDuration),
		nullableMillis(a.CancelledAt),
		a.CancelledBy,
		a.CancelReason,
		a.RemindersSent,
		nullableMillis(a.LastReminderSent),
		toMillis(a.UpdatedAt),
	}

	result, err := q.db.ExecContext(ctx, `
UPDATE assignments SET
	grantor_id = ?, status = ?, reason = ?, due_date = ?,
	approved_at = ?, approved_by = ?,
	collected_at = ?, collected_by = ?, collection_verified_by = ?,
	returned_at = ?, returned_by = ?, return_verified_by = ?,
	return_reason = ?, actual_duration_ms = ?,
	cancelled_at = ?, cancelled_by = ?, cancel_reason = ?,
	reminders_sent = ?, last_reminder_sent = ?, updated_at = ?`+f.sql(),
		append(args, f.args...)...,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if affected == 0 {
		return apperrors.InvalidState(errAssignmentStateStale)
	}
	return nil
}

func (q *queries) ListAssignments(ctx context.Context, listFilter assignment.ListAssignmentsFilter) ([]*assignment.Assignment, error) {
	f := &filter{}
	if listFilter.KeyID != nil {
		f.add("key_id = ?", *listFilter.KeyID)
	}
	if listFilter.HolderID != nil {
		f.add("holder_id = ?", *listFilter.HolderID)
	}
	in(f, "status", listFilter.Statuses)

	query := `SELECT ` + assignmentColumns + ` FROM assignments` + f.sql() +
		` ORDER BY assigned_date DESC, id` + f.page(repository.NormalizeLimit(listFilter.Limit), listFilter.Offset)

	return q.queryAssignments(ctx, query, f.args...)
}

func (q *queries) ListOverdueCandidates(ctx context.Context, now time.Time) ([]*assignment.Assignment, error) {
	return q.queryAssignments(ctx, `
SELECT `+assignmentColumns+`
FROM assignments
WHERE status = 'overdue' OR (status = 'active' AND due_date < ?)
ORDER BY due_date, id
`, toMillis(now))
}

func (q *queries) queryAssignments(ctx context.Context, query string, args ...any) ([]*assignment.Assignment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]*assignment.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}
