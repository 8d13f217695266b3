package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	errKeyNotFound          = "key not found"
	errAssignmentNotFound   = "assignment not found"
	errDelegationNotFound   = "delegation not found"
	errTransactionNotFound  = "transaction not found"
	errKeyExists            = "key already exists"
	errKeyHasOutstanding    = "key already has an outstanding assignment"
	errDuplicateDelegation  = "an active delegation to this delegate already exists for the key"
	errAssignmentStateStale = "assignment is no longer in the expected state"
	errDelegationStateStale = "delegation is no longer in the expected state"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullableMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

func timePtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func durationPtr(value sql.NullInt64) *time.Duration {
	if !value.Valid {
		return nil
	}
	d := time.Duration(value.Int64) * time.Millisecond
	return &d
}

func nullableDuration(value *time.Duration) any {
	if value == nil {
		return nil
	}
	return value.Milliseconds()
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

// filter accumulates positional predicates for dynamic list queries.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, arg any) {
	f.clauses = append(f.clauses, clause)
	f.args = append(f.args, arg)
}

func (f *filter) raw(clause string) {
	f.clauses = append(f.clauses, clause)
}

func in[T ~string](f *filter, column string, values []T) {
	if len(values) == 0 {
		return
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		f.args = append(f.args, string(v))
	}
	f.clauses = append(f.clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(marks, ", ")))
}

func (f *filter) sql() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

func (f *filter) page(limit, offset int) string {
	f.args = append(f.args, limit, offset)
	return " LIMIT ? OFFSET ?"
}
