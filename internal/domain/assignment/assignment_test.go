package assignment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status Status
		now    time.Time
		want   Status
	}{
		{"active before due", StatusActive, due.Add(-time.Hour), StatusActive},
		{"active exactly at due", StatusActive, due, StatusActive},
		{"active past due", StatusActive, due.Add(time.Minute), StatusOverdue},
		{"pending past due stays pending", StatusPending, due.Add(time.Hour), StatusPending},
		{"returned past due stays returned", StatusReturned, due.Add(time.Hour), StatusReturned},
		{"overdue stays overdue", StatusOverdue, due.Add(time.Hour), StatusOverdue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assignment{Status: tt.status, DueDate: due}
			got := a.Evaluate(tt.now)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.status, a.Status, "evaluate must not mutate the receiver")
		})
	}
}

func TestDaysOverdue(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := Assignment{DueDate: due}

	assert.Equal(t, 0, a.DaysOverdue(due.Add(-time.Hour)))
	assert.Equal(t, 0, a.DaysOverdue(due.Add(23*time.Hour)))
	assert.Equal(t, 1, a.DaysOverdue(due.Add(24*time.Hour)))
	assert.Equal(t, 15, a.DaysOverdue(due.Add(15*24*time.Hour+time.Hour)))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusReturned, false},
		{StatusActive, StatusOverdue, true},
		{StatusOverdue, StatusActive, true},
		{StatusOverdue, StatusReturned, true},
		{StatusActive, StatusCancelled, true},
		{StatusReturned, StatusActive, false},
		{StatusCancelled, StatusCancelled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusClassification(t *testing.T) {
	for _, s := range Outstanding {
		assert.True(t, s.IsOutstanding())
		assert.False(t, s.IsTerminal())
	}
	for _, s := range Held {
		assert.True(t, s.IsHeld())
	}
	assert.False(t, StatusPending.IsHeld())
	assert.True(t, StatusReturned.IsTerminal())
	assert.Error(t, Status("borrowed").Validate())
	assert.Error(t, AccessType("forever").Validate())
	assert.NoError(t, AccessShared.Validate())
}
