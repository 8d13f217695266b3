// Package overdue detects overdue assignments, persists the overdue and
// expiry transitions on a schedule, and drives reminder escalation.
package overdue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"key-service/internal/domain/assignment"
	"key-service/internal/domain/key"
	"key-service/internal/domain/transaction"
	"key-service/internal/repository"
	"key-service/internal/txlog"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
)

const (
	errNoLongerOverdue = "assignment is no longer overdue"
	errUnknownTier     = "unknown reminder tier"
	errNoAssignmentRef = "reminder has no assignment reference"
)

// Reminder is what a notifier is asked to deliver.
type Reminder struct {
	Assignment  *assignment.Assignment
	Key         *key.Key
	DaysOverdue int
	Tier        Tier
	// Attempt is 1 for the first delivery of this reminder.
	Attempt int
}

// Notifier triggers an outbound reminder. Delivery transport is the
// implementation's concern.
type Notifier interface {
	NotifyOverdue(ctx context.Context, r Reminder) error
}

// Expirer persists lapsed delegation expiry.
type Expirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

// ReminderScope narrows a bulk reminder run. The zero value means every
// overdue assignment.
type ReminderScope struct {
	AssignmentIDs []uuid.UUID
	MinTier       Tier
	ActorID       uuid.UUID
}

type ReminderResult struct {
	AssignmentID  uuid.UUID `json:"assignmentId"`
	KeyID         uuid.UUID `json:"keyId"`
	HolderID      uuid.UUID `json:"holderId"`
	DaysOverdue   int       `json:"daysOverdue"`
	Tier          Tier      `json:"tier"`
	RemindersSent int       `json:"remindersSent"`
	TransactionID uuid.UUID `json:"transactionId"`
	Delivered     bool      `json:"delivered"`
	Error         string    `json:"error,omitempty"`
}

type SweepResult struct {
	MarkedOverdue      int `json:"markedOverdue"`
	ExpiredDelegations int `json:"expiredDelegations"`
}

type Monitor struct {
	store    repository.Store
	txlog    *txlog.Log
	notifier Notifier
	expirer  Expirer
	now      func() time.Time
	logger   *slog.Logger
}

type Deps struct {
	Store    repository.Store
	TxLog    *txlog.Log
	Notifier Notifier
	Expirer  Expirer
	Now      func() time.Time
	Logger   *slog.Logger
}

func New(deps Deps) *Monitor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Monitor{
		store:    deps.Store,
		txlog:    deps.TxLog,
		notifier: deps.Notifier,
		expirer:  deps.Expirer,
		now:      deps.Now,
		logger:   deps.Logger,
	}
}

// ListOverdue returns every assignment overdue at the current time, stored
// or lazily derived, earliest due date first.
func (m *Monitor) ListOverdue(ctx context.Context) ([]*assignment.Assignment, error) {
	candidates, err := m.store.ListOverdueCandidates(ctx, m.now())
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]*assignment.Assignment, 0, len(candidates))
	for _, a := range candidates {
		evaluated := a.Evaluate(now)
		if evaluated.Status == assignment.StatusOverdue {
			out = append(out, &evaluated)
		}
	}
	return out, nil
}

// SendReminders triggers one reminder for each overdue assignment in scope.
// Every attempt is recorded, so calling it again simply reminds again.
func (m *Monitor) SendReminders(ctx context.Context, scope ReminderScope) ([]ReminderResult, error) {
	if scope.MinTier != "" && !scope.MinTier.Valid() {
		return nil, apperrors.Validation(errUnknownTier)
	}
	actor := scope.ActorID
	if actor == uuid.Nil {
		actor = transaction.SystemActorID
	}

	overdue, err := m.ListOverdue(ctx)
	if err != nil {
		return nil, err
	}

	include := make(map[uuid.UUID]bool, len(scope.AssignmentIDs))
	for _, id := range scope.AssignmentIDs {
		include[id] = true
	}

	now := m.now()
	results := make([]ReminderResult, 0, len(overdue))
	for _, a := range overdue {
		if len(include) > 0 && !include[a.ID] {
			continue
		}
		days := a.DaysOverdue(now)
		tier := TierFor(days)
		if scope.MinTier != "" && !tier.AtLeast(scope.MinTier) {
			continue
		}

		result, err := m.remind(ctx, a.ID, actor)
		if errors.Is(err, apperrors.ErrInvalidState) {
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	m.logger.Info("overdue reminders sent", slog.Int("count", len(results)))
	return results, nil
}

// remind stamps the reminder counters and appends a pending reminder entry
// in one transaction, then delivers outside it and records the outcome.
func (m *Monitor) remind(ctx context.Context, assignmentID, actorID uuid.UUID) (ReminderResult, error) {
	var (
		a     *assignment.Assignment
		k     *key.Key
		entry *transaction.Transaction
		days  int
		tier  Tier
	)
	err := m.store.WithinTx(ctx, func(q repository.Queries) error {
		current, err := q.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if k, err = q.GetKeyForUpdate(ctx, current.KeyID); err != nil {
			return err
		}
		if a, err = q.GetAssignmentForUpdate(ctx, assignmentID); err != nil {
			return err
		}

		now := m.now()
		if a.Evaluate(now).Status != assignment.StatusOverdue {
			return apperrors.InvalidState(errNoLongerOverdue)
		}
		days = a.DaysOverdue(now)
		tier = TierFor(days)

		persisted := a.Status
		a.RemindersSent++
		a.LastReminderSent = &now
		a.UpdatedAt = now
		if err := q.UpdateAssignment(ctx, a, persisted); err != nil {
			return err
		}

		entry, err = m.txlog.Append(ctx, q, txlog.Entry{
			Type:         transaction.TypeOverdueReminder,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			ActorID:      actorID,
			Details:      fmt.Sprintf("Overdue reminder %d (%s, %d days)", a.RemindersSent, tier, days),
			Status:       transaction.StatusPending,
			Metadata: map[string]any{
				"tier":           string(tier),
				"daysOverdue":    days,
				"reminderNumber": a.RemindersSent,
				"holderId":       a.HolderID.String(),
			},
		})
		return err
	})
	if err != nil {
		return ReminderResult{}, err
	}

	evaluated := a.Evaluate(m.now())
	result := ReminderResult{
		AssignmentID:  a.ID,
		KeyID:         a.KeyID,
		HolderID:      a.HolderID,
		DaysOverdue:   days,
		Tier:          tier,
		RemindersSent: a.RemindersSent,
		TransactionID: entry.ID,
	}

	deliverErr := m.deliver(ctx, Reminder{Assignment: &evaluated, Key: k, DaysOverdue: days, Tier: tier, Attempt: 1})
	if err := m.recordOutcome(ctx, entry, deliverErr); err != nil {
		return result, err
	}
	result.Delivered = deliverErr == nil
	if deliverErr != nil {
		result.Error = deliverErr.Error()
	}
	return result, nil
}

func (m *Monitor) deliver(ctx context.Context, r Reminder) error {
	if m.notifier == nil {
		return nil
	}
	return m.notifier.NotifyOverdue(ctx, r)
}

func (m *Monitor) recordOutcome(ctx context.Context, entry *transaction.Transaction, deliverErr error) error {
	var err error
	if deliverErr != nil {
		m.logger.Warn("overdue reminder delivery failed",
			slog.String("transaction_id", entry.ID.String()),
			slog.String("error", deliverErr.Error()),
		)
		err = m.txlog.MarkFailed(ctx, m.store, entry, deliverErr)
	} else {
		err = m.txlog.MarkCompleted(ctx, m.store, entry)
	}
	if err != nil {
		return err
	}
	m.txlog.Publish(entry)
	return nil
}

// Sweep persists active to overdue for assignments past due and expires
// lapsed delegations. Rows changed concurrently are skipped.
func (m *Monitor) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	candidates, err := m.store.ListOverdueCandidates(ctx, m.now())
	if err != nil {
		return result, err
	}

	for _, candidate := range candidates {
		if candidate.Status != assignment.StatusActive {
			continue
		}
		err := m.markOverdue(ctx, candidate.ID)
		if errors.Is(err, apperrors.ErrInvalidState) {
			continue
		}
		if err != nil {
			return result, err
		}
		result.MarkedOverdue++
	}

	if m.expirer != nil {
		expired, err := m.expirer.ExpireLapsed(ctx)
		result.ExpiredDelegations = expired
		if err != nil {
			return result, err
		}
	}

	if result.MarkedOverdue > 0 || result.ExpiredDelegations > 0 {
		m.logger.Info("overdue sweep",
			slog.Int("marked_overdue", result.MarkedOverdue),
			slog.Int("expired_delegations", result.ExpiredDelegations),
		)
	}
	return result, nil
}

func (m *Monitor) markOverdue(ctx context.Context, assignmentID uuid.UUID) error {
	var recorded []*transaction.Transaction
	err := m.store.WithinTx(ctx, func(q repository.Queries) error {
		current, err := q.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if _, err := q.GetKeyForUpdate(ctx, current.KeyID); err != nil {
			return err
		}
		a, err := q.GetAssignmentForUpdate(ctx, assignmentID)
		if err != nil {
			return err
		}

		now := m.now()
		if a.Status != assignment.StatusActive || !now.After(a.DueDate) {
			return apperrors.InvalidState(errNoLongerOverdue)
		}
		a.Status = assignment.StatusOverdue
		a.UpdatedAt = now
		if err := q.UpdateAssignment(ctx, a, assignment.StatusActive); err != nil {
			return err
		}

		batch := m.txlog.Batch(q)
		if _, err := batch.Record(ctx, txlog.Entry{
			Type:         transaction.TypeMarkedOverdue,
			KeyID:        a.KeyID,
			AssignmentID: &a.ID,
			ActorID:      transaction.SystemActorID,
			Metadata: map[string]any{
				"dueDate":     a.DueDate.UTC().Format(time.RFC3339),
				"daysOverdue": a.DaysOverdue(now),
			},
		}); err != nil {
			return err
		}
		recorded = batch.Recorded()
		return nil
	})
	if err != nil {
		return err
	}
	m.txlog.Publish(recorded...)
	return nil
}

// RetryFailedReminders redelivers failed reminder entries that still have
// retries left. Reminders for assignments no longer overdue are cancelled.
func (m *Monitor) RetryFailedReminders(ctx context.Context) (int, error) {
	maxRetries := m.txlog.MaxRetries()
	failed, err := m.txlog.Query(ctx, transaction.ListTransactionsFilter{
		Types:      []transaction.Type{transaction.TypeOverdueReminder},
		Statuses:   []transaction.Status{transaction.StatusFailed},
		MaxRetries: &maxRetries,
		Limit:      repository.MaxListLimit,
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range failed {
		if !m.txlog.Retryable(entry) {
			continue
		}
		if entry.AssignmentID == nil {
			if err := m.txlog.MarkCancelled(ctx, m.store, entry, errNoAssignmentRef); err != nil {
				return delivered, err
			}
			continue
		}

		a, err := m.store.GetAssignment(ctx, *entry.AssignmentID)
		if err != nil {
			return delivered, err
		}
		now := m.now()
		evaluated := a.Evaluate(now)
		if evaluated.Status != assignment.StatusOverdue {
			if err := m.txlog.MarkCancelled(ctx, m.store, entry, errNoLongerOverdue); err != nil {
				return delivered, err
			}
			m.txlog.Publish(entry)
			continue
		}

		k, err := m.store.GetKey(ctx, a.KeyID)
		if err != nil {
			return delivered, err
		}
		days := evaluated.DaysOverdue(now)
		deliverErr := m.deliver(ctx, Reminder{
			Assignment:  &evaluated,
			Key:         k,
			DaysOverdue: days,
			Tier:        TierFor(days),
			Attempt:     entry.RetryCount + 1,
		})
		if err := m.recordOutcome(ctx, entry, deliverErr); err != nil {
			return delivered, err
		}
		if deliverErr == nil {
			delivered++
		}
	}
	return delivered, nil
}
