// Package notify delivers overdue reminders produced by the overdue monitor.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"key-service/internal/overdue"
	"key-service/pkg/mailer"
	"key-service/pkg/mailer/providers"
	"key-service/pkg/mailer/templates"
)

const (
	dueDateLayout      = "2006-01-02 15:04 MST"
	errNoRecipients    = "notify: at least one reminder recipient is required"
	errSendFailedFmt   = "notify: send reminder for assignment %s: %w"
	errRenderFailedFmt = "notify: build reminder template: %w"
)

// EmailConfig configures the email notifier.
type EmailConfig struct {
	SiteName     string
	Recipients   []string
	DashboardURL string
}

// EmailNotifier sends reminders to a fixed recipient list through the mailer.
type EmailNotifier struct {
	service  *mailer.EmailService
	template *templates.TypedTemplate[templates.OverdueReminderContext]
	config   EmailConfig
}

func NewEmailNotifier(service *mailer.EmailService, config EmailConfig) (*EmailNotifier, error) {
	if len(config.Recipients) == 0 {
		return nil, errors.New(errNoRecipients)
	}
	tmpl, err := mailer.OverdueReminderTemplate()
	if err != nil {
		return nil, fmt.Errorf(errRenderFailedFmt, err)
	}
	return &EmailNotifier{service: service, template: tmpl, config: config}, nil
}

func (n *EmailNotifier) NotifyOverdue(ctx context.Context, r overdue.Reminder) error {
	values := templates.OverdueReminderContext{
		SiteName:     n.config.SiteName,
		KeyName:      r.Key.Name,
		Location:     r.Key.Location,
		HolderID:     r.Assignment.HolderID.String(),
		DueDate:      r.Assignment.DueDate.UTC().Format(dueDateLayout),
		DaysOverdue:  r.DaysOverdue,
		Tier:         string(r.Tier),
		Attempt:      r.Attempt,
		DashboardURL: n.config.DashboardURL,
	}
	email := &providers.EmailData{To: n.config.Recipients}

	if _, err := mailer.SendWithTypedTemplate(ctx, n.service, n.template, values, email); err != nil {
		return fmt.Errorf(errSendFailedFmt, r.Assignment.ID, err)
	}
	return nil
}

// LogNotifier records reminders in the service log. It is used when no mail
// provider is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyOverdue(ctx context.Context, r overdue.Reminder) error {
	n.logger.InfoContext(ctx, "overdue reminder",
		slog.String("assignment_id", r.Assignment.ID.String()),
		slog.String("key_id", r.Key.ID.String()),
		slog.String("holder_id", r.Assignment.HolderID.String()),
		slog.Int("days_overdue", r.DaysOverdue),
		slog.String("tier", string(r.Tier)),
		slog.Int("attempt", r.Attempt),
	)
	return nil
}
