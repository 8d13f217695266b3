package registry

import (
	"errors"
	"fmt"
)

// Service and provider setup.
var (
	ErrAtLeastOneProviderRequired = errors.New("at least one provider is required")
	ErrProviderCannotBeNil        = errors.New("provider cannot be nil")
	ErrInvalidDefaultFromEmail    = errors.New("invalid default from email")
	ErrEmailServiceRequired       = errors.New("email service is required")
	ErrEmailTemplateRequired      = errors.New("email template is required")
	ErrNoProvidersConfigured      = errors.New("no email providers configured")
	ErrAllProvidersFailed         = errors.New("all providers failed")
	ErrAPIKeyRequired             = errors.New("api key is required")
)

// Message checks applied by Send.
var (
	ErrEmailDataRequired   = errors.New("email data is required")
	ErrInvalidAddress      = errors.New("invalid email address")
	ErrAtLeastOneRecipient = errors.New("at least one reminder recipient is required")
	ErrInvalidFromEmail    = errors.New("invalid 'from' email")
	ErrInvalidReplyToEmail = errors.New("invalid 'replyTo' email")
	ErrSubjectRequired     = errors.New("subject is required")
	ErrSubjectMultiline    = errors.New("subject must be a single line")
	ErrContentRequired     = errors.New("html or text content is required")
)

// Overdue reminder context.
var (
	ErrSiteNameRequired     = errors.New("site name is required")
	ErrKeyNameRequired      = errors.New("key name is required")
	ErrDaysOverdueInvalid   = errors.New("days overdue must be positive")
	ErrDashboardURLAbsolute = errors.New("dashboard URL must be a valid absolute URL")
	ErrDashboardURLScheme   = errors.New("dashboard URL must use http or https")
)

// ErrInvalidRecipient wraps ErrInvalidAddress with the list it came from.
func ErrInvalidRecipient(field, email string) error {
	return fmt.Errorf("%w in %s: %q", ErrInvalidAddress, field, email)
}

func ErrTemplateSourceIncomplete(name string) error {
	return fmt.Errorf("template %q needs a subject and an html body", name)
}

func ErrAPIStatus(statusCode int) error {
	return fmt.Errorf("API error: %d", statusCode)
}
