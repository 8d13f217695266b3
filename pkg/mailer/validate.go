package mailer

import (
	"fmt"
	"net/mail"
	"strings"

	"key-service/pkg/mailer/providers"
	"key-service/pkg/mailer/registry"
)

// ValidateEmail accepts anything net/mail can parse, display names included.
func ValidateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: %s", registry.ErrInvalidAddress, email)
	}
	return nil
}

// ValidateRecipients requires every entry of a recipient list to be a bare
// address. Reminder lists are normalized and deduplicated, which only works
// without display names.
func ValidateRecipients(field string, list []string) error {
	for _, email := range list {
		parsed, err := mail.ParseAddress(email)
		if err != nil || parsed.Address != email {
			return registry.ErrInvalidRecipient(field, email)
		}
	}
	return nil
}

// ValidateEmailData checks a message before it reaches a provider.
func ValidateEmailData(data *providers.EmailData) error {
	if data == nil {
		return registry.ErrEmailDataRequired
	}
	if len(data.To) == 0 {
		return registry.ErrAtLeastOneRecipient
	}

	lists := []struct {
		field string
		list  []string
	}{
		{registry.RecipientFieldTo, data.To},
		{registry.RecipientFieldCC, data.CC},
		{registry.RecipientFieldBCC, data.BCC},
	}
	for _, l := range lists {
		if err := ValidateRecipients(l.field, l.list); err != nil {
			return err
		}
	}

	if err := ValidateEmail(data.From); err != nil {
		return registry.ErrInvalidFromEmail
	}
	if data.ReplyTo != "" {
		if err := ValidateEmail(data.ReplyTo); err != nil {
			return registry.ErrInvalidReplyToEmail
		}
	}

	// Key names flow into subjects, so a line break here is header injection.
	switch {
	case strings.TrimSpace(data.Subject) == "":
		return registry.ErrSubjectRequired
	case strings.ContainsAny(data.Subject, "\r\n"):
		return registry.ErrSubjectMultiline
	case data.HTML == "" && data.Text == "":
		return registry.ErrContentRequired
	}
	return nil
}
