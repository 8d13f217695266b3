package mailer

import (
	"strings"

	"key-service/pkg/mailer/registry"
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseRecipients splits a comma separated address list, dropping blanks
// and duplicates. The result is checked with the same rules Send applies to
// the To header, so a bad REMINDER_RECIPIENTS fails at startup rather than on
// the first reminder.
func ParseRecipients(list string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(list, ",") {
		email := NormalizeEmail(part)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}

	if len(out) == 0 {
		return nil, registry.ErrAtLeastOneRecipient
	}
	if err := ValidateRecipients(registry.RecipientFieldTo, out); err != nil {
		return nil, err
	}
	return out, nil
}
