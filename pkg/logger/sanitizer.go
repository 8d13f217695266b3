package logger

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// Sensitive value patterns inside free-form messages.
var (
	tokenPattern  = regexp.MustCompile(`(?i)(token|jwt|bearer)[\s:=]+[^\s]+`)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|station[_-]?key)[\s:=]+[^\s]+`)
	secretPattern = regexp.MustCompile(`(?i)(secret|password|private[_-]?key)[\s:=]+[^\s]+`)
)

const redactedPlaceholder = "[REDACTED]"

var sensitiveKeys = []string{
	"password", "token", "jwt", "bearer", "authorization",
	"api_key", "apikey", "secret", "signature",
}

// SanitizeLogMessage removes credentials from a log message.
func SanitizeLogMessage(message string) string {
	message = tokenPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
	message = apiKeyPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
	return secretPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
}

// IsSensitiveKey reports whether an attribute named key holds a credential.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ReplaceAttr redacts sensitive attributes and scrubs string values. It is
// meant for slog.HandlerOptions.
func ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, redactedPlaceholder)
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, SanitizeLogMessage(a.Value.String()))
	}
	return a
}

// NewJSON returns a JSON logger writing to w with redaction applied.
func NewJSON(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{ReplaceAttr: ReplaceAttr}))
}
