package mailer

import (
	"key-service/pkg/mailer/providers"
	"key-service/pkg/mailer/templates"
)

func NewResendProvider(config providers.ResendConfig) *providers.ResendProvider {
	return providers.NewResendProvider(config)
}

func NewSendGridProvider(config providers.SendGridConfig) *providers.SendGridProvider {
	return providers.NewSendGridProvider(config)
}

func OverdueReminderTemplate() (*templates.TypedTemplate[templates.OverdueReminderContext], error) {
	return templates.OverdueReminderTemplate()
}
