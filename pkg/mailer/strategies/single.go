package strategies

import (
	"context"

	"key-service/pkg/mailer/providers"
)

type SingleProviderStrategy struct{}

func (s *SingleProviderStrategy) Send(ctx context.Context, emailData *providers.EmailData, providerList []providers.EmailProvider) (*providers.EmailResult, error) {
	if len(providerList) == 0 || providerList[0] == nil {
		return noProviders()
	}

	return providerList[0].Send(ctx, emailData)
}
