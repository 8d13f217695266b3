package strategies

import (
	"context"
	"fmt"
	"strings"

	"key-service/pkg/mailer/providers"
	"key-service/pkg/mailer/registry"
)

type FailoverStrategy struct{}

func (s *FailoverStrategy) Send(ctx context.Context, emailData *providers.EmailData, providerList []providers.EmailProvider) (*providers.EmailResult, error) {
	if len(providerList) == 0 {
		return noProviders()
	}

	var errorMessages []string

	for _, provider := range providerList {
		if provider == nil {
			errorMessages = append(errorMessages, fmt.Sprintf(registry.MsgProviderErrorFmt, registry.UnknownProviderName, registry.ErrProviderCannotBeNil.Error()))
			continue
		}
		if err := ctx.Err(); err != nil {
			return &providers.EmailResult{Success: false, Error: err.Error(), Provider: registry.ProviderLabelFailover}, err
		}

		result, err := provider.Send(ctx, emailData)
		if result != nil && result.Success {
			return result, nil
		}

		errorText := registry.StrategySendFailedText
		if result != nil && result.Error != "" {
			errorText = result.Error
		} else if err != nil {
			errorText = err.Error()
		}

		errorMessages = append(errorMessages, fmt.Sprintf(registry.MsgProviderErrorFmt, provider.GetName(), errorText))
	}

	return &providers.EmailResult{
		Success:  false,
		Error:    fmt.Sprintf(registry.MsgProviderErrorFmt, registry.ErrAllProvidersFailed.Error(), strings.Join(errorMessages, registry.MessageSeparator)),
		Provider: registry.ProviderLabelFailover,
	}, registry.ErrAllProvidersFailed
}
