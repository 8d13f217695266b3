package strategies

import (
	"context"
	"errors"
	"sync"

	"key-service/pkg/mailer/providers"
	"key-service/pkg/mailer/registry"
)

// RoundRobinStrategy spreads sends across providers, falling through to the
// next one when a provider fails.
type RoundRobinStrategy struct {
	currentIndex int
	mu           sync.Mutex
}

func (s *RoundRobinStrategy) Send(ctx context.Context, emailData *providers.EmailData, providerList []providers.EmailProvider) (*providers.EmailResult, error) {
	if len(providerList) == 0 {
		return noProviders()
	}

	s.mu.Lock()
	startIndex := s.currentIndex % len(providerList)
	s.currentIndex = (startIndex + 1) % len(providerList)
	s.mu.Unlock()

	lastErr := registry.ErrNoProvidersConfigured
	lastProvider := registry.ProviderLabelNone
	for i := 0; i < len(providerList); i++ {
		provider := providerList[(startIndex+i)%len(providerList)]
		if provider == nil {
			continue
		}

		result, err := provider.Send(ctx, emailData)
		if result != nil && result.Success {
			return result, nil
		}

		lastProvider = provider.GetName()
		switch {
		case err != nil:
			lastErr = err
		case result != nil && result.Error != "":
			lastErr = errors.New(result.Error)
		default:
			lastErr = errors.New(registry.StrategySendFailedText)
		}
	}

	return &providers.EmailResult{
		Success:  false,
		Error:    lastErr.Error(),
		Provider: lastProvider,
	}, lastErr
}
