package strategies

import (
	"context"
	"fmt"

	"key-service/pkg/mailer/providers"
	"key-service/pkg/mailer/registry"
)

type EmailStrategy interface {
	Send(ctx context.Context, emailData *providers.EmailData, providerList []providers.EmailProvider) (*providers.EmailResult, error)
}

// ByName resolves a configured strategy name. An empty name selects the
// single provider strategy.
func ByName(name string) (EmailStrategy, error) {
	switch name {
	case "", registry.StrategySingle:
		return &SingleProviderStrategy{}, nil
	case registry.StrategyFailover:
		return &FailoverStrategy{}, nil
	case registry.StrategyRoundRobin:
		return &RoundRobinStrategy{}, nil
	default:
		return nil, fmt.Errorf(registry.MsgUnknownStrategyFmt, name)
	}
}

func noProviders() (*providers.EmailResult, error) {
	return &providers.EmailResult{
		Success:  false,
		Error:    registry.ErrNoProvidersConfigured.Error(),
		Provider: registry.ProviderLabelNone,
	}, registry.ErrNoProvidersConfigured
}
