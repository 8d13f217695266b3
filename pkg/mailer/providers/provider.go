package providers

import "context"

type EmailProvider interface {
	Send(ctx context.Context, emailData *EmailData) (*EmailResult, error)
	Verify(ctx context.Context) (bool, error)
	GetName() string
}

type BaseProvider struct {
	APIKey       string
	ProviderName string
}

func (p *BaseProvider) GetName() string {
	return p.ProviderName
}

type EmailData struct {
	To      []string
	From    string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
	CC      []string
	BCC     []string
}

type EmailResult struct {
	Success   bool
	MessageID string
	Error     string
	Provider  string
}

func (p *BaseProvider) failure(err error, message string) (*EmailResult, error) {
	return &EmailResult{
		Success:  false,
		Error:    message,
		Provider: p.ProviderName,
	}, err
}
