package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"key-service/pkg/mailer/registry"
)

type ResendProvider struct {
	BaseProvider
	APIURL string
	client *http.Client
}

type ResendConfig struct {
	APIKey     string
	APIURL     string
	HTTPClient *http.Client
}

func NewResendProvider(config ResendConfig) *ResendProvider {
	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = registry.ResendAPIURL
	}

	return &ResendProvider{
		BaseProvider: BaseProvider{
			APIKey:       config.APIKey,
			ProviderName: registry.ProviderResend,
		},
		APIURL: apiURL,
		client: httpClientOrDefault(config.HTTPClient),
	}
}

func (p *ResendProvider) Send(ctx context.Context, emailData *EmailData) (*EmailResult, error) {
	if p.APIKey == "" {
		return p.failure(registry.ErrAPIKeyRequired, registry.ErrAPIKeyRequired.Error())
	}

	payload := map[string]interface{}{
		registry.JSONFrom:    emailData.From,
		registry.JSONTo:      emailData.To,
		registry.JSONSubject: emailData.Subject,
		registry.JSONHTML:    emailData.HTML,
	}

	if emailData.Text != "" {
		payload[registry.JSONText] = emailData.Text
	}
	if emailData.ReplyTo != "" {
		payload[registry.JSONReplyTo] = emailData.ReplyTo
	}
	if len(emailData.CC) > 0 {
		payload[registry.JSONCC] = emailData.CC
	}
	if len(emailData.BCC) > 0 {
		payload[registry.JSONBCC] = emailData.BCC
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return p.failure(err, fmt.Sprintf(registry.MsgFailedMarshalPayloadFmt, err))
	}

	status, _, body, err := postJSON(ctx, p.client, p.APIURL+registry.PathResendEmails, p.APIKey, jsonData)
	if err != nil {
		return p.failure(err, err.Error())
	}
	if !isHTTPSuccess(status) {
		return p.failure(registry.ErrAPIStatus(status), fmt.Sprintf(registry.MsgResendAPIErrorFmt, status, string(body)))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return p.failure(err, fmt.Sprintf(registry.MsgFailedParseResponseFmt, err))
	}

	return &EmailResult{
		Success:   true,
		MessageID: result.ID,
		Provider:  p.ProviderName,
	}, nil
}

func (p *ResendProvider) Verify(ctx context.Context) (bool, error) {
	return verifyKey(ctx, p.client, p.APIURL+registry.PathResendAPIKeys, p.APIKey)
}
