package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"key-service/pkg/mailer/registry"
)

type SendGridProvider struct {
	BaseProvider
	APIURL string
	client *http.Client
}

type SendGridConfig struct {
	APIKey     string
	APIURL     string
	HTTPClient *http.Client
}

func NewSendGridProvider(config SendGridConfig) *SendGridProvider {
	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = registry.SendGridAPIURL
	}

	return &SendGridProvider{
		BaseProvider: BaseProvider{
			APIKey:       config.APIKey,
			ProviderName: registry.ProviderSendGrid,
		},
		APIURL: apiURL,
		client: httpClientOrDefault(config.HTTPClient),
	}
}

func addressList(emails []string) []map[string]string {
	list := make([]map[string]string, len(emails))
	for i, email := range emails {
		list[i] = map[string]string{registry.JSONEmail: email}
	}
	return list
}

func (p *SendGridProvider) Send(ctx context.Context, emailData *EmailData) (*EmailResult, error) {
	if p.APIKey == "" {
		return p.failure(registry.ErrAPIKeyRequired, registry.ErrAPIKeyRequired.Error())
	}

	personalization := map[string]interface{}{
		registry.JSONTo: addressList(emailData.To),
	}
	if len(emailData.CC) > 0 {
		personalization[registry.JSONCC] = addressList(emailData.CC)
	}
	if len(emailData.BCC) > 0 {
		personalization[registry.JSONBCC] = addressList(emailData.BCC)
	}

	content := []map[string]string{
		{registry.JSONType: registry.MIMETextHTML, registry.JSONValue: emailData.HTML},
	}
	if emailData.Text != "" {
		content = append(content, map[string]string{registry.JSONType: registry.MIMETextPlain, registry.JSONValue: emailData.Text})
	}

	payload := map[string]interface{}{
		registry.JSONPersonalizations: []map[string]interface{}{personalization},
		registry.JSONFrom:             map[string]string{registry.JSONEmail: emailData.From},
		registry.JSONSubject:          emailData.Subject,
		registry.JSONContent:          content,
	}
	if emailData.ReplyTo != "" {
		payload[registry.JSONReplyTo] = map[string]string{registry.JSONEmail: emailData.ReplyTo}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return p.failure(err, fmt.Sprintf(registry.MsgFailedMarshalPayloadFmt, err))
	}

	status, header, body, err := postJSON(ctx, p.client, p.APIURL+registry.PathSendGridMailSend, p.APIKey, jsonData)
	if err != nil {
		return p.failure(err, err.Error())
	}
	if !isHTTPSuccess(status) {
		return p.failure(registry.ErrAPIStatus(status), fmt.Sprintf(registry.MsgSendGridAPIErrorFmt, status, string(body)))
	}

	return &EmailResult{
		Success:   true,
		MessageID: header.Get(registry.HeaderMessageID),
		Provider:  p.ProviderName,
	}, nil
}

func (p *SendGridProvider) Verify(ctx context.Context) (bool, error) {
	return verifyKey(ctx, p.client, p.APIURL+registry.PathSendGridScopes, p.APIKey)
}
