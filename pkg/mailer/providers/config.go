package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"key-service/pkg/mailer/registry"
)

const defaultHTTPTimeout = 15 * time.Second

func isHTTPSuccess(statusCode int) bool {
	return statusCode >= registry.HTTPStatusSuccessMin && statusCode < registry.HTTPStatusSuccessMax
}

func httpClientOrDefault(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// postJSON sends body to url with bearer auth and returns the status, headers
// and response body.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body []byte) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, fmt.Errorf(registry.MsgFailedCreateRequestFmt, err)
	}
	req.Header.Set(registry.HeaderAuthorization, registry.AuthBearerPrefix+apiKey)
	req.Header.Set(registry.HeaderContentType, registry.MIMEApplicationJSON)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf(registry.MsgRequestFailedFmt, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header, respBody, nil
}

func verifyKey(ctx context.Context, client *http.Client, url, apiKey string) (bool, error) {
	if apiKey == "" {
		return false, registry.ErrAPIKeyRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set(registry.HeaderAuthorization, registry.AuthBearerPrefix+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return isHTTPSuccess(resp.StatusCode), nil
}
