package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/pkg/retry"
)

// WebhookConfig configures the webhook delivery client
type WebhookConfig struct {
	Timeout int               `json:"timeout" yaml:"timeout"` // seconds
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// WebhookClient delivers execution payloads to user-configured endpoints
type WebhookClient struct {
	httpClient *http.Client
	headers    map[string]string
	retryCfg   retry.Config
	logger     *slog.Logger
}

// NewWebhookClient creates a webhook delivery client
func NewWebhookClient(cfg WebhookConfig) *WebhookClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &WebhookClient{
		httpClient: &http.Client{Timeout: timeout},
		headers:    cfg.Headers,
		retryCfg:   retry.Single(),
		logger:     slog.Default().With("component", "webhook"),
	}
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Deliver sends body to targetURL with the given HTTP method. Method
// defaults to POST; an unparseable URL or unsupported method is an invalid
// (non-retryable) error.
func (w *WebhookClient) Deliver(ctx context.Context, targetURL, method string, body []byte) error {
	if targetURL == "" {
		return errors.WrapInvalid(nil, "WebhookClient", "Deliver", "target URL is required")
	}
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return errors.WrapInvalid(err, "WebhookClient", "Deliver", "parse target URL")
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}
	if !allowedMethods[method] {
		return errors.WrapInvalid(
			fmt.Errorf("unsupported method %q", method),
			"WebhookClient", "Deliver", "validate method")
	}

	err := retry.Do(ctx, w.retryCfg, func() error {
		return w.doDeliver(ctx, targetURL, method, body)
	})
	if err != nil {
		return errors.WrapTransient(err, "WebhookClient", "Deliver", "deliver webhook")
	}
	return nil
}

func (w *WebhookClient) doDeliver(ctx context.Context, targetURL, method string, body []byte) error {
	var reader io.Reader
	if len(body) > 0 && method != http.MethodGet {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, reader)
	if err != nil {
		return retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.NonRetryable(err)
		}
		return err
	}
	return nil
}
