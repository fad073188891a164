// Package delivery implements the outbound HTTP clients for notification
// and webhook delivery. Timeouts, retry, and rate limiting live here at the
// collaborator boundary; the engine only sees final success or failure.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/pkg/retry"
)

// MessengerConfig configures the notification delivery client
type MessengerConfig struct {
	// BaseURL of the delivery provider; sms and email post to
	// BaseURL/sms and BaseURL/email respectively
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key"  yaml:"api_key"`
	Timeout int    `json:"timeout"  yaml:"timeout"` // seconds

	// RatePerSecond bounds outbound sends across all executions;
	// 0 disables limiting
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
}

// Validate checks the configuration for errors
func (c *MessengerConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MessengerConfig", "Validate", "base_url is required")
	}
	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MessengerConfig", "Validate",
			"timeout must be between 0 and 300 seconds")
	}
	if c.RatePerSecond < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MessengerConfig", "Validate",
			"rate_per_second cannot be negative")
	}
	return nil
}

// SendResult carries the provider's message identifier on success
type SendResult struct {
	MessageID string `json:"message_id"`
}

// Messenger sends SMS and email through the delivery provider
type Messenger struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryCfg   retry.Config
	logger     *slog.Logger
}

// NewMessenger creates a notification delivery client
func NewMessenger(cfg MessengerConfig) (*Messenger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1)
	}

	return &Messenger{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		retryCfg:   retry.Single(),
		logger:     slog.Default().With("component", "messenger"),
	}, nil
}

// SendSMS delivers an SMS; returns the provider message ID on success
func (m *Messenger) SendSMS(ctx context.Context, to, message string) (string, error) {
	body := map[string]string{"to": to, "message": message}
	result, err := m.post(ctx, m.baseURL+"/sms", body)
	if err != nil {
		return "", err
	}
	return result.MessageID, nil
}

// SendEmail delivers an email
func (m *Messenger) SendEmail(ctx context.Context, to, subject, body string) error {
	payload := map[string]string{"to": to, "subject": subject, "body": body}
	_, err := m.post(ctx, m.baseURL+"/email", payload)
	return err
}

func (m *Messenger) post(ctx context.Context, url string, payload any) (*SendResult, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, errors.WrapTransient(err, "Messenger", "post", "rate limit wait")
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapFatal(err, "Messenger", "post", "marshal payload")
	}

	result, err := retry.DoWithResult(ctx, m.retryCfg, func() (*SendResult, error) {
		return m.doPost(ctx, url, data)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Messenger", "post", "deliver notification")
	}
	return result, nil
}

func (m *Messenger) doPost(ctx context.Context, url string, data []byte) (*SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		// Client errors won't improve on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.NonRetryable(err)
		}
		return nil, err
	}

	var result SendResult
	if len(respBody) > 0 {
		// A provider response without a message ID is still a success
		_ = json.Unmarshal(respBody, &result)
	}
	return &result, nil
}
