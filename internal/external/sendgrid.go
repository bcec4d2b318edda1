package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clinicpulse/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL. Overridable in
// tests via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey  string
	BaseURL string // override for testing; defaults to sendGridAPIBase
	Logger  *slog.Logger
}

// SendGridClient implements EmailProvider against the SendGrid v3 Mail Send
// API through BaseClient, inheriting the circuit breaker, retries, and
// error mapping. Content is sent inline; the pipeline renders its own
// templates, so no SendGrid dynamic templates are involved.
type SendGridClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSendGridClient creates a SendGridClient. The httpClient should carry a
// timeout of its own; the BaseClient only bounds retries.
func NewSendGridClient(
	httpClient *http.Client,
	cfg SendGridClientConfig,
) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"sendgrid",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"ClinicPulse/1.0",
	)

	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewSendGridClientWithBase creates a SendGridClient over a pre-configured
// BaseClient. Tests use this to control retry and breaker behavior.
func NewSendGridClientWithBase(
	base *BaseClient,
	cfg SendGridClientConfig,
) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Send transmits one pre-rendered email via the SendGrid v3 mail/send
// endpoint and returns the X-Message-Id response header on success.
//
// Error mapping:
//   - 403 Forbidden -> ErrCodeEmailBlocked (recipient suppressed)
//   - 429 / 5xx -> handled by BaseClient (retry, then upstream codes)
//   - other 4xx -> ErrCodeUpstreamEmailProvider
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := s.buildMailPayload(input)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	reqURL := s.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return "", s.wrapSendGridError("Send", err)
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", s.handleErrorResponse(resp, "Send")
}

// sendGridMailPayload is the SendGrid v3 mail/send request body with inline
// content.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	// custom_args correlates the dispatch with internal identifiers.
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildMailPayload maps a types.SendInput to the SendGrid v3 payload.
// SendGrid requires text/plain content before text/html.
func (s *SendGridClient) buildMailPayload(input types.SendInput) sendGridMailPayload {
	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: input.To}}},
		},
		From: sendGridAddress{
			Email: input.From.Address,
			Name:  input.From.Name,
		},
		Subject: input.Subject,
	}

	if input.BodyText != "" {
		payload.Content = append(payload.Content, sendGridContent{
			Type:  "text/plain",
			Value: input.BodyText,
		})
	}
	if input.BodyHTML != "" {
		payload.Content = append(payload.Content, sendGridContent{
			Type:  "text/html",
			Value: input.BodyHTML,
		})
	}

	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{
			"reference_id": input.ReferenceID,
		}
	}

	return payload
}

// sendGridErrorResponse is the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []sendGridErrorDetail `json:"errors"`
}

type sendGridErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field"`
	Help    string `json:"help"`
}

// handleErrorResponse reads a SendGrid error body and maps it to an AppError.
func (s *SendGridClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("%s: SendGrid returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var sgErr sendGridErrorResponse
	errMsg := ""
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	} else {
		errMsg = string(body)
	}

	return s.mapSendGridError(operation, resp.StatusCode, errMsg)
}

// mapSendGridError translates a SendGrid HTTP error into an AppError.
func (s *SendGridClient) mapSendGridError(operation string, statusCode int, message string) error {
	switch {
	case statusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("%s: SendGrid blocked delivery: %s", operation, message),
			nil,
		)
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: SendGrid rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: SendGrid server error: %s", operation, message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("%s: SendGrid error (%d): %s", operation, statusCode, message),
			nil,
		)
	}
}

// wrapSendGridError wraps a BaseClient transport error with context.
func (s *SendGridClient) wrapSendGridError(operation string, err error) error {
	// BaseClient errors already carry the right upstream code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("%s: SendGrid request failed: %v", operation, err),
		err,
	)
}

// Compile-time assertion that SendGridClient satisfies EmailProvider.
var _ EmailProvider = (*SendGridClient)(nil)
