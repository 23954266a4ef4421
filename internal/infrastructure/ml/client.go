package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/ports"
)

const (
	defaultTimeout  = 15 * time.Second
	explainEndpoint = "/explain"
)

// ErrInvalidResponse marks classifier payloads outside the result domain.
var ErrInvalidResponse = errors.New("invalid classifier response")

// Client talks to the external classification and explanation service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

var _ ports.Classifier = (*Client)(nil)
var _ ports.Explainer = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger attaches a logger for failed calls.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a reusable HTTP client for the service at endpoint.
func NewClient(endpoint, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify sends {text} to path. Every failure collapses to ERR with zero
// confidence; retries are the tracker's business, not the client's.
func (c *Client) Classify(ctx context.Context, path, text string) domain.ClassificationResult {
	var resp struct {
		Label      string   `json:"label"`
		Confidence *float64 `json:"confidence"`
	}

	if err := c.post(ctx, path, map[string]any{"text": text}, &resp); err != nil {
		c.warn("classify failed", "path", path, "error", err)
		return domain.ErrResult()
	}

	label, ok := domain.ParseLabel(strings.ToUpper(strings.TrimSpace(resp.Label)))
	if !ok || resp.Confidence == nil {
		c.warn("classify failed", "path", path, "error", fmt.Errorf("%w: label %q", ErrInvalidResponse, resp.Label))
		return domain.ErrResult()
	}

	result := domain.ClassificationResult{Label: label, Confidence: *resp.Confidence}
	if !result.Valid() {
		c.warn("classify failed", "path", path, "error", fmt.Errorf("%w: confidence %v", ErrInvalidResponse, *resp.Confidence))
		return domain.ErrResult()
	}
	return result
}

// Explain asks the service why a verdict was reached. A response without an
// explanation field is not an error.
func (c *Client) Explain(ctx context.Context, req ports.ExplainRequest) (string, error) {
	var resp struct {
		Explanation string `json:"explanation"`
	}
	if err := c.post(ctx, explainEndpoint, req, &resp); err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	return strings.TrimSpace(resp.Explanation), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	if c.endpoint == "" {
		return fmt.Errorf("classifier endpoint is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
