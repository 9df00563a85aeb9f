package client

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

	"github.com/cenkalti/backoff/v4"

	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/session"
	"github.com/inercia/inferstream/internal/transport"
)

// DefaultAPIBase is the base URL of the HTTP API.
const DefaultAPIBase = "https://dashscope.aliyuncs.com/api/v1"

// RetryConfig controls the exponential backoff applied to rate limited
// requests. Zero fields use the backoff library defaults.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed bounds the total time spent retrying. Default: 15m
	MaxElapsed time.Duration
}

// Config holds everything needed to reach the service.
type Config struct {
	APIKey         string
	Workspace      string
	DataInspection string

	// APIBase is the HTTP API base URL. Default: DefaultAPIBase
	APIBase string
	// WebsocketURL is the inference endpoint. Default: transport.DefaultEndpoint
	WebsocketURL string

	Retry RetryConfig
}

// Client talks to the HTTP API and opens inference sessions.
// It is safe for concurrent use.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	logger      *slog.Logger
	sessionOpts []session.Option
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithLogger sets the logger used for HTTP calls and sessions.
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

// WithSessionOptions adds options applied to every session opened by the
// client.
func WithSessionOptions(opts ...session.Option) Option {
	return func(client *Client) {
		client.sessionOpts = append(client.sessionOpts, opts...)
	}
}

// New creates a client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.WebsocketURL == "" {
		cfg.WebsocketURL = transport.DefaultEndpoint
	}
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger, logging.ComponentHTTP)
	return c
}

// Config returns the client configuration with defaults applied.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.APIBase, "/") + path
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.cfg.Retry.InitialInterval > 0 {
		b.InitialInterval = c.cfg.Retry.InitialInterval
	}
	if c.cfg.Retry.MaxInterval > 0 {
		b.MaxInterval = c.cfg.Retry.MaxInterval
	}
	if c.cfg.Retry.MaxElapsed > 0 {
		b.MaxElapsedTime = c.cfg.Retry.MaxElapsed
	}
	return backoff.WithContext(b, ctx)
}

// Post sends req as JSON to path and decodes the response into out. Rate
// limited responses (HTTP 429) are retried with exponential backoff; any
// other failure is returned immediately. out may be nil.
func (c *Client) Post(ctx context.Context, path string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("post %s: marshal: %w", path, err)
	}

	var respBody []byte
	attempt := 0
	op := func() error {
		attempt++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("post %s: %w", path, err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set(transport.HeaderAuthorization, "Bearer "+c.cfg.APIKey)
		if c.cfg.Workspace != "" {
			httpReq.Header.Set(transport.HeaderWorkspace, c.cfg.Workspace)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("post %s: %w", path, err))
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("post %s: read body: %w", path, err))
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			respBody = data
			return nil
		}

		apiErr, err := parseAPIError(resp.StatusCode, data)
		if err != nil {
			return backoff.Permanent(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("rate limited, retrying", "path", path, "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, c.newBackOff(ctx), notify); err != nil {
		return err
	}

	c.logger.Debug("post succeeded", "path", path, "attempts", attempt)
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ResponseError{Body: respBody, Err: err}
	}
	return nil
}

// APIError is an error reported by the service in a non-2xx response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error (status %d)", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " code: %s", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " request_id: %s", e.RequestID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// IsRateLimited reports whether err is an APIError with status 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// ResponseError is returned when a response body cannot be decoded. Body
// holds the raw response.
type ResponseError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *ResponseError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to deserialize api response (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to deserialize api response: %v", e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

func parseAPIError(status int, body []byte) (*APIError, error) {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil, &ResponseError{StatusCode: status, Body: body, Err: err}
	}
	apiErr.StatusCode = status
	return &apiErr, nil
}
