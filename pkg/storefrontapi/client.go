// Package storefrontapi is the typed client for the remote storefront REST API
// (catalog, auth, orders, vendors).
package storefrontapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultTimeout            = 15 * time.Second
	defaultBreakerFailures    = 5
	defaultBreakerOpenTimeout = 30 * time.Second
	maxResponseBytes          = 4 << 20
	errorBodyReadLimit        = 1024

	headerRequestID      = "X-Request-Id"
	headerIdempotencyKey = "Idempotency-Key"
)

var (
	errBaseURLRequired = errors.New("storefront api base url is required")
	// errUpstream marks 5xx answers so the breaker counts them as failures.
	errUpstream = errors.New("upstream server error")
)

// Client wraps the remote storefront API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[*rawResponse]

	breakerFailures    uint32
	breakerOpenTimeout time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithBreaker tunes the circuit breaker: it opens after failures consecutive
// failures and probes again after openTimeout.
func WithBreaker(failures uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		if failures > 0 {
			c.breakerFailures = failures
		}
		if openTimeout > 0 {
			c.breakerOpenTimeout = openTimeout
		}
	}
}

// NewClient builds the API client for baseURL (for example https://host/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:            trimmed,
		httpClient:         &http.Client{Timeout: defaultTimeout},
		breakerFailures:    defaultBreakerFailures,
		breakerOpenTimeout: defaultBreakerOpenTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	failures := client.breakerFailures
	client.breaker = gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Timeout:     client.breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Only transport failures and 5xx answers trip the breaker.
			return err == nil
		},
	})

	return client, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type rawResponse struct {
	status int
	body   []byte
}

type request struct {
	method         string
	path           string
	body           any
	bearer         string
	idempotencyKey string
}

// do executes req through the circuit breaker. A nil error means a response
// was received; its status still needs to be inspected by the caller.
func (c *Client) do(ctx context.Context, req request) (*rawResponse, error) {
	var payload io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.buildURL(req.path), payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(headerRequestID, uuid.NewString())
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.idempotencyKey)
	}

	raw, err := c.breaker.Execute(func() (*rawResponse, error) {
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		raw := &rawResponse{status: resp.StatusCode, body: body}
		if resp.StatusCode >= http.StatusInternalServerError {
			return raw, errUpstream
		}
		return raw, nil
	})
	if errors.Is(err, errUpstream) {
		return raw, nil
	}
	return raw, err
}

// getJSON performs a GET and decodes a 200 answer into out.
func (c *Client) getJSON(ctx context.Context, path, operation string, out any) error {
	raw, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return transportError(err, operation)
	}
	if raw.status != http.StatusOK {
		return statusError(raw, operation)
	}
	return decode(raw, operation, out)
}

func decode(raw *rawResponse, operation string, out any) error {
	if err := json.Unmarshal(raw.body, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", operation))
	}
	return nil
}

// transportError maps a request that never produced an answer.
func transportError(err error, operation string) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s skipped, remote api unavailable", operation))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s request", operation))
}

// statusError maps a non-success answer to the taxonomy shared by every endpoint.
func statusError(raw *rawResponse, operation string) error {
	reason := serverReason(raw.body)
	cause := fmt.Errorf("status %d: %s", raw.status, reason)
	switch raw.status {
	case http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeAuthRejected, cause, fmt.Sprintf("%s rejected the credential", operation))
	case http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, fmt.Sprintf("%s: resource not found", operation))
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, fmt.Sprintf("%s request failed", operation)).
			WithDetails(map[string]any{"status": raw.status, "reason": reason})
	}
}

// serverReason extracts the human readable message the API puts in msg,
// message or error, falling back to the truncated body.
func serverReason(body []byte) string {
	var payload struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []string{payload.Msg, payload.Message, payload.Error} {
			if strings.TrimSpace(candidate) != "" {
				return strings.TrimSpace(candidate)
			}
		}
	}
	if len(body) > errorBodyReadLimit {
		body = body[:errorBodyReadLimit]
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
