package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/faceauth/internal/logging"
)

const (
	DefaultRegistrationPath = "/liveness/usage"
	DefaultMatchPath        = "/face/match"

	maxResponseBody = 1 << 20
)

// ErrEmptyBaseURL is returned by NewClient when no service URL is configured.
var ErrEmptyBaseURL = errors.New("verification: base url is required")

// Client talks to the remote verification service over HTTP JSON.
type Client struct {
	baseURL          *url.URL
	registrationPath string
	matchPath        string
	httpClient       *http.Client
	logger           *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithPaths overrides the endpoint paths. Empty values keep the defaults.
func WithPaths(registration, match string) Option {
	return func(c *Client) {
		if registration != "" {
			c.registrationPath = registration
		}
		if match != "" {
			c.matchPath = match
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("verification_client")
		}
	}
}

// NewClient builds a client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, logging.NewOperationError("verification.new_client", "", err)
	}

	c := &Client{
		baseURL:          parsed,
		registrationPath: DefaultRegistrationPath,
		matchPath:        DefaultMatchPath,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RegisterLiveness records a completed liveness session for the person.
func (c *Client) RegisterLiveness(ctx context.Context, bearerToken string, req Request) (*Response, error) {
	return c.post(ctx, "verification.register_liveness", c.registrationPath, bearerToken, req)
}

// FaceMatch asks the service to compare the session's capture with the
// person's enrolled face.
func (c *Client) FaceMatch(ctx context.Context, bearerToken string, req Request) (*Response, error) {
	return c.post(ctx, "verification.face_match", c.matchPath, bearerToken, req)
}

func (c *Client) post(ctx context.Context, operation, path, bearerToken string, payload Request) (*Response, error) {
	opLogger := logging.WithOperation(c.logger, operation, payload.SessionID)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, logging.NewOperationError(operation, payload.SessionID, err)
	}

	endpoint := c.baseURL.JoinPath(path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, logging.NewOperationError(operation, payload.SessionID, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearerToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	started := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		wrapped := logging.NewOperationError(operation, payload.SessionID, err)
		opLogger.Error("verification service call failed", zap.Error(wrapped), zap.String("url", endpoint.String()))
		return nil, wrapped
	}
	defer httpResp.Body.Close()

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header.Clone()}
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		wrapped := logging.NewOperationError(operation, payload.SessionID, &ResponseError{Response: resp, Err: err})
		opLogger.Error("failed to read verification response", zap.Error(wrapped), zap.Int("status", resp.StatusCode))
		return nil, wrapped
	}
	resp.Body = data

	opLogger.Debug("verification service responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}
