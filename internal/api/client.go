package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// TokenSource supplies the bearer token attached to every request.
// An empty token means the request goes out unauthenticated (or with the
// API key, if one is configured).
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Client provides access to the managed GraphQL API and the charge endpoint.
type Client struct {
	graphqlURL string
	chargeURL  string
	apiKey     string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger

	pageSize int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new API client for the GraphQL endpoint at graphqlURL.
func NewClient(graphqlURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		graphqlURL: graphqlURL,
		tokens:     tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:   slog.Default(),
		pageSize: 999,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithChargeURL sets the base URL of the remote charge endpoint.
func WithChargeURL(u string) ClientOption {
	return func(c *Client) {
		c.chargeURL = u
	}
}

// WithAPIKey sets the key sent when no bearer token is available.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithPageSize caps nested product and order lists.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// PageSize returns the configured list cap.
func (c *Client) PageSize() int {
	return c.pageSize
}
