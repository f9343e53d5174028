package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rickgao/storefront/internal/version"
)

// APIError represents a non-2xx response from the GraphQL API or the
// charge endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storefront api error %d: %s", e.StatusCode, e.Message)
}

// RemoteMessage returns the message the remote service put in the body,
// or "" when the body carried none.
func (e *APIError) RemoteMessage() string {
	return parseRemoteMessage(e.Body)
}

// GraphQLErrorEntry is one element of a GraphQL response's errors array.
type GraphQLErrorEntry struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType,omitempty"`
	Path      []any  `json:"path,omitempty"`
}

// GraphQLError is returned when a 200 response carries GraphQL errors.
type GraphQLError struct {
	Operation string
	Errors    []GraphQLErrorEntry
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return fmt.Sprintf("graphql %s: %s", e.Operation, strings.Join(msgs, "; "))
}

// RemoteMessage returns the first error message.
func (e *GraphQLError) RemoteMessage() string {
	for _, ge := range e.Errors {
		if ge.Message != "" {
			return ge.Message
		}
	}
	return ""
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage     `json:"data"`
	Errors []GraphQLErrorEntry `json:"errors,omitempty"`
}

// doRequest performs an HTTP request and returns the response body.
// body, when non-nil, is sent as JSON.
func (c *Client) doRequest(ctx context.Context, method, fullURL string, body any, header http.Header) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := parseRemoteMessage(respBody)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Body:       respBody,
		}
	}

	return respBody, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("get token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", token)
			return nil
		}
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	return nil
}

// graphql executes one GraphQL operation and decodes data into result.
func (c *Client) graphql(ctx context.Context, operation, query string, vars map[string]any, result any) error {
	body, err := c.doRequest(ctx, http.MethodPost, c.graphqlURL, graphQLRequest{Query: query, Variables: vars}, nil)
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return &GraphQLError{Operation: operation, Errors: resp.Errors}
	}
	if result == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, result); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", operation, err)
	}
	return nil
}

// parseRemoteMessage pulls a human-readable message out of an error body.
// Accepts {"message": "..."}, {"error": "..."} and {"error": {"message": "..."}}.
func parseRemoteMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Error, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}
