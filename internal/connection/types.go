package connection

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no keepalive)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrNotStarted      = errors.New("manager not started")
)

// Subprotocol is the websocket subprotocol spoken by the realtime endpoint.
const Subprotocol = "graphql-ws"

// Protocol message types.
const (
	TypeConnectionInit  = "connection_init"
	TypeConnectionAck   = "connection_ack"
	TypeConnectionError = "connection_error"
	TypeKeepalive       = "ka"
	TypeStart           = "start"
	TypeStartAck        = "start_ack"
	TypeData            = "data"
	TypeError           = "error"
	TypeStop            = "stop"
	TypeComplete        = "complete"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Message is the envelope of every protocol message.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConnectionAckPayload is the payload of connection_ack.
type ConnectionAckPayload struct {
	ConnectionTimeoutMs int64 `json:"connectionTimeoutMs"`
}

// StartPayload is the payload of a start message. Data is the JSON
// encoded {query, variables} request, as a string.
type StartPayload struct {
	Data       string          `json:"data"`
	Extensions StartExtensions `json:"extensions"`
}

// StartExtensions carries the authorization header object.
type StartExtensions struct {
	Authorization map[string]string `json:"authorization"`
}

// DataPayload is the payload of a data message.
type DataPayload struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorEntry    `json:"errors,omitempty"`
}

// ErrorEntry is one error reported by the realtime endpoint.
type ErrorEntry struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
	ErrorCode int    `json:"errorCode,omitempty"`
}

// ErrorPayload is the payload of error and connection_error messages.
type ErrorPayload struct {
	Errors []ErrorEntry `json:"errors"`
}

// ProtocolError is an error message from the realtime endpoint.
type ProtocolError struct {
	Type   string // connection_error or error
	ID     string // Subscription id, empty for connection errors
	Errors []ErrorEntry
}

func (e *ProtocolError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ee := range e.Errors {
		if ee.Message != "" {
			msgs = append(msgs, ee.Message)
		} else {
			msgs = append(msgs, ee.ErrorType)
		}
	}
	if e.ID != "" {
		return fmt.Sprintf("realtime %s (%s): %s", e.Type, e.ID, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("realtime %s: %s", e.Type, strings.Join(msgs, "; "))
}

// RemoteMessage returns the first error message.
func (e *ProtocolError) RemoteMessage() string {
	for _, ee := range e.Errors {
		if ee.Message != "" {
			return ee.Message
		}
	}
	return ""
}

func newProtocolError(msg Message) *ProtocolError {
	var payload ErrorPayload
	_ = json.Unmarshal(msg.Payload, &payload)
	return &ProtocolError{Type: msg.Type, ID: msg.ID, Errors: payload.Errors}
}

// RealtimeURL builds the connection URL: the authorization header object
// and an empty payload travel base64 encoded in the query string.
func RealtimeURL(base string, header map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	h, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}

	q := u.Query()
	q.Set("header", base64.StdEncoding.EncodeToString(h))
	q.Set("payload", base64.StdEncoding.EncodeToString([]byte("{}")))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Full realtime URL including header/payload query
	KeepaliveTimeout time.Duration // Max silence before the connection is stale (0 = take it from connection_ack)
	HandshakeTimeout time.Duration // Dial plus connection_init/ack
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the subscription Manager.
type ManagerConfig struct {
	URL              string        // Realtime endpoint, e.g. wss://xyz.appsync-realtime-api.us-east-1.amazonaws.com/graphql
	Host             string        // GraphQL API host the authorization header is issued for
	APIKey           string        // Used when no Signer is configured
	SubscribeTimeout time.Duration // Max wait for start_ack
	KeepaliveTimeout time.Duration // 0 = use the server's connectionTimeoutMs
	BufferSize       int           // Per-feed event buffer
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SubscribeTimeout: 10 * time.Second,
		BufferSize:       256,
	}
}

// ManagerStats provides statistics about the manager.
type ManagerStats struct {
	Connected bool
	Feeds     int
}
