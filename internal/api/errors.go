package api

import (
	"errors"
	"net/http"

	"github.com/rickgao/storefront/internal/model"
)

// ErrInvalidInput marks a request rejected locally before any network call.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound is returned when a queried record does not exist.
var ErrNotFound = errors.New("not found")

// Kind classifies a failure for user-facing handling.
type Kind int

const (
	// KindUnknown is returned for nil errors.
	KindUnknown Kind = iota
	// KindTransient is a network failure. The user may retry; nothing retries automatically.
	KindTransient
	// KindValidation is bad local input.
	KindValidation
	// KindRemote is a rejection by a remote service, authorization failures included.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// RemoteError is implemented by errors that carry a message written by a
// remote service.
type RemoteError interface {
	error
	RemoteMessage() string
}

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, model.ErrInvalidAmount) {
		return KindValidation
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests {
			return KindTransient
		}
		return KindRemote
	}
	var remote RemoteError
	if errors.As(err, &remote) {
		return KindRemote
	}

	// Anything else failed on the way: timeouts, cancellation, dial and
	// read errors, undecodable responses.
	return KindTransient
}

// RemoteMessage returns the verbatim remote message carried by err, if any.
func RemoteMessage(err error) (string, bool) {
	var remote RemoteError
	if errors.As(err, &remote) {
		if msg := remote.RemoteMessage(); msg != "" {
			return msg, true
		}
	}
	return "", false
}

// UserMessage returns the remote message when present, otherwise fallback.
func UserMessage(err error, fallback string) string {
	if msg, ok := RemoteMessage(err); ok {
		return msg
	}
	return fallback
}
