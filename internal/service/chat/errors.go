package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zhouzirui/agent-chat/internal/gateway"
)

// Kind classifies a gateway failure.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindServer      Kind = "server"
	KindUnknown     Kind = "unknown"
)

// Retryable reports whether resubmitting the same turn can succeed without a
// configuration change.
func (k Kind) Retryable() bool {
	switch k {
	case KindAuth, KindNotFound:
		return false
	default:
		return true
	}
}

// Classify maps an error returned by a gateway to a Kind.
func Classify(err error) Kind {
	var startErr *StartError
	if errors.As(err, &startErr) {
		return startErr.Kind
	}

	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized, statusErr.StatusCode == http.StatusForbidden:
			return KindAuth
		case statusErr.StatusCode == http.StatusNotFound:
			return KindNotFound
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return KindRateLimited
		case statusErr.StatusCode >= http.StatusInternalServerError:
			return KindServer
		}
	}

	return KindUnknown
}

// StartError is returned by Manager.Start when no session could be opened.
type StartError struct {
	Kind Kind
	Err  error
}

func (e *StartError) Error() string {
	switch e.Kind {
	case KindAuth:
		return fmt.Sprintf("authentication failed: %v", e.Err)
	case KindNotFound:
		return fmt.Sprintf("agent not found: %v", e.Err)
	default:
		return fmt.Sprintf("failed to start chat session: %v", e.Err)
	}
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a deadline.
func (e *StartError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
