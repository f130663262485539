package gateway

import (
	"fmt"
	"net/http"
)

// StatusError reports a non-success response from a remote gateway.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("gateway returned %d %s: %s", e.StatusCode, text, e.Message)
}

// NewStatusError builds a StatusError.
func NewStatusError(status int, message string) *StatusError {
	return &StatusError{StatusCode: status, Message: message}
}
