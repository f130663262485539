package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/agent-chat/internal/gateway"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"401", gateway.NewStatusError(http.StatusUnauthorized, ""), KindAuth},
		{"403", gateway.NewStatusError(http.StatusForbidden, ""), KindAuth},
		{"404", gateway.NewStatusError(http.StatusNotFound, ""), KindNotFound},
		{"429", gateway.NewStatusError(http.StatusTooManyRequests, ""), KindRateLimited},
		{"500", gateway.NewStatusError(http.StatusInternalServerError, ""), KindServer},
		{"503 wrapped", fmt.Errorf("call: %w", gateway.NewStatusError(http.StatusServiceUnavailable, "")), KindServer},
		{"400", gateway.NewStatusError(http.StatusBadRequest, ""), KindUnknown},
		{"deadline", context.DeadlineExceeded, KindUnknown},
		{"plain", errors.New("dial tcp: refused"), KindUnknown},
		{"start error", &StartError{Kind: KindRateLimited, Err: errors.New("x")}, KindRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKindRetryable(t *testing.T) {
	assert.False(t, KindAuth.Retryable())
	assert.False(t, KindNotFound.Retryable())
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindServer.Retryable())
	assert.True(t, KindUnknown.Retryable())
}

func TestStartErrorMessages(t *testing.T) {
	cause := errors.New("cause")

	assert.Contains(t, (&StartError{Kind: KindAuth, Err: cause}).Error(), "authentication failed")
	assert.Contains(t, (&StartError{Kind: KindNotFound, Err: cause}).Error(), "agent not found")
	assert.Contains(t, (&StartError{Kind: KindServer, Err: cause}).Error(), "failed to start chat session")
	assert.ErrorIs(t, &StartError{Kind: KindUnknown, Err: cause}, cause)
	assert.True(t, (&StartError{Kind: KindUnknown, Err: fmt.Errorf("x: %w", context.DeadlineExceeded)}).Timeout())
}
