package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/agent-chat/internal/gateway"
)

// Client calls a stateless chat backend exposing POST /chat.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

var _ gateway.TurnSender = (*Client)(nil)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// NewClient builds a client for baseURL. A zero timeout defaults to 30 seconds.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "chat-backend").Logger(),
	}
}

// SendTurn posts text to the backend. The backend keeps no session, so the
// session context is ignored.
func (c *Client) SendTurn(ctx context.Context, _ *gateway.SessionContext, text string) (string, error) {
	payload, err := json.Marshal(chatRequest{Message: text})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post chat: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().Str("request_id", requestID).Int("status", resp.StatusCode).Msg("chat backend rejected request")
		return "", gateway.NewStatusError(resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	c.logger.Debug().Str("request_id", requestID).Int("length", len(out.Response)).Msg("chat backend replied")
	return out.Response, nil
}
