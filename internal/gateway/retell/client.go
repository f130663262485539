package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/agent-chat/internal/gateway"
	"github.com/zhouzirui/agent-chat/internal/model/chat"
)

// DefaultBaseURL is the public endpoint of the hosted agent API.
const DefaultBaseURL = "https://api.retellai.com"

// Config holds the client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client talks to the hosted chat agent API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

var _ gateway.AgentGateway = (*Client)(nil)

// NewClient builds a client. A zero timeout defaults to 30 seconds.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "retell").Logger(),
	}
}

type createChatRequest struct {
	AgentID string `json:"agent_id"`
}

type createChatResponse struct {
	ChatID     string `json:"chat_id"`
	AgentID    string `json:"agent_id"`
	ChatStatus string `json:"chat_status"`
}

type completionRequest struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

type completionMessage struct {
	MessageID        string `json:"message_id"`
	Role             string `json:"role"`
	Content          string `json:"content"`
	CreatedTimestamp int64  `json:"created_timestamp"`
}

type completionResponse struct {
	Messages []completionMessage `json:"messages"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// CreateSession opens a chat bound to agentID.
func (c *Client) CreateSession(ctx context.Context, agentID string) (gateway.SessionInfo, error) {
	var resp createChatResponse
	if err := c.do(ctx, http.MethodPost, "/create-chat", createChatRequest{AgentID: agentID}, &resp); err != nil {
		return gateway.SessionInfo{}, err
	}
	if resp.ChatID == "" {
		return gateway.SessionInfo{}, fmt.Errorf("create chat: response missing chat_id")
	}

	c.logger.Debug().Str("chat_id", resp.ChatID).Str("agent_id", agentID).Msg("chat created")

	agent := resp.AgentID
	if agent == "" {
		agent = agentID
	}
	return gateway.SessionInfo{ID: resp.ChatID, AgentID: agent}, nil
}

// CreateCompletion sends content on an open chat.
func (c *Client) CreateCompletion(ctx context.Context, sessionID, content string) (gateway.Completion, error) {
	var resp completionResponse
	req := completionRequest{ChatID: sessionID, Content: content}
	if err := c.do(ctx, http.MethodPost, "/create-chat-completion", req, &resp); err != nil {
		return gateway.Completion{}, err
	}

	messages := make([]chat.ChatMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		role := chat.Role(m.Role)
		if role == "agent" {
			role = chat.RoleAssistant
		}
		messages = append(messages, chat.ChatMessage{Role: role, Content: m.Content})
	}

	c.logger.Debug().Str("chat_id", sessionID).Int("messages", len(messages)).Msg("completion received")
	return gateway.Completion{Messages: messages}, nil
}

// CloseSession ends the chat remotely. The service also expires idle chats on
// its own, so callers treat failures as informational.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPatch, "/end-chat/"+url.PathEscape(sessionID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("request rejected")
		return gateway.NewStatusError(resp.StatusCode, errorMessage(data))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(data))
}
