package gateway

import (
	"context"
	"errors"

	"github.com/zhouzirui/agent-chat/internal/model/chat"
)

// ErrSessionRequired is returned by session-bound senders called without a session.
var ErrSessionRequired = errors.New("session context is required")

// SessionInfo is the result of opening a remote session.
type SessionInfo struct {
	ID      string
	AgentID string
}

// Completion is the remote reply to one user turn. Messages may hold the whole
// running transcript; only the last entry belongs to the current turn.
type Completion struct {
	Messages []chat.ChatMessage
}

// Last returns the final message of the completion, if any.
func (c Completion) Last() (chat.ChatMessage, bool) {
	if len(c.Messages) == 0 {
		return chat.ChatMessage{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// AgentGateway is the session-oriented conversational agent boundary.
type AgentGateway interface {
	CreateSession(ctx context.Context, agentID string) (SessionInfo, error)
	CreateCompletion(ctx context.Context, sessionID, content string) (Completion, error)
	// CloseSession is best effort; callers must not depend on it succeeding.
	CloseSession(ctx context.Context, sessionID string) error
}

// SessionContext identifies the session a turn belongs to. A nil context means
// the turn is stateless.
type SessionContext struct {
	ID      string
	AgentID string
}

// TurnSender sends one user turn and returns the reply text.
type TurnSender interface {
	SendTurn(ctx context.Context, session *SessionContext, text string) (string, error)
}

// SessionTurns adapts an AgentGateway to TurnSender.
type SessionTurns struct {
	Gateway AgentGateway
}

// NewSessionTurns wraps g.
func NewSessionTurns(g AgentGateway) *SessionTurns {
	return &SessionTurns{Gateway: g}
}

// SendTurn requests a completion on the given session and returns the content
// of the last returned message. An empty completion yields an empty string.
func (s *SessionTurns) SendTurn(ctx context.Context, session *SessionContext, text string) (string, error) {
	if session == nil || session.ID == "" {
		return "", ErrSessionRequired
	}

	completion, err := s.Gateway.CreateCompletion(ctx, session.ID, text)
	if err != nil {
		return "", err
	}

	last, ok := completion.Last()
	if !ok {
		return "", nil
	}
	return last.Content, nil
}
