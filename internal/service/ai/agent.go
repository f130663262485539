package ai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/agent-chat/internal/gateway"
	"github.com/zhouzirui/agent-chat/internal/model/agent"
	"github.com/zhouzirui/agent-chat/internal/model/chat"
)

const historyLimit = 10

// Agent is a conversational agent backed by a local chat model chain. It keeps
// one transcript per session and serves both the session gateway and the
// stateless turn contracts.
type Agent struct {
	profiles       agent.Store
	defaultAgentID string
	chain          compose.Runnable[map[string]any, *schema.Message]
	logger         zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*transcript
}

type transcript struct {
	profile   agent.Profile
	messages  []chat.ChatMessage
	createdAt time.Time
}

var (
	_ gateway.AgentGateway = (*Agent)(nil)
	_ gateway.TurnSender   = (*Agent)(nil)
)

// NewAgent compiles the prompt chain around chatModel. defaultAgentID selects
// the profile used for stateless turns.
func NewAgent(ctx context.Context, chatModel model.BaseChatModel, profiles agent.Store, defaultAgentID string, logger zerolog.Logger) (*Agent, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Agent{
		profiles:       profiles,
		defaultAgentID: defaultAgentID,
		chain:          runnable,
		logger:         logger.With().Str("component", "ai").Logger(),
		sessions:       make(map[string]*transcript),
	}, nil
}

// CreateSession opens a transcript for a known profile.
func (a *Agent) CreateSession(_ context.Context, agentID string) (gateway.SessionInfo, error) {
	profile, ok := a.profiles.FindByID(agentID)
	if !ok {
		return gateway.SessionInfo{}, gateway.NewStatusError(http.StatusNotFound, fmt.Sprintf("agent %q not found", agentID))
	}

	id := uuid.NewString()
	a.mu.Lock()
	a.sessions[id] = &transcript{profile: profile, createdAt: time.Now().UTC()}
	a.mu.Unlock()

	a.logger.Info().Str("session_id", id).Str("agent_id", agentID).Msg("session created")
	return gateway.SessionInfo{ID: id, AgentID: agentID}, nil
}

// CreateCompletion answers content and returns the whole running transcript.
func (a *Agent) CreateCompletion(ctx context.Context, sessionID, content string) (gateway.Completion, error) {
	a.mu.Lock()
	t, ok := a.sessions[sessionID]
	var profile agent.Profile
	var history []chat.ChatMessage
	if ok {
		profile = t.profile
		history = append([]chat.ChatMessage(nil), t.messages...)
	}
	a.mu.Unlock()

	if !ok {
		return gateway.Completion{}, gateway.NewStatusError(http.StatusNotFound, fmt.Sprintf("session %q not found", sessionID))
	}

	reply, err := a.generate(ctx, profile, history, content)
	if err != nil {
		return gateway.Completion{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok = a.sessions[sessionID]; ok {
		t.messages = append(t.messages,
			chat.ChatMessage{Role: chat.RoleUser, Content: content},
			chat.ChatMessage{Role: chat.RoleAssistant, Content: reply},
		)
		history = append([]chat.ChatMessage(nil), t.messages...)
	} else {
		history = append(history,
			chat.ChatMessage{Role: chat.RoleUser, Content: content},
			chat.ChatMessage{Role: chat.RoleAssistant, Content: reply},
		)
	}

	a.logger.Info().Str("session_id", sessionID).Int("length", len(reply)).Msg("generated response")
	return gateway.Completion{Messages: history}, nil
}

// CloseSession drops the transcript. Unknown sessions are ignored.
func (a *Agent) CloseSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
	return nil
}

// SendTurn answers text. Without a session context the default profile is
// used and nothing is remembered.
func (a *Agent) SendTurn(ctx context.Context, session *gateway.SessionContext, text string) (string, error) {
	if session != nil {
		completion, err := a.CreateCompletion(ctx, session.ID, text)
		if err != nil {
			return "", err
		}
		last, _ := completion.Last()
		return last.Content, nil
	}

	profile, ok := a.profiles.FindByID(a.defaultAgentID)
	if !ok {
		return "", gateway.NewStatusError(http.StatusNotFound, fmt.Sprintf("agent %q not found", a.defaultAgentID))
	}
	return a.generate(ctx, profile, nil, text)
}

// Sessions reports how many transcripts are open.
func (a *Agent) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func (a *Agent) generate(ctx context.Context, profile agent.Profile, history []chat.ChatMessage, query string) (string, error) {
	input := map[string]any{
		"system":  BuildSystemPrompt(profile),
		"history": buildHistoryMessages(history),
		"query":   query,
	}

	response, err := a.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", nil
	}
	return response.Content, nil
}

func buildHistoryMessages(messages []chat.ChatMessage) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
