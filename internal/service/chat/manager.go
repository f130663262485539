package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/agent-chat/internal/gateway"
	"github.com/zhouzirui/agent-chat/internal/model/chat"
)

// ErrSessionEnded reports a session that was ended or replaced while it was
// still being created. The orphaned remote session is closed.
var ErrSessionEnded = errors.New("session ended before it was ready")

// Manager owns the single active agent session and serializes turns on it.
type Manager struct {
	agents  gateway.AgentGateway
	turns   gateway.TurnSender
	agentID string
	copy    Copy
	logger  zerolog.Logger

	mu         sync.Mutex
	session    *chat.Session
	generation uint64
	starts     singleflight.Group
}

// Option customizes a Manager.
type Option func(*Manager)

// WithCopy replaces the fallback wording.
func WithCopy(c Copy) Option {
	return func(m *Manager) {
		m.copy = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTurnSender overrides how turns reach the agent. By default turns are
// sent as completions on the gateway session.
func WithTurnSender(turns gateway.TurnSender) Option {
	return func(m *Manager) {
		m.turns = turns
	}
}

// NewManager creates a manager that opens sessions for agentID on agents.
func NewManager(agents gateway.AgentGateway, agentID string, opts ...Option) *Manager {
	m := &Manager{
		agents:  agents,
		agentID: agentID,
		copy:    DefaultCopy(),
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.turns == nil && agents != nil {
		m.turns = gateway.NewSessionTurns(agents)
	}
	m.logger = m.logger.With().Str("component", "chat").Logger()
	return m
}

// NewStatelessManager creates a manager for a backend without remote sessions.
// Sessions are local bookkeeping only and turns carry no session context.
func NewStatelessManager(turns gateway.TurnSender, opts ...Option) *Manager {
	return NewManager(nil, "", append([]Option{WithTurnSender(turns)}, opts...)...)
}

// Start opens a new session and makes it the active one, replacing any
// previous session. On failure nothing is stored and a *StartError is returned.
func (m *Manager) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	session, err := m.open(ctx, gen)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// Send delivers userText on the active session, opening one first when none
// exists. It always returns displayable text: failures resolve to the
// configured copy for their kind.
func (m *Manager) Send(ctx context.Context, userText string) string {
	if strings.TrimSpace(userText) == "" {
		m.logger.Debug().Msg("ignoring blank message")
		return m.copy.EmptyReply()
	}

	session, err := m.ensureSession(ctx)
	if err != nil {
		kind := Classify(err)
		if errors.Is(err, ErrSessionEnded) {
			m.logger.Info().Msg("session ended before the turn could be sent")
		} else {
			m.logger.Warn().Err(err).Str("kind", string(kind)).Msg("implicit session start failed")
		}
		return m.copy.For(kind)
	}

	logger := m.logger.With().Str("session_id", session.ID).Logger()
	logger.Debug().Int("length", len(userText)).Msg("sending turn")

	reply, err := m.turns.SendTurn(ctx, m.turnContext(session), userText)
	if err != nil {
		kind := Classify(err)
		logger.Error().Err(err).Str("kind", string(kind)).Msg("turn failed")
		return m.copy.For(kind)
	}

	if strings.TrimSpace(reply) == "" {
		logger.Warn().Msg("agent returned an empty reply")
		reply = m.copy.EmptyReply()
	}

	m.mu.Lock()
	if m.session == session {
		session.History = append(session.History,
			chat.ChatMessage{Role: chat.RoleUser, Content: userText},
			chat.ChatMessage{Role: chat.RoleAssistant, Content: reply},
		)
	} else {
		logger.Info().Msg("session changed while turn was in flight, history left untouched")
	}
	m.mu.Unlock()

	return reply
}

// End discards the active session. Remote cleanup is best effort and never
// prevents the local state from being cleared.
func (m *Manager) End(ctx context.Context) {
	m.mu.Lock()
	m.generation++
	session := m.session
	m.session = nil
	m.mu.Unlock()

	if session == nil {
		return
	}

	m.logger.Info().Str("session_id", session.ID).Msg("session ended")
	m.closeRemote(ctx, session)
}

// Active reports whether a session is open.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Session returns a snapshot of the active session.
func (m *Manager) Session() (chat.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return chat.Session{}, false
	}
	return m.session.Clone(), true
}

// History returns a copy of the active session transcript.
func (m *Manager) History() []chat.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return []chat.ChatMessage{}
	}
	return append([]chat.ChatMessage{}, m.session.History...)
}

// Copy returns the fallback wording in use.
func (m *Manager) Copy() Copy {
	return m.copy
}

// open creates a remote session and stores it unless End or Start moved the
// generation on while the gateway call was outstanding.
func (m *Manager) open(ctx context.Context, gen uint64) (*chat.Session, error) {
	info, err := m.createRemote(ctx)
	if err != nil {
		kind := Classify(err)
		m.logger.Error().Err(err).Str("kind", string(kind)).Str("agent_id", m.agentID).Msg("failed to start session")
		return nil, &StartError{Kind: kind, Err: err}
	}

	session := &chat.Session{
		ID:      info.ID,
		AgentID: info.AgentID,
		History: []chat.ChatMessage{},
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Info().Str("session_id", session.ID).Msg("session ended while being created, closing it")
		m.closeRemote(ctx, session)
		return nil, &StartError{Kind: KindUnknown, Err: ErrSessionEnded}
	}
	previous := m.session
	m.session = session
	m.mu.Unlock()

	m.logger.Info().Str("session_id", session.ID).Str("agent_id", session.AgentID).Msg("session started")

	if previous != nil {
		m.logger.Info().Str("session_id", previous.ID).Msg("replaced active session")
		m.closeRemote(ctx, previous)
	}
	return session, nil
}

func (m *Manager) ensureSession(ctx context.Context) (*chat.Session, error) {
	m.mu.Lock()
	session, gen := m.session, m.generation
	m.mu.Unlock()
	if session != nil {
		return session, nil
	}

	// Keyed by generation so a start abandoned by End is never joined by the
	// next conversation.
	v, err, _ := m.starts.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		m.mu.Lock()
		current, moved := m.session, m.generation != gen
		m.mu.Unlock()
		if moved {
			return nil, &StartError{Kind: KindUnknown, Err: ErrSessionEnded}
		}
		if current != nil {
			return current, nil
		}
		return m.open(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*chat.Session), nil
}

func (m *Manager) createRemote(ctx context.Context) (gateway.SessionInfo, error) {
	if m.agents == nil {
		return gateway.SessionInfo{ID: "local-" + uuid.NewString()}, nil
	}
	return m.agents.CreateSession(ctx, m.agentID)
}

func (m *Manager) closeRemote(ctx context.Context, session *chat.Session) {
	if m.agents == nil {
		return
	}
	if err := m.agents.CloseSession(ctx, session.ID); err != nil {
		m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("remote session close failed")
	}
}

func (m *Manager) turnContext(session *chat.Session) *gateway.SessionContext {
	if m.agents == nil {
		return nil
	}
	return &gateway.SessionContext{ID: session.ID, AgentID: session.AgentID}
}
