package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/agent-chat/internal/model/chat"
	chatservice "github.com/zhouzirui/agent-chat/internal/service/chat"
)

// Phase is the visible state of the conversation.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
	// PhaseEnded is transitional; the machine returns to idle once cleanup is done.
	PhaseEnded Phase = "ended"
)

const initialMessageID int64 = 1

var (
	ErrBusy          = errors.New("a message is already in flight")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNotActive     = errors.New("conversation is not active")
	ErrAlreadyActive = errors.New("conversation is already active")
	ErrStale         = errors.New("conversation was reset before the reply arrived")
)

// SessionManager is the part of the chat session manager the machine drives.
type SessionManager interface {
	Start(ctx context.Context) (string, error)
	Send(ctx context.Context, text string) string
	End(ctx context.Context)
}

// Config controls what happens when a conversation is entered.
type Config struct {
	// EagerStart opens the session on entry instead of on the first submit.
	EagerStart bool
	// Intro is shown as the first assistant message without calling the agent.
	Intro string
	// Greeting is sent on entry; only the agent's reply is displayed.
	Greeting string
	// Welcome replaces an empty greeting reply. Defaults to the built-in copy.
	Welcome string
	// EmptyReply replaces an empty reply to a submitted message. Defaults to
	// the built-in copy.
	EmptyReply string
}

// Snapshot is a consistent copy of the machine state.
type Snapshot struct {
	Phase      Phase          `json:"phase"`
	Loading    bool           `json:"loading"`
	Generation uint64         `json:"generation"`
	Messages   []chat.Message `json:"messages"`
}

// Exchange is one completed turn.
type Exchange struct {
	User      chat.Message `json:"user"`
	Assistant chat.Message `json:"assistant"`
}

// Machine tracks the conversation phase, the displayed messages and the
// loading gate that keeps at most one session call outstanding.
type Machine struct {
	session SessionManager
	cfg     Config
	logger  zerolog.Logger

	mu          sync.Mutex
	phase       Phase
	loading     bool
	nextID      int64
	generation  uint64
	messages    []chat.Message
	subscribers map[int]chan Snapshot
	nextSub     int
}

// New creates an idle machine.
func New(session SessionManager, cfg Config, logger zerolog.Logger) *Machine {
	defaults := chatservice.DefaultCopy()
	if strings.TrimSpace(cfg.EmptyReply) == "" {
		cfg.EmptyReply = defaults.EmptyReply()
	}
	if strings.TrimSpace(cfg.Welcome) == "" {
		cfg.Welcome = defaults.WelcomeText()
	}
	return &Machine{
		session:     session,
		cfg:         cfg,
		logger:      logger.With().Str("component", "conversation").Logger(),
		phase:       PhaseIdle,
		nextID:      initialMessageID,
		subscribers: make(map[int]chan Snapshot),
	}
}

// Enter moves idle to active, optionally opening the session and fetching the
// agent's greeting.
func (m *Machine) Enter(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseIdle {
		m.mu.Unlock()
		return ErrAlreadyActive
	}
	if m.loading {
		m.mu.Unlock()
		return ErrBusy
	}

	m.phase = PhaseActive
	gen := m.generation
	if m.cfg.Intro != "" {
		m.messages = append(m.messages, chat.NewMessage(m.reserve(1), chat.SenderAssistant, m.cfg.Intro))
	}

	var greetingID int64
	if m.cfg.Greeting != "" {
		greetingID = m.reserve(1)
	}
	calls := m.cfg.EagerStart || m.cfg.Greeting != ""
	m.loading = calls
	m.mu.Unlock()
	m.notify()

	m.logger.Info().Uint64("generation", gen).Msg("conversation entered")
	if !calls {
		return nil
	}

	if m.cfg.EagerStart {
		if _, err := m.session.Start(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("eager session start failed, deferring to first message")
		}
	}

	var greeting chat.Message
	if m.cfg.Greeting != "" {
		reply := m.session.Send(ctx, m.cfg.Greeting)
		if strings.TrimSpace(reply) == "" {
			reply = m.cfg.Welcome
		}
		greeting = chat.NewMessage(greetingID, chat.SenderAssistant, reply)
	}

	m.mu.Lock()
	m.loading = false
	stale := gen != m.generation
	if !stale && greeting.Text != "" {
		m.insert(greeting)
	}
	m.mu.Unlock()
	m.notify()

	if stale {
		return ErrStale
	}
	return nil
}

// Submit sends text as the next user turn. It is rejected while another call
// is in flight; nothing is queued.
func (m *Machine) Submit(ctx context.Context, text string) (Exchange, error) {
	trimmed := strings.TrimSpace(text)

	m.mu.Lock()
	if m.phase != PhaseActive {
		m.mu.Unlock()
		return Exchange{}, ErrNotActive
	}
	if m.loading {
		m.mu.Unlock()
		return Exchange{}, ErrBusy
	}
	if trimmed == "" {
		m.mu.Unlock()
		return Exchange{}, ErrEmptyMessage
	}

	userID := m.reserve(2)
	assistantID := userID + 1
	user := chat.NewMessage(userID, chat.SenderUser, trimmed)
	m.messages = append(m.messages, user)
	m.loading = true
	gen := m.generation
	m.mu.Unlock()
	m.notify()

	reply := m.session.Send(ctx, trimmed)
	if strings.TrimSpace(reply) == "" {
		reply = m.cfg.EmptyReply
	}
	assistant := chat.NewMessage(assistantID, chat.SenderAssistant, reply)

	m.mu.Lock()
	m.loading = false
	if gen != m.generation {
		m.mu.Unlock()
		m.notify()
		m.logger.Info().Int64("message_id", assistantID).Msg("discarding reply for a reset conversation")
		return Exchange{}, ErrStale
	}
	m.insert(assistant)
	m.mu.Unlock()
	m.notify()

	return Exchange{User: user, Assistant: assistant}, nil
}

// Exit ends the session and resets the conversation to idle. Exiting an idle
// conversation does nothing.
func (m *Machine) Exit(ctx context.Context) {
	m.mu.Lock()
	if m.phase != PhaseActive {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseEnded
	m.generation++
	m.mu.Unlock()
	m.notify()

	m.session.End(ctx)

	m.mu.Lock()
	m.messages = nil
	m.nextID = initialMessageID
	m.phase = PhaseIdle
	m.mu.Unlock()
	m.notify()

	m.logger.Info().Msg("conversation exited")
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Messages returns the displayed messages ordered by id.
func (m *Machine) Messages() []chat.Message {
	return m.Snapshot().Messages
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Loading reports whether a session call is outstanding.
func (m *Machine) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Subscribe returns a channel receiving a snapshot after every change. A slow
// reader only sees the latest snapshot. Call cancel to unsubscribe.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Machine) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked()
	for _, ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:      m.phase,
		Loading:    m.loading,
		Generation: m.generation,
		Messages:   append([]chat.Message{}, m.messages...),
	}
}

// reserve hands out n consecutive ids. Callers hold mu.
func (m *Machine) reserve(n int64) int64 {
	id := m.nextID
	m.nextID += n
	return id
}

// insert places msg by id. Callers hold mu.
func (m *Machine) insert(msg chat.Message) {
	i := sort.Search(len(m.messages), func(i int) bool {
		return m.messages[i].ID > msg.ID
	})
	m.messages = append(m.messages, chat.Message{})
	copy(m.messages[i+1:], m.messages[i:])
	m.messages[i] = msg
}
