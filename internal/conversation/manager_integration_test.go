package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agent-chat/internal/gateway"
	"github.com/zhouzirui/agent-chat/internal/model/chat"
	chatservice "github.com/zhouzirui/agent-chat/internal/service/chat"
)

// slowGateway holds its first CreateSession call until release is closed.
type slowGateway struct {
	mu      sync.Mutex
	creates int
	closes  []string

	entered chan struct{}
	release chan struct{}
}

func newSlowGateway() *slowGateway {
	return &slowGateway{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *slowGateway) CreateSession(_ context.Context, agentID string) (gateway.SessionInfo, error) {
	g.mu.Lock()
	g.creates++
	n := g.creates
	g.mu.Unlock()

	if n == 1 {
		close(g.entered)
		<-g.release
	}
	return gateway.SessionInfo{ID: fmt.Sprintf("chat_%d", n), AgentID: agentID}, nil
}

func (g *slowGateway) CreateCompletion(_ context.Context, _, content string) (gateway.Completion, error) {
	return gateway.Completion{Messages: []chat.ChatMessage{
		{Role: chat.RoleUser, Content: content},
		{Role: chat.RoleAssistant, Content: "re: " + content},
	}}, nil
}

func (g *slowGateway) CloseSession(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes = append(g.closes, sessionID)
	return nil
}

func (g *slowGateway) closed() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.closes...)
}

func newManagedMachine(gw gateway.AgentGateway, cfg Config) (*Machine, *chatservice.Manager) {
	mgr := chatservice.NewManager(gw, "agent_test", chatservice.WithLogger(zerolog.Nop()))
	return New(mgr, cfg, zerolog.Nop()), mgr
}

func TestMachine_ExitDuringLazyStartLeavesNoSession(t *testing.T) {
	gw := newSlowGateway()
	m, mgr := newManagedMachine(gw, Config{})
	ctx := context.Background()
	require.NoError(t, m.Enter(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(ctx, "old")
		done <- err
	}()
	<-gw.entered

	m.Exit(ctx)
	close(gw.release)
	assert.ErrorIs(t, <-done, ErrStale)

	assert.False(t, mgr.Active())
	assert.Empty(t, mgr.History())
	assert.Equal(t, []string{"chat_1"}, gw.closed())

	require.NoError(t, m.Enter(ctx))
	ex, err := m.Submit(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "re: new", ex.Assistant.Text)

	session, ok := mgr.Session()
	require.True(t, ok)
	assert.Equal(t, "chat_2", session.ID)
	assert.Equal(t, []chat.ChatMessage{
		{Role: chat.RoleUser, Content: "new"},
		{Role: chat.RoleAssistant, Content: "re: new"},
	}, mgr.History())
}

func TestMachine_ExitDuringEagerStartLeavesNoSession(t *testing.T) {
	gw := newSlowGateway()
	m, mgr := newManagedMachine(gw, Config{EagerStart: true})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- m.Enter(ctx)
	}()
	<-gw.entered

	m.Exit(ctx)
	close(gw.release)
	assert.ErrorIs(t, <-done, ErrStale)
	assert.False(t, mgr.Active())
	assert.Equal(t, []string{"chat_1"}, gw.closed())

	require.NoError(t, m.Enter(ctx))
	session, ok := mgr.Session()
	require.True(t, ok)
	assert.Equal(t, "chat_2", session.ID)
	assert.Empty(t, mgr.History())
	assert.Empty(t, m.Messages())
}
