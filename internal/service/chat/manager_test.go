package chat_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agent-chat/internal/gateway"
	"github.com/zhouzirui/agent-chat/internal/model/chat"
	chatservice "github.com/zhouzirui/agent-chat/internal/service/chat"
)

// fakeGateway implements gateway.AgentGateway for tests.
type fakeGateway struct {
	mu sync.Mutex

	createErr     error
	completionErr error
	closeErr      error
	completion    gateway.Completion
	createDelay   time.Duration
	createHook    func()
	completeHook  func()

	creates     int
	completions int
	closes      []string
	lastContent string
}

func (f *fakeGateway) CreateSession(_ context.Context, agentID string) (gateway.SessionInfo, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	if f.createHook != nil {
		f.createHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return gateway.SessionInfo{}, f.createErr
	}
	f.creates++
	return gateway.SessionInfo{ID: fmt.Sprintf("chat_%d", f.creates), AgentID: agentID}, nil
}

func (f *fakeGateway) CreateCompletion(_ context.Context, sessionID, content string) (gateway.Completion, error) {
	if f.completeHook != nil {
		f.completeHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions++
	f.lastContent = content
	if f.completionErr != nil {
		return gateway.Completion{}, f.completionErr
	}
	return f.completion, nil
}

func (f *fakeGateway) CloseSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, sessionID)
	return f.closeErr
}

func reply(text string) gateway.Completion {
	return gateway.Completion{Messages: []chat.ChatMessage{{Role: chat.RoleAssistant, Content: text}}}
}

func newManager(gw *fakeGateway) *chatservice.Manager {
	return chatservice.NewManager(gw, "agent_test", chatservice.WithLogger(zerolog.Nop()))
}

func TestManager_SendReturnsLastMessageAndRecordsHistory(t *testing.T) {
	gw := &fakeGateway{completion: reply("Welcome!")}
	mgr := newManager(gw)

	got := mgr.Send(context.Background(), "Hi")

	assert.Equal(t, "Welcome!", got)
	assert.Equal(t, []chat.ChatMessage{
		{Role: chat.RoleUser, Content: "Hi"},
		{Role: chat.RoleAssistant, Content: "Welcome!"},
	}, mgr.History())
}

func TestManager_SendUsesFinalEntryOfTranscript(t *testing.T) {
	gw := &fakeGateway{completion: gateway.Completion{Messages: []chat.ChatMessage{
		{Role: chat.RoleAssistant, Content: "earlier"},
		{Role: chat.RoleUser, Content: "Hi"},
		{Role: chat.RoleAssistant, Content: "now"},
	}}}
	mgr := newManager(gw)

	assert.Equal(t, "now", mgr.Send(context.Background(), "Hi"))
}

func TestManager_SendWithoutStartCreatesExactlyOneSession(t *testing.T) {
	gw := &fakeGateway{completion: reply("ok")}
	mgr := newManager(gw)

	mgr.Send(context.Background(), "hello")

	assert.Equal(t, 1, gw.creates)
	assert.Equal(t, 1, gw.completions)
	assert.Equal(t, "hello", gw.lastContent)

	mgr.Send(context.Background(), "again")
	assert.Equal(t, 1, gw.creates)
	assert.Equal(t, 2, gw.completions)
}

func TestManager_ConcurrentLazyStartsCollapse(t *testing.T) {
	gw := &fakeGateway{completion: reply("ok"), createDelay: 20 * time.Millisecond}
	mgr := newManager(gw)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Send(context.Background(), "hi")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, gw.creates)
	assert.Equal(t, 5, gw.completions)
}

func TestManager_SendNeverFails(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", gateway.NewStatusError(http.StatusUnauthorized, "bad key"), chatservice.DefaultCopy().Auth},
		{"not found", gateway.NewStatusError(http.StatusNotFound, ""), chatservice.DefaultCopy().NotFound},
		{"rate limited", gateway.NewStatusError(http.StatusTooManyRequests, ""), chatservice.DefaultCopy().RateLimited},
		{"server error", gateway.NewStatusError(http.StatusInternalServerError, ""), chatservice.DefaultCopy().Server},
		{"bad gateway", gateway.NewStatusError(http.StatusBadGateway, ""), chatservice.DefaultCopy().Server},
		{"timeout", fmt.Errorf("post: %w", context.DeadlineExceeded), chatservice.DefaultCopy().Unknown},
		{"network", errors.New("connection refused"), chatservice.DefaultCopy().Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{completionErr: tt.err}
			mgr := newManager(gw)

			got := mgr.Send(context.Background(), "hello")

			assert.NotEmpty(t, got)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, mgr.History(), "history must not change on failure")
		})
	}
}

func TestManager_SendWhenImplicitStartFails(t *testing.T) {
	gw := &fakeGateway{createErr: gateway.NewStatusError(http.StatusUnauthorized, "")}
	mgr := newManager(gw)

	got := mgr.Send(context.Background(), "hello")

	assert.Equal(t, chatservice.DefaultCopy().Auth, got)
	assert.Equal(t, 0, gw.completions)
	assert.False(t, mgr.Active())
}

func TestManager_SendEmptyCompletion(t *testing.T) {
	for name, completion := range map[string]gateway.Completion{
		"absent":        {},
		"empty list":    {Messages: []chat.ChatMessage{}},
		"empty content": reply(""),
		"blank content": reply("   "),
	} {
		t.Run(name, func(t *testing.T) {
			mgr := newManager(&fakeGateway{completion: completion})

			got := mgr.Send(context.Background(), "hello")

			assert.Equal(t, chatservice.DefaultCopy().Empty, got)
		})
	}
}

func TestManager_StartUnauthorized(t *testing.T) {
	gw := &fakeGateway{createErr: gateway.NewStatusError(http.StatusUnauthorized, "")}
	mgr := newManager(gw)

	id, err := mgr.Start(context.Background())

	require.Error(t, err)
	assert.Empty(t, id)

	var startErr *chatservice.StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, chatservice.KindAuth, startErr.Kind)
	assert.Contains(t, err.Error(), "authentication failed")

	_, ok := mgr.Session()
	assert.False(t, ok)
}

func TestManager_StartNotFound(t *testing.T) {
	gw := &fakeGateway{createErr: gateway.NewStatusError(http.StatusNotFound, "agent missing")}
	mgr := newManager(gw)

	_, err := mgr.Start(context.Background())

	assert.Equal(t, chatservice.KindNotFound, chatservice.Classify(err))
	assert.False(t, mgr.Active())
}

func TestManager_StartReplacesActiveSession(t *testing.T) {
	gw := &fakeGateway{completion: reply("ok")}
	mgr := newManager(gw)
	ctx := context.Background()

	first, err := mgr.Start(ctx)
	require.NoError(t, err)
	mgr.Send(ctx, "hi")
	require.Len(t, mgr.History(), 2)

	second, err := mgr.Start(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Empty(t, mgr.History())
	assert.Equal(t, []string{first}, gw.closes)

	session, ok := mgr.Session()
	require.True(t, ok)
	assert.Equal(t, second, session.ID)
	assert.Equal(t, "agent_test", session.AgentID)
}

func TestManager_EndThenStartHasNoLeakage(t *testing.T) {
	gw := &fakeGateway{completion: reply("ok")}
	mgr := newManager(gw)
	ctx := context.Background()

	mgr.Send(ctx, "one")
	mgr.End(ctx)
	_, err := mgr.Start(ctx)
	require.NoError(t, err)

	assert.Empty(t, mgr.History())
}

func TestManager_EndWithoutSession(t *testing.T) {
	gw := &fakeGateway{}
	mgr := newManager(gw)

	mgr.End(context.Background())

	assert.Empty(t, mgr.History())
	assert.Empty(t, gw.closes)
}

func TestManager_EndClearsLocallyWhenRemoteCloseFails(t *testing.T) {
	gw := &fakeGateway{completion: reply("ok"), closeErr: errors.New("boom")}
	mgr := newManager(gw)
	ctx := context.Background()

	id, err := mgr.Start(ctx)
	require.NoError(t, err)

	mgr.End(ctx)

	assert.False(t, mgr.Active())
	assert.Equal(t, []string{id}, gw.closes)
}

func TestManager_LateReplyDoesNotLeakIntoNewSession(t *testing.T) {
	gw := &fakeGateway{completion: reply("late")}
	mgr := newManager(gw)
	ctx := context.Background()

	_, err := mgr.Start(ctx)
	require.NoError(t, err)

	gw.completeHook = func() {
		gw.completeHook = nil
		mgr.End(ctx)
		_, _ = mgr.Start(ctx)
	}

	got := mgr.Send(ctx, "slow question")

	assert.Equal(t, "late", got)
	assert.Empty(t, mgr.History())
}

// blockFirstCreate holds the first CreateSession call until release is closed.
func blockFirstCreate(gw *fakeGateway) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var calls atomic.Int32
	gw.createHook = func() {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	}
	return entered, release
}

func (f *fakeGateway) closed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closes...)
}

func TestManager_EndDuringImplicitStartDiscardsSession(t *testing.T) {
	gw := &fakeGateway{completion: reply("old answer")}
	entered, release := blockFirstCreate(gw)
	mgr := newManager(gw)
	ctx := context.Background()

	done := make(chan string, 1)
	go func() { done <- mgr.Send(ctx, "old question") }()
	<-entered

	mgr.End(ctx)
	close(release)
	got := <-done

	assert.Equal(t, chatservice.DefaultCopy().Unknown, got)
	assert.False(t, mgr.Active())
	assert.Empty(t, mgr.History())
	assert.Equal(t, 0, gw.completions)
	assert.Equal(t, []string{"chat_1"}, gw.closed(), "the orphaned session is closed remotely")

	assert.Equal(t, "old answer", mgr.Send(ctx, "new question"))
	session, ok := mgr.Session()
	require.True(t, ok)
	assert.Equal(t, "chat_2", session.ID)
	assert.Equal(t, []chat.ChatMessage{
		{Role: chat.RoleUser, Content: "new question"},
		{Role: chat.RoleAssistant, Content: "old answer"},
	}, session.History)
}

func TestManager_SendAfterEndDoesNotJoinAbandonedStart(t *testing.T) {
	gw := &fakeGateway{completion: reply("ok")}
	entered, release := blockFirstCreate(gw)
	mgr := newManager(gw)
	ctx := context.Background()

	stale := make(chan string, 1)
	go func() { stale <- mgr.Send(ctx, "old question") }()
	<-entered
	mgr.End(ctx)

	assert.Equal(t, "ok", mgr.Send(ctx, "new question"))
	fresh, ok := mgr.Session()
	require.True(t, ok)

	close(release)
	assert.Equal(t, chatservice.DefaultCopy().Unknown, <-stale)

	closes := gw.closed()
	require.Len(t, closes, 1)
	assert.NotEqual(t, fresh.ID, closes[0])

	current, ok := mgr.Session()
	require.True(t, ok)
	assert.Equal(t, fresh.ID, current.ID)
	assert.Len(t, current.History, 2)
}

func TestManager_StartDuringImplicitStartWins(t *testing.T) {
	gw := &fakeGateway{completion: reply("ok")}
	entered, release := blockFirstCreate(gw)
	mgr := newManager(gw)
	ctx := context.Background()

	done := make(chan string, 1)
	go func() { done <- mgr.Send(ctx, "hello") }()
	<-entered

	id, err := mgr.Start(ctx)
	require.NoError(t, err)
	close(release)
	<-done

	session, ok := mgr.Session()
	require.True(t, ok)
	assert.Equal(t, id, session.ID)
	assert.Empty(t, session.History)
	assert.Len(t, gw.closed(), 1)
}

func TestManager_SendBlankTextSkipsGateway(t *testing.T) {
	gw := &fakeGateway{completion: reply("ok")}
	mgr := newManager(gw)

	for _, text := range []string{"", "   ", "\n\t"} {
		assert.Equal(t, chatservice.DefaultCopy().Empty, mgr.Send(context.Background(), text))
	}

	assert.Equal(t, 0, gw.creates)
	assert.Equal(t, 0, gw.completions)
	assert.Empty(t, mgr.History())
}

func TestManager_CustomCopy(t *testing.T) {
	gw := &fakeGateway{completionErr: gateway.NewStatusError(http.StatusTooManyRequests, "")}
	mgr := chatservice.NewManager(gw, "agent_test",
		chatservice.WithLogger(zerolog.Nop()),
		chatservice.WithCopy(chatservice.Copy{RateLimited: "Hold on a second."}),
	)

	assert.Equal(t, "Hold on a second.", mgr.Send(context.Background(), "hi"))
}

type stubTurns struct {
	reply    string
	err      error
	sessions []*gateway.SessionContext
}

func (s *stubTurns) SendTurn(_ context.Context, session *gateway.SessionContext, _ string) (string, error) {
	s.sessions = append(s.sessions, session)
	return s.reply, s.err
}

func TestStatelessManager(t *testing.T) {
	turns := &stubTurns{reply: "pong"}
	mgr := chatservice.NewStatelessManager(turns, chatservice.WithLogger(zerolog.Nop()))
	ctx := context.Background()

	id, err := mgr.Start(ctx)
	require.NoError(t, err)
	assert.Contains(t, id, "local-")

	assert.Equal(t, "pong", mgr.Send(ctx, "ping"))
	require.Len(t, turns.sessions, 1)
	assert.Nil(t, turns.sessions[0])
	assert.Len(t, mgr.History(), 2)

	mgr.End(ctx)
	assert.False(t, mgr.Active())
}

func TestStatelessManagerFailure(t *testing.T) {
	turns := &stubTurns{err: gateway.NewStatusError(http.StatusServiceUnavailable, "")}
	mgr := chatservice.NewStatelessManager(turns, chatservice.WithLogger(zerolog.Nop()))

	assert.Equal(t, chatservice.DefaultCopy().Server, mgr.Send(context.Background(), "ping"))
}
