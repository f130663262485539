package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/agent-chat/internal/config"
	"github.com/zhouzirui/agent-chat/internal/conversation"
	"github.com/zhouzirui/agent-chat/internal/gateway"
	"github.com/zhouzirui/agent-chat/internal/gateway/backend"
	"github.com/zhouzirui/agent-chat/internal/gateway/retell"
	"github.com/zhouzirui/agent-chat/internal/handler"
	"github.com/zhouzirui/agent-chat/internal/model/agent"
	"github.com/zhouzirui/agent-chat/internal/service/ai"
	chatservice "github.com/zhouzirui/agent-chat/internal/service/chat"
)

// App holds the wired services for one process.
type App struct {
	Profiles     agent.Store
	Manager      *chatservice.Manager
	Conversation *conversation.Machine
	// Turns answers stateless messages; nil when the provider cannot.
	Turns gateway.TurnSender
}

// Build wires the gateway selected by cfg into a session manager and a
// conversation machine.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	copyText := chatservice.DefaultCopy()
	if cfg.Conversation.CopyFile != "" {
		loaded, err := chatservice.LoadCopy(cfg.Conversation.CopyFile)
		if err != nil {
			return nil, err
		}
		copyText = loaded
	}

	opts := []chatservice.Option{
		chatservice.WithCopy(copyText),
		chatservice.WithLogger(logger),
	}

	profiles := agent.NewMemoryStore(agent.Seed())
	a := &App{Profiles: profiles}

	switch cfg.Gateway.Provider {
	case config.ProviderRetell:
		client := retell.NewClient(retell.Config{
			APIKey:  cfg.Retell.APIKey,
			BaseURL: cfg.Retell.BaseURL,
			Timeout: cfg.Retell.Timeout,
		}, logger)
		a.Manager = chatservice.NewManager(client, cfg.Retell.AgentID, opts...)

	case config.ProviderBackend:
		client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, logger)
		a.Manager = chatservice.NewStatelessManager(client, opts...)
		a.Turns = client

	case config.ProviderArk:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		local, err := ai.NewAgent(ctx, chatModel, profiles, cfg.AI.AgentID, logger)
		if err != nil {
			return nil, err
		}
		a.Manager = chatservice.NewManager(local, cfg.AI.AgentID, opts...)
		a.Turns = local

	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Gateway.Provider)
	}

	a.Conversation = conversation.New(a.Manager, conversation.Config{
		EagerStart: cfg.Conversation.EagerStart,
		Intro:      cfg.Conversation.Intro,
		Greeting:   cfg.Conversation.Greeting,
		Welcome:    copyText.WelcomeText(),
		EmptyReply: copyText.EmptyReply(),
	}, logger)

	logger.Info().
		Str("provider", string(cfg.Gateway.Provider)).
		Bool("stateless_chat", a.Turns != nil).
		Msg("services wired")
	return a, nil
}

// Router builds the HTTP surface for the app.
func (a *App) Router(logger zerolog.Logger) http.Handler {
	return handler.NewRouter(handler.Dependencies{
		Profiles:     a.Profiles,
		Conversation: a.Conversation,
		Turns:        a.Turns,
		Copy:         a.Manager.Copy(),
	}, logger)
}
