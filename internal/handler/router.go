package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/agent-chat/internal/gateway"
	"github.com/zhouzirui/agent-chat/internal/handler/agents"
	"github.com/zhouzirui/agent-chat/internal/handler/chat"
	"github.com/zhouzirui/agent-chat/internal/handler/conversation"
	middlewarePkg "github.com/zhouzirui/agent-chat/internal/middleware"
	"github.com/zhouzirui/agent-chat/internal/model/agent"
	chatservice "github.com/zhouzirui/agent-chat/internal/service/chat"
	"github.com/zhouzirui/agent-chat/pkg/utils"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Profiles     agent.Store
	Conversation conversation.Conversation
	// Turns serves POST /chat. Nil leaves the route unregistered.
	Turns gateway.TurnSender
	// Copy is the wording shown when a stateless turn fails.
	Copy chatservice.Copy
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Turns != nil {
		chat.New(deps.Turns, deps.Copy, logger).RegisterRoutes(r)
	}

	r.Route("/api", func(api chi.Router) {
		if deps.Profiles != nil {
			agents.New(deps.Profiles).RegisterRoutes(api)
		}
		conversation.New(deps.Conversation, logger).RegisterRoutes(api)
	})

	return r
}
