package agents

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/agent-chat/internal/model/agent"
	"github.com/zhouzirui/agent-chat/pkg/utils"
)

// Handler serves the agent profile list.
type Handler struct {
	profiles agent.Store
}

// New creates an agents handler.
func New(profiles agent.Store) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes mounts the agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleListAgents)
	r.Get("/agents/{agentID}", h.handleGetAgent)
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.profiles.List())
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profiles.FindByID(chi.URLParam(r, "agentID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}
