package chat

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/agent-chat/internal/gateway"
	chatservice "github.com/zhouzirui/agent-chat/internal/service/chat"
	"github.com/zhouzirui/agent-chat/pkg/utils"
)

// Handler serves the stateless chat endpoint.
type Handler struct {
	turns  gateway.TurnSender
	copy   chatservice.Copy
	logger zerolog.Logger
}

// New creates a chat handler. Upstream failures are answered with text from
// copy; the error itself is only logged.
func New(turns gateway.TurnSender, copy chatservice.Copy, logger zerolog.Logger) *Handler {
	return &Handler{
		turns:  turns,
		copy:   copy,
		logger: logger.With().Str("component", "chat_handler").Logger(),
	}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// handleChat answers one message without conversation state.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(payload.Message)
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.turns.SendTurn(r.Context(), nil, message)
	if err != nil {
		kind := chatservice.Classify(err)
		h.logger.Error().Err(err).Str("kind", string(kind)).Msg("chat turn failed")
		utils.RespondError(w, http.StatusBadGateway, h.copy.For(kind))
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{Response: reply})
}
