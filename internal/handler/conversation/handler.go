package conversation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	machine "github.com/zhouzirui/agent-chat/internal/conversation"
	"github.com/zhouzirui/agent-chat/pkg/utils"
)

// Conversation is the part of conversation.Machine the handler drives.
type Conversation interface {
	Enter(ctx context.Context) error
	Submit(ctx context.Context, text string) (machine.Exchange, error)
	Exit(ctx context.Context)
	Snapshot() machine.Snapshot
	Subscribe() (<-chan machine.Snapshot, func())
}

// Handler exposes the conversation over REST and WebSocket.
type Handler struct {
	conv     Conversation
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// New creates a conversation handler.
func New(conv Conversation, logger zerolog.Logger) *Handler {
	return &Handler{
		conv:   conv,
		logger: logger.With().Str("component", "conversation_handler").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the conversation routes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversation", func(r chi.Router) {
		r.Get("/", h.handleSnapshot)
		r.Post("/", h.handleEnter)
		r.Delete("/", h.handleExit)
		r.Post("/messages", h.handleSubmit)
		r.Get("/ws", h.handleWebSocket)
		r.Get("/events", h.handleEvents)
	})
}

type submitRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.conv.Snapshot())
}

func (h *Handler) handleEnter(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.Enter(detach(r.Context())); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, h.conv.Snapshot())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	exchange, err := h.conv.Submit(detach(r.Context()), payload.Text)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, exchange)
}

func (h *Handler) handleExit(w http.ResponseWriter, r *http.Request) {
	h.conv.Exit(detach(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps conversation errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, machine.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, machine.ErrBusy),
		errors.Is(err, machine.ErrNotActive),
		errors.Is(err, machine.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, machine.ErrStale):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// detach keeps a turn running after the client that started it goes away.
// The conversation is shared, so a dropped request must not abort it.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
