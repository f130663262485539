package conversation

import (
	"net/http"
	"time"

	"github.com/zhouzirui/agent-chat/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// handleEvents streams snapshots as server-sent events for clients that only
// need to watch the conversation.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updates, unsubscribe := h.conv.Subscribe()
	defer unsubscribe()

	if err := sse.Event("snapshot", h.conv.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := sse.Event("snapshot", snap); err != nil {
				h.logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			if err := sse.Comment("heartbeat"); err != nil {
				return
			}
		}
	}
}
