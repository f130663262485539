package conversation

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	machine "github.com/zhouzirui/agent-chat/internal/conversation"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newOutgoing(kind string, data interface{}) outgoingMessage {
	return outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
}

func errorMessage(message string) outgoingMessage {
	return newOutgoing("error", map[string]string{"message": message})
}

// handleWebSocket pushes a snapshot on every state change and accepts enter,
// submit and exit commands. Only the writer goroutine touches the connection
// for writing.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := h.conv.Subscribe()
	defer unsubscribe()

	out := make(chan outgoingMessage, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, updates, out)
		cancel()
	}()

	out <- newOutgoing("snapshot", h.conv.Snapshot())
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("websocket connected")

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("websocket read failed")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		go h.dispatch(ctx, msg, out)
	}

	cancel()
	<-writerDone
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("websocket closed")
}

func (h *Handler) dispatch(ctx context.Context, msg inboundMessage, out chan<- outgoingMessage) {
	var reply outgoingMessage

	switch msg.Type {
	case "enter":
		if err := h.conv.Enter(detach(ctx)); err != nil {
			reply = errorMessage(err.Error())
		} else {
			return
		}
	case "submit":
		exchange, err := h.conv.Submit(detach(ctx), msg.Text)
		if err != nil {
			reply = errorMessage(err.Error())
		} else {
			reply = newOutgoing("exchange", exchange)
		}
	case "exit":
		h.conv.Exit(detach(ctx))
		return
	default:
		reply = errorMessage("unsupported message type: " + msg.Type)
	}

	select {
	case out <- reply:
	case <-ctx.Done():
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, updates <-chan machine.Snapshot, out <-chan outgoingMessage) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if !write(newOutgoing("snapshot", snap)) {
				return
			}
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
