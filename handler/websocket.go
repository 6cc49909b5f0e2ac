package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// wsChannel adapts a WebSocket connection to registry.Channel.
type wsChannel struct {
	id   string
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{id: uuid.NewString(), conn: conn}
}

func (c *wsChannel) ID() string { return c.id }

// Send writes one text frame. Writes are serialised because gorilla
// connections support only one concurrent writer.
func (c *wsChannel) Send(ctx context.Context, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// handleWebSocket accepts the upgrade, registers the channel and relays each
// inbound text frame to every connected peer. Frames from one connection are
// handled strictly in order.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "err", err)
		return
	}

	ch := newWSChannel(conn)
	if err := h.registry.Connect(ch); err != nil {
		h.logger.WarnContext(r.Context(), "websocket connect rejected", "channel_id", ch.ID(), "err", err)
		_ = ch.Close()
		return
	}
	defer func() {
		h.registry.Disconnect(ch)
		_ = ch.Close()
	}()

	conn.SetReadLimit(h.maxBytes)
	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WarnContext(ctx, "websocket read error", "channel_id", ch.ID(), "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			h.logger.DebugContext(ctx, "ignoring non-text frame", "channel_id", ch.ID(), "type", msgType)
			continue
		}

		result := h.relay.Relay(ctx, string(data))
		delivered := h.registry.Broadcast(ctx, result.Response)
		h.logger.DebugContext(ctx, "relay broadcast", "channel_id", ch.ID(), "type", result.Type, "delivered", delivered)
	}
}
