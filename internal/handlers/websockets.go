package handlers

import (
	"net/http"
	"time"

	md "metering_dashboard"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

// Upgrader for HTTP -> WebSocket.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins for production
}

// wsFeed streams the per-simulator push-event feed: the current block as an
// initial block-update, then every hub event in publish order, plus periodic
// app-level pings so clients can refresh their connected status.
func (h *Handler) wsFeed(c *gin.Context) {
	simulatorID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine handles control frames and detects disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	sub := h.hub.Subscribe(simulatorID)
	defer sub.Close()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// Seed the client with the current block so charts render immediately.
	if block, err := h.services.Monitoring.GetBlock(c.Request.Context(), simulatorID); err == nil && !block.IsZero() {
		ev := md.BlockUpdateEvent{
			AccumulatedKWh:  block.AccumulatedKWh,
			PercentOfTarget: block.PercentOfTarget,
			BlockStart:      block.WindowStart,
			BinSeconds:      block.BinSeconds,
			Points:          block.Bins,
		}
		if err := h.writeEvent(conn, ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
			if err := h.writeEvent(conn, md.PingEvent{}); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := h.writeEvent(conn, ev); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// startReader drains incoming messages to handle control frames and detect
// closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

func (h *Handler) writeEvent(conn *websocket.Conn, ev md.PushEvent) error {
	data, err := md.EncodePushEvent(ev)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
