package v1

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Operator UI may be served from anywhere; there is no auth layer.
		return true
	},
}

// StreamScanEvents pushes a scan's events over WebSocket. It is a purely
// additive convenience over polling: the connection replays from seq 1 (or
// ?after=seq) and then forwards new events in total order, closing after the
// terminal event has been delivered.
// GET /v1/scans/:scan_id/stream
func (h *Handler) StreamScanEvents(c echo.Context) error {
	scanID := c.Param("scan_id")
	if _, err := h.manager.GetScan(scanID); err != nil {
		return writeError(c, err)
	}

	afterSeq := int64(0)
	if after := c.QueryParam("after"); after != "" {
		// Same contract as the events endpoint; a bad value replays from 1.
		if val, err := strconv.ParseInt(after, 10, 64); err == nil && val > 0 {
			afterSeq = val
		}
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: failed to upgrade stream for scan %s: %v", scanID, err)
		return err
	}

	go h.streamPump(ws, scanID, afterSeq)
	return nil
}

// streamPump polls the event log with the last seen seq and forwards new
// events; a read goroutine drains the client side and signals close.
func (h *Handler) streamPump(ws *websocket.Conn, scanID string, afterSeq int64) {
	defer ws.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(streamPollInterval)
	defer poll.Stop()
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		events, err := h.manager.Events(scanID, afterSeq)
		if err != nil {
			return
		}
		for _, ev := range events {
			ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				log.Printf("WARN: failed to write stream event for scan %s: %v", scanID, err)
				return
			}
			afterSeq = ev.Seq
		}

		if len(events) == 0 {
			snap, err := h.manager.GetScan(scanID)
			if err != nil {
				return
			}
			if snap.Status.Terminal() {
				ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snap.Status)))
				return
			}
		}

		select {
		case <-closed:
			return
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-poll.C:
		}
	}
}
