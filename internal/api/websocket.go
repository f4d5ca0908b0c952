package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nikicat/extimer-bridge/internal/extension"
	"github.com/nikicat/extimer-bridge/internal/timer"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Time allowed to read the timer for the initial snapshot.
	snapshotTimeout = 2 * time.Second
)

// WSMessage represents a message sent over the WebSocket.
type WSMessage struct {
	Type string `json:"type"`

	// For snapshot and extension
	Extension *StatusResponse `json:"extension,omitempty"`

	// For snapshot; Error is set instead of Timer when the timer can't be read
	Timer *timer.Snapshot `json:"timer,omitempty"`
	Error string          `json:"error,omitempty"`

	// For extension
	Event string `json:"event,omitempty"`

	// For timer
	Change *timer.Change `json:"change,omitempty"`
}

// WSHandler handles WebSocket connections for real-time updates.
type WSHandler struct {
	ext   Extension
	timer Timer
	subs  []extension.SubscriptionID

	// Active connections
	connsMu sync.RWMutex
	conns   map[*wsConnection]struct{}
}

// NewWSHandler creates a WebSocket handler and subscribes it to ext.
func NewWSHandler(ext Extension, t Timer) *WSHandler {
	h := &WSHandler{
		ext:   ext,
		timer: t,
		conns: make(map[*wsConnection]struct{}),
	}
	for _, kind := range []extension.EventKind{extension.EventAcquired, extension.EventLost, extension.EventDestroyed} {
		h.subs = append(h.subs, ext.Subscribe(kind, h.onExtensionEvent))
	}
	return h
}

// Run forwards timer property changes to all connections until ctx is
// cancelled or the bus connection closes.
func (h *WSHandler) Run(ctx context.Context) error {
	return h.timer.Watch(ctx, func(c timer.Change) {
		h.broadcast(WSMessage{Type: "timer", Change: &c})
	})
}

// Close unsubscribes from the extension and closes all connections.
func (h *WSHandler) Close() {
	for _, id := range h.subs {
		h.ext.Unsubscribe(id)
	}
	h.subs = nil
	h.CloseAll()
}

// CloseAll closes every open connection.
func (h *WSHandler) CloseAll() {
	h.connsMu.RLock()
	conns := make([]*wsConnection, 0, len(h.conns))
	for wsc := range h.conns {
		conns = append(conns, wsc)
	}
	h.connsMu.RUnlock()

	for _, wsc := range conns {
		wsc.close()
	}
}

func (h *WSHandler) onExtensionEvent(ev extension.Event) {
	status := statusOf(h.ext)
	h.broadcast(WSMessage{
		Type:      "extension",
		Event:     ev.Kind.String(),
		Extension: &status,
	})
}

// wsConnection represents a single WebSocket connection.
type wsConnection struct {
	id      string
	handler *WSHandler
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// HandleWS handles WebSocket upgrade requests.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("WebSocket accept failed", "error", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)

	// Use background context - the WebSocket connection lives beyond the HTTP request
	ctx, cancel := context.WithCancel(context.Background())
	wsc := &wsConnection{
		id:      uuid.NewString(),
		handler: h,
		conn:    conn,
		send:    make(chan []byte, 256),
		ctx:     ctx,
		cancel:  cancel,
	}

	h.connsMu.Lock()
	h.conns[wsc] = struct{}{}
	h.connsMu.Unlock()

	slog.Debug("WebSocket connected", "conn", wsc.id)

	if err := wsc.sendSnapshot(); err != nil {
		slog.Error("Failed to send snapshot", "conn", wsc.id, "error", err)
		wsc.close()
		return
	}

	go wsc.writePump()
	go wsc.readPump()
}

// sendSnapshot sends the current state to the client.
func (wsc *wsConnection) sendSnapshot() error {
	h := wsc.handler
	status := statusOf(h.ext)
	msg := WSMessage{
		Type:      "snapshot",
		Extension: &status,
	}

	ctx, cancel := context.WithTimeout(wsc.ctx, snapshotTimeout)
	snap, err := h.timer.Snapshot(ctx)
	cancel()
	if err != nil {
		msg.Error = err.Error()
	} else {
		msg.Timer = &snap
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// Send directly (not through channel) for initial snapshot
	ctx, cancel = context.WithTimeout(wsc.ctx, writeWait)
	defer cancel()
	return wsc.conn.Write(ctx, websocket.MessageText, data)
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (wsc *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsc.close()
	}()

	for {
		select {
		case <-wsc.ctx.Done():
			return

		case message := <-wsc.send:
			ctx, cancel := context.WithTimeout(wsc.ctx, writeWait)
			err := wsc.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Debug("WebSocket write failed", "conn", wsc.id, "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(wsc.ctx, writeWait)
			err := wsc.conn.Ping(ctx)
			cancel()
			if err != nil {
				slog.Debug("WebSocket ping failed", "conn", wsc.id, "error", err)
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection.
// We don't expect any messages from the client, this is just for close detection.
func (wsc *wsConnection) readPump() {
	defer wsc.close()

	for {
		if _, _, err := wsc.conn.Read(wsc.ctx); err != nil {
			return
		}
	}
}

// close cleans up the connection. Safe to call more than once.
func (wsc *wsConnection) close() {
	wsc.once.Do(func() {
		wsc.cancel()

		wsc.handler.connsMu.Lock()
		delete(wsc.handler.conns, wsc)
		wsc.handler.connsMu.Unlock()

		wsc.conn.Close(websocket.StatusNormalClosure, "")
		slog.Debug("WebSocket disconnected", "conn", wsc.id)
	})
}

// broadcast sends a message to all connected clients.
func (h *WSHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "error", err)
		return
	}

	h.connsMu.RLock()
	defer h.connsMu.RUnlock()

	for wsc := range h.conns {
		select {
		case wsc.send <- data:
		default:
			slog.Warn("WebSocket send buffer full, dropping message", "conn", wsc.id)
		}
	}
}
