package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/streamwatch/streamwatch/internal/bus"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/monitor"
)

// WSHandler upgrades websocket subscriptions to the event bus.
type WSHandler struct {
	monitor *monitor.Engine
	bus     *bus.Bus
	logger  *slog.Logger
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(m *monitor.Engine, b *bus.Bus, logger *slog.Logger) *WSHandler {
	return &WSHandler{monitor: m, bus: b, logger: logger}
}

// RegisterRoutes registers the websocket routes on the router.
func (h *WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/streams/{id}", h.Stream)
}

// wsSubscriber adapts a websocket connection to the bus Subscriber interface.
type wsSubscriber struct {
	id   string
	conn *websocket.Conn
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Send(data []byte) error {
	return websocket.Message.Send(s.conn, string(data))
}

// Stream subscribes the client to a stream's events. Unknown streams are
// rejected before the upgrade.
func (h *WSHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "id")
	if !h.monitor.IsMonitored(streamID) {
		http.NotFound(w, r)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, streamID)
	}).ServeHTTP(w, r)
}

func (h *WSHandler) serve(conn *websocket.Conn, streamID string) {
	sub := &wsSubscriber{id: bus.NewSubscriberID(), conn: conn}

	h.bus.Connect(sub, streamID)
	defer h.bus.Disconnect(sub, streamID)

	h.logger.Debug("websocket subscriber connected",
		"stream_id", streamID, "subscriber_id", sub.id)

	if err := h.bus.SendPersonal(sub, bus.Message{
		Type:     string(models.EventConnected),
		StreamID: streamID,
	}); err != nil {
		return
	}

	// Any client text gets a pong; the read loop also notices disconnects.
	for {
		var text string
		if err := websocket.Message.Receive(conn, &text); err != nil {
			h.logger.Debug("websocket subscriber disconnected",
				"stream_id", streamID, "subscriber_id", sub.id)
			return
		}
		if err := h.bus.SendPersonal(sub, bus.Message{
			Type:     string(models.EventPong),
			StreamID: streamID,
		}); err != nil {
			return
		}
	}
}
