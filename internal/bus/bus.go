// Package bus implements the real-time event fan-out: per-stream subscriber
// groups receiving JSON-serialized events, with eviction of subscribers
// whose sends fail.
package bus

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/streamwatch/streamwatch/internal/observability"
)

// Subscriber receives serialized events for one stream. Send must be safe
// for concurrent use and should fail fast when the receiver is gone.
type Subscriber interface {
	ID() string
	Send(data []byte) error
}

// NewSubscriberID returns a sortable unique subscriber ID.
func NewSubscriberID() string {
	return ulid.Make().String()
}

// Message is the wire shape of one bus event.
type Message struct {
	Type      string    `json:"type"`
	StreamID  string    `json:"stream_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans events out to the subscribers of each stream.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]map[string]Subscriber // streamID -> subscriberID -> subscriber
	logger      *slog.Logger
	gauge       func(delta int)
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]map[string]Subscriber),
		logger:      observability.WithComponent(logger, "bus"),
		gauge:       observability.AddBusSubscribers,
	}
}

// Connect registers a subscriber for a stream's events.
func (b *Bus) Connect(s Subscriber, streamID string) {
	b.mu.Lock()
	group, ok := b.subscribers[streamID]
	if !ok {
		group = make(map[string]Subscriber)
		b.subscribers[streamID] = group
	}
	_, existed := group[s.ID()]
	group[s.ID()] = s
	b.mu.Unlock()

	if !existed {
		b.gauge(1)
	}
	b.logger.Debug("subscriber connected", "stream_id", streamID, "subscriber_id", s.ID())
}

// Disconnect removes a subscriber. The stream's group is dropped when it
// becomes empty.
func (b *Bus) Disconnect(s Subscriber, streamID string) {
	b.mu.Lock()
	removed := b.removeLocked(streamID, s.ID())
	b.mu.Unlock()

	if removed {
		b.gauge(-1)
		b.logger.Debug("subscriber disconnected", "stream_id", streamID, "subscriber_id", s.ID())
	}
}

func (b *Bus) removeLocked(streamID, subscriberID string) bool {
	group, ok := b.subscribers[streamID]
	if !ok {
		return false
	}
	if _, ok := group[subscriberID]; !ok {
		return false
	}
	delete(group, subscriberID)
	if len(group) == 0 {
		delete(b.subscribers, streamID)
	}
	return true
}

// Broadcast serializes msg and sends it to every subscriber of the stream.
// A zero timestamp is stamped with the current time. Subscribers whose send
// fails are evicted.
func (b *Bus) Broadcast(streamID string, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.StreamID = streamID

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast marshal failed", "stream_id", streamID, "error", err)
		return
	}

	b.mu.Lock()
	group := b.subscribers[streamID]
	targets := make([]Subscriber, 0, len(group))
	for _, s := range group {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	var failed []string
	for _, s := range targets {
		if err := s.Send(data); err != nil {
			failed = append(failed, s.ID())
			b.logger.Debug("subscriber send failed, evicting",
				"stream_id", streamID, "subscriber_id", s.ID(), "error", err)
		}
	}

	if len(failed) == 0 {
		return
	}

	b.mu.Lock()
	evicted := 0
	for _, id := range failed {
		if b.removeLocked(streamID, id) {
			evicted++
		}
	}
	b.mu.Unlock()
	if evicted > 0 {
		b.gauge(-evicted)
	}
}

// SendPersonal sends one message to a single subscriber, bypassing the
// stream groups.
func (b *Bus) SendPersonal(s Subscriber, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// SubscriberCount reports the number of subscribers for one stream.
func (b *Bus) SubscriberCount(streamID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[streamID])
}
