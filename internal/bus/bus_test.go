package bus

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id   string
	mu   sync.Mutex
	got  [][]byte
	fail bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{id: NewSubscriberID()}
}

func (s *fakeSubscriber) ID() string { return s.id }

func (s *fakeSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection closed")
	}
	s.got = append(s.got, data)
	return nil
}

func (s *fakeSubscriber) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.got...)
}

func newTestBus() *Bus {
	b := New(slog.New(slog.DiscardHandler))
	b.gauge = func(int) {} // keep tests off the process-wide gauge
	return b
}

func TestBroadcast(t *testing.T) {
	b := newTestBus()
	s1 := newFakeSubscriber()
	s2 := newFakeSubscriber()
	b.Connect(s1, "stream-1")
	b.Connect(s2, "stream-1")

	b.Broadcast("stream-1", Message{Type: "segment_downloaded", Data: map[string]any{"seq": 7}})

	require.Len(t, s1.messages(), 1)
	require.Len(t, s2.messages(), 1)

	var msg Message
	require.NoError(t, json.Unmarshal(s1.messages()[0], &msg))
	assert.Equal(t, "segment_downloaded", msg.Type)
	assert.Equal(t, "stream-1", msg.StreamID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestBroadcast_OtherStreamsUntouched(t *testing.T) {
	b := newTestBus()
	s1 := newFakeSubscriber()
	s2 := newFakeSubscriber()
	b.Connect(s1, "stream-1")
	b.Connect(s2, "stream-2")

	b.Broadcast("stream-1", Message{Type: "error"})

	assert.Len(t, s1.messages(), 1)
	assert.Empty(t, s2.messages())
}

func TestBroadcast_EvictsFailedSubscribers(t *testing.T) {
	b := newTestBus()
	healthy := newFakeSubscriber()
	broken := newFakeSubscriber()
	broken.fail = true
	b.Connect(healthy, "stream-1")
	b.Connect(broken, "stream-1")

	b.Broadcast("stream-1", Message{Type: "health_update"})
	assert.Equal(t, 1, b.SubscriberCount("stream-1"))

	// The evicted subscriber no longer receives anything.
	b.Broadcast("stream-1", Message{Type: "health_update"})
	assert.Len(t, healthy.messages(), 2)
	assert.Empty(t, broken.messages())
}

func TestDisconnect(t *testing.T) {
	b := newTestBus()
	s := newFakeSubscriber()
	b.Connect(s, "stream-1")
	require.Equal(t, 1, b.SubscriberCount("stream-1"))

	b.Disconnect(s, "stream-1")
	assert.Equal(t, 0, b.SubscriberCount("stream-1"))

	// Disconnecting twice is harmless.
	b.Disconnect(s, "stream-1")

	b.Broadcast("stream-1", Message{Type: "error"})
	assert.Empty(t, s.messages())
}

func TestSendPersonal(t *testing.T) {
	b := newTestBus()
	s := newFakeSubscriber()

	require.NoError(t, b.SendPersonal(s, Message{Type: "pong", StreamID: "stream-1"}))

	var msg Message
	require.NoError(t, json.Unmarshal(s.messages()[0], &msg))
	assert.Equal(t, "pong", msg.Type)
	assert.Equal(t, "stream-1", msg.StreamID)
	assert.False(t, msg.Timestamp.IsZero())

	s.fail = true
	assert.Error(t, b.SendPersonal(s, Message{Type: "pong"}))
}

func TestConnect_SameSubscriberTwice(t *testing.T) {
	b := newTestBus()
	s := newFakeSubscriber()
	b.Connect(s, "stream-1")
	b.Connect(s, "stream-1")
	assert.Equal(t, 1, b.SubscriberCount("stream-1"))
}
