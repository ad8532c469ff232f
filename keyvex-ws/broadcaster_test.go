package keyvexws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

// fakeSender records frames per connection and fails the ids it is told to.
type fakeSender struct {
	mu   sync.Mutex
	sent map[string][][]byte
	fail map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		sent: map[string][][]byte{},
		fail: map[string]error{},
	}
}

func (s *fakeSender) Send(_ context.Context, _ string, connectionID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[connectionID]; ok {
		return err
	}
	s.sent[connectionID] = append(s.sent[connectionID], data)
	return nil
}

func (s *fakeSender) frames(connectionID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[connectionID]
}

func testBroadcaster(store *fakeStore, sender *fakeSender) *Broadcaster {
	return &Broadcaster{
		Registry: NewRegistry(store),
		Sender:   sender,
		Logger:   zerolog.Nop(),
	}
}

func testEvent() ProgressEvent {
	return ProgressEvent{
		JobID:     "j1",
		StepName:  "ingest",
		Status:    StatusRunning,
		Timestamp: time.Now(),
	}
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("no connections is an empty report, not an error", func(t *testing.T) {
		b := testBroadcaster(newFakeStore(), newFakeSender())

		report, err := b.Broadcast(ctx, "user1", testEvent())
		assert.NoError(t, err)
		assert.Equal(t, DeliveryReport{Attempted: 0, Delivered: 0, Pruned: 0}, report)
	})

	t.Run("delivers identical payload to every connection", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		b := testBroadcaster(store, sender)

		assert.NoError(t, b.Registry.Register(ctx, "user1", "connA", "", "https://example/dev"))
		assert.NoError(t, b.Registry.Register(ctx, "user1", "connB", "", "https://example/dev"))

		report, err := b.Broadcast(ctx, "user1", testEvent())
		assert.NoError(t, err)
		assert.Equal(t, DeliveryReport{Attempted: 2, Delivered: 2, Pruned: 0}, report)

		framesA := sender.frames("connA")
		framesB := sender.frames("connB")
		assert.Len(t, framesA, 1)
		assert.Len(t, framesB, 1)
		assert.Equal(t, framesA[0], framesB[0])

		var msg Message
		assert.NoError(t, json.Unmarshal(framesA[0], &msg))
		assert.Equal(t, MsgProgress, msg.Type)

		var event ProgressEvent
		assert.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, "j1", event.JobID)
		assert.Equal(t, "ingest", event.StepName)
		assert.Equal(t, StatusRunning, event.Status)
	})

	t.Run("failed delivery prunes the stale connection", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		sender.fail["connA"] = fmt.Errorf("GoneException: connection no longer exists")
		b := testBroadcaster(store, sender)

		assert.NoError(t, b.Registry.Register(ctx, "user1", "connA", "", ""))
		assert.NoError(t, b.Registry.Register(ctx, "user1", "connB", "", ""))

		report, err := b.Broadcast(ctx, "user1", testEvent())
		assert.NoError(t, err)
		assert.Equal(t, 2, report.Attempted)
		assert.Equal(t, 1, report.Delivered)
		assert.Equal(t, 1, report.Pruned)

		// only the survivor remains registered
		conns, err := b.Registry.FindByUser(ctx, "user1")
		assert.NoError(t, err)
		assert.Len(t, conns, 1)
		assert.Equal(t, "connB", conns[0].ConnectionID)
	})

	t.Run("one failure never blocks the other deliveries", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		sender.fail["connA"] = fmt.Errorf("write timeout")
		b := testBroadcaster(store, sender)

		assert.NoError(t, b.Registry.Register(ctx, "user1", "connA", "", ""))
		assert.NoError(t, b.Registry.Register(ctx, "user1", "connB", "", ""))
		assert.NoError(t, b.Registry.Register(ctx, "user1", "connC", "", ""))

		report, err := b.Broadcast(ctx, "user1", testEvent())
		assert.NoError(t, err)
		assert.Equal(t, 3, report.Attempted)
		assert.Equal(t, 2, report.Delivered)
		assert.Equal(t, 1, report.Pruned)
		assert.Len(t, sender.frames("connB"), 1)
		assert.Len(t, sender.frames("connC"), 1)
	})

	t.Run("other users' connections are untouched", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		b := testBroadcaster(store, sender)

		assert.NoError(t, b.Registry.Register(ctx, "user1", "connA", "", ""))
		assert.NoError(t, b.Registry.Register(ctx, "user2", "connZ", "", ""))

		report, err := b.Broadcast(ctx, "user1", testEvent())
		assert.NoError(t, err)
		assert.Equal(t, 1, report.Attempted)
		assert.Len(t, sender.frames("connZ"), 0)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		store := newFakeStore()
		store.err = fmt.Errorf("dynamo is down")
		b := testBroadcaster(store, newFakeSender())

		_, err := b.Broadcast(ctx, "user1", testEvent())
		assert.Error(t, err)
	})
}
