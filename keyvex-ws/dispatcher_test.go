package keyvexws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/tj/assert"

	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/publish"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/sessiondao"
)

type fakeSessions struct {
	sessions map[string]sessiondao.Session
}

func (s *fakeSessions) Get(_ context.Context, jobID string) (*sessiondao.Session, error) {
	if session, ok := s.sessions[jobID]; ok {
		return &session, nil
	}
	return nil, nil
}

func kinesisEvent(t *testing.T, envelopes ...publish.Envelope) events.KinesisEvent {
	var records []events.KinesisEventRecord
	for i, envelope := range envelopes {
		data, err := json.Marshal(envelope)
		assert.NoError(t, err)
		records = append(records, events.KinesisEventRecord{
			EventID: string(rune('a' + i)),
			Kinesis: events.KinesisRecord{Data: data},
		})
	}
	return events.KinesisEvent{Records: records}
}

func envelope(t *testing.T, userID, jobID string, event ProgressEvent) publish.Envelope {
	payload, err := json.Marshal(event)
	assert.NoError(t, err)
	return publish.Envelope{UserID: userID, JobID: jobID, Payload: payload}
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	event := ProgressEvent{
		JobID:     "j1",
		StepName:  "ingest",
		Status:    StatusRunning,
		Timestamp: time.Now(),
	}

	t.Run("dispatches to the envelope's user", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		d := &Dispatcher{
			Broadcaster: testBroadcaster(store, sender),
			Logger:      zerolog.Nop(),
		}

		assert.NoError(t, d.Broadcaster.Registry.Register(ctx, "user1", "connA", "", ""))

		err := d.HandleKinesisEvent(ctx, kinesisEvent(t, envelope(t, "user1", "j1", event)))
		assert.NoError(t, err)
		assert.Len(t, sender.frames("connA"), 1)
	})

	t.Run("resolves the user from the job session when absent", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		d := &Dispatcher{
			Broadcaster: testBroadcaster(store, sender),
			Sessions: &fakeSessions{sessions: map[string]sessiondao.Session{
				"j1": {JobID: "j1", UserID: "user1"},
			}},
			Logger: zerolog.Nop(),
		}

		assert.NoError(t, d.Broadcaster.Registry.Register(ctx, "user1", "connA", "", ""))

		err := d.HandleKinesisEvent(ctx, kinesisEvent(t, envelope(t, "", "j1", event)))
		assert.NoError(t, err)
		assert.Len(t, sender.frames("connA"), 1)
	})

	t.Run("unresolvable envelope is skipped, not an error", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		d := &Dispatcher{
			Broadcaster: testBroadcaster(store, sender),
			Sessions:    &fakeSessions{sessions: map[string]sessiondao.Session{}},
			Logger:      zerolog.Nop(),
		}

		err := d.HandleKinesisEvent(ctx, kinesisEvent(t, envelope(t, "", "j9", event)))
		assert.NoError(t, err)
	})

	t.Run("a bad record doesn't fail the batch", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		d := &Dispatcher{
			Broadcaster: testBroadcaster(store, sender),
			Logger:      zerolog.Nop(),
		}

		assert.NoError(t, d.Broadcaster.Registry.Register(ctx, "user1", "connA", "", ""))

		batch := kinesisEvent(t, envelope(t, "user1", "j1", event))
		batch.Records = append([]events.KinesisEventRecord{{
			EventID: "bad",
			Kinesis: events.KinesisRecord{Data: []byte("not json")},
		}}, batch.Records...)

		err := d.HandleKinesisEvent(ctx, batch)
		assert.NoError(t, err)
		assert.Len(t, sender.frames("connA"), 1)
	})

	t.Run("malformed progress payload is skipped", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		d := &Dispatcher{
			Broadcaster: testBroadcaster(store, sender),
			Logger:      zerolog.Nop(),
		}

		assert.NoError(t, d.Broadcaster.Registry.Register(ctx, "user1", "connA", "", ""))

		bad := ProgressEvent{JobID: "j1", Status: "exploded"}
		err := d.HandleKinesisEvent(ctx, kinesisEvent(t, envelope(t, "user1", "j1", bad)))
		assert.NoError(t, err)
		assert.Len(t, sender.frames("connA"), 0)
	})
}
