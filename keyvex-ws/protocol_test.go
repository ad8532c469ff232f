package keyvexws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tj/assert"
)

func TestProtocol(t *testing.T) {
	t.Run("ParseMessage", func(t *testing.T) {
		msg, err := ParseMessage(`{"type":"ping"}`)
		assert.NoError(t, err)
		assert.Equal(t, MsgPing, msg.Type)
	})

	t.Run("ParseMessage missing type", func(t *testing.T) {
		_, err := ParseMessage(`{"id":"1"}`)
		assert.Error(t, err)
	})

	t.Run("AckMessage", func(t *testing.T) {
		msg, err := ParseMessage(string(AckMessage()))
		assert.NoError(t, err)
		assert.Equal(t, MsgConnectionAck, msg.Type)
	})

	t.Run("PongMessage", func(t *testing.T) {
		msg, err := ParseMessage(string(PongMessage()))
		assert.NoError(t, err)
		assert.Equal(t, MsgPong, msg.Type)
	})

	t.Run("ProgressMessage", func(t *testing.T) {
		data, err := ProgressMessage(ProgressEvent{
			JobID:     "j1",
			StepName:  "ingest",
			Status:    StatusCompleted,
			Timestamp: time.Now(),
		})
		assert.NoError(t, err)

		msg, err := ParseMessage(string(data))
		assert.NoError(t, err)
		assert.Equal(t, MsgProgress, msg.Type)
		assert.Equal(t, "j1", msg.ID)

		var event ProgressEvent
		assert.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, StatusCompleted, event.Status)
	})

	t.Run("ErrorMessage", func(t *testing.T) {
		msg, err := ParseMessage(string(ErrorMessage("1", "something went wrong")))
		assert.NoError(t, err)
		assert.Equal(t, MsgError, msg.Type)
		assert.Equal(t, "1", msg.ID)
	})
}

func TestProgressEventValidate(t *testing.T) {
	t.Run("valid statuses", func(t *testing.T) {
		for _, status := range []string{StatusPending, StatusRunning, StatusCompleted, StatusFailed} {
			err := ProgressEvent{JobID: "j1", Status: status}.Validate()
			assert.NoError(t, err)
		}
	})

	t.Run("missing jobId", func(t *testing.T) {
		err := ProgressEvent{Status: StatusRunning}.Validate()
		assert.Error(t, err)
	})

	t.Run("unknown status", func(t *testing.T) {
		err := ProgressEvent{JobID: "j1", Status: "exploded"}.Validate()
		assert.Error(t, err)
	})
}
