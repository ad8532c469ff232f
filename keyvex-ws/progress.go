// Package keyvexws implements the WebSocket progress-push layer: a DynamoDB
// connection registry keyed by user, and a best-effort broadcaster that fans
// progress events out to every live connection a user holds, pruning entries
// whose transport link has gone away.
package keyvexws

import (
	"encoding/json"
	"fmt"
	"time"
)

// Progress step statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ProgressEvent describes the state of one step of an asynchronous job. Events
// are delivered at most once per connection and are never persisted.
type ProgressEvent struct {
	JobID     string          `json:"jobId"`
	StepName  string          `json:"stepName"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Validate checks the event is well-formed enough to broadcast.
func (e ProgressEvent) Validate() error {
	if e.JobID == "" {
		return fmt.Errorf("progress event missing jobId")
	}
	switch e.Status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown progress status %q", e.Status)
	}
}
