// Package publish writes progress envelopes to the progress-events Kinesis
// stream for the dispatcher to fan out.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
)

// Envelope is the message format published to the progress events stream. The
// payload is a serialized progress event; UserID may be empty when the
// producer only knows the job, in which case the dispatcher resolves the owner
// from the job-sessions table.
type Envelope struct {
	UserID  string          `json:"userId,omitempty"`
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher publishes progress envelopes to the Kinesis stream.
type Publisher struct {
	client     kinesisiface.KinesisAPI
	streamName string
}

// New creates a new Publisher.
func New(client kinesisiface.KinesisAPI, streamName string) *Publisher {
	return &Publisher{
		client:     client,
		streamName: streamName,
	}
}

// Build creates a new Publisher using the standard stream name for the given
// environment.
func Build(env string) *Publisher {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	client := kinesis.New(sess)
	return New(client, StreamName(env))
}

// StreamName returns the Kinesis stream name for the given environment.
func StreamName(env string) string {
	return env + "-keyvex-api--progress-events"
}

// Send publishes a progress event for a job. The user id is used as the
// partition key so one user's events stay ordered on the stream; when the
// producer doesn't know the user the job id partitions instead.
func (p *Publisher) Send(ctx context.Context, userID, jobID string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	envelope := Envelope{
		UserID:  userID,
		JobID:   jobID,
		Payload: payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}

	partitionKey := userID
	if partitionKey == "" {
		partitionKey = jobID
	}

	_, err = p.client.PutRecordWithContext(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		PartitionKey: aws.String(partitionKey),
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("publishing to kinesis stream %v: %w", p.streamName, err)
	}

	return nil
}
