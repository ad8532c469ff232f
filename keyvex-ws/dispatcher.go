package keyvexws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	consumer "github.com/harlow/kinesis-consumer"
	"github.com/rs/zerolog"

	keyvexcli "github.com/lmnhd/keyvex-go-utils/keyvex-cli"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/publish"
	"github.com/lmnhd/keyvex-go-utils/keyvex-ws/sessiondao"
)

// SessionResolver looks up the session record for a job. Implemented by
// sessiondao.DAO.
type SessionResolver interface {
	Get(ctx context.Context, jobID string) (*sessiondao.Session, error)
}

// Dispatcher consumes progress envelopes from the Kinesis stream and fans
// each one out to the owning user's connections.
type Dispatcher struct {
	Broadcaster *Broadcaster
	Sessions    SessionResolver
	Logger      zerolog.Logger
}

// Start runs the dispatcher as a Lambda function, or scans the live stream
// directly when running in console mode.
func (d *Dispatcher) Start() error {
	if !keyvexcli.CommonOpts.Console {
		lambda.Start(d.HandleKinesisEvent)
		return nil
	}
	return d.handleRealtime()
}

// HandleKinesisEvent processes a batch of Kinesis records. A bad record is
// logged and skipped rather than failing the whole batch.
func (d *Dispatcher) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	for _, record := range event.Records {
		if err := d.processRecord(ctx, record); err != nil {
			d.Logger.Error().Err(err).
				Str("event_id", record.EventID).
				Msg("failed to process kinesis record")
		}
	}
	return nil
}

func (d *Dispatcher) processRecord(ctx context.Context, record events.KinesisEventRecord) error {
	var envelope publish.Envelope
	if err := json.Unmarshal(record.Kinesis.Data, &envelope); err != nil {
		return fmt.Errorf("unmarshalling kinesis record: %w", err)
	}

	var event ProgressEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return fmt.Errorf("unmarshalling progress payload: %w", err)
	}
	if event.JobID == "" {
		event.JobID = envelope.JobID
	}
	if err := event.Validate(); err != nil {
		d.Logger.Warn().Err(err).Str("job_id", envelope.JobID).Msg("skipping malformed progress event")
		return nil
	}

	userID, err := d.resolveUser(ctx, envelope)
	if err != nil {
		return err
	}
	if userID == "" {
		d.Logger.Warn().Str("job_id", envelope.JobID).Msg("envelope has no resolvable user, skipping")
		return nil
	}

	report, err := d.Broadcaster.Broadcast(ctx, userID, event)
	if err != nil {
		return fmt.Errorf("broadcasting to user %v: %w", userID, err)
	}

	if report.Attempted > 0 {
		d.Logger.Debug().
			Str("user_id", userID).
			Str("job_id", event.JobID).
			Int("attempted", report.Attempted).
			Int("delivered", report.Delivered).
			Int("pruned", report.Pruned).
			Msg("progress event dispatched")
	}
	return nil
}

// resolveUser prefers the envelope's user id and falls back to the
// job-sessions table when the producer only knew the job.
func (d *Dispatcher) resolveUser(ctx context.Context, envelope publish.Envelope) (string, error) {
	if envelope.UserID != "" {
		return envelope.UserID, nil
	}
	if d.Sessions == nil || envelope.JobID == "" {
		return "", nil
	}
	session, err := d.Sessions.Get(ctx, envelope.JobID)
	if err != nil {
		return "", fmt.Errorf("resolving session for job %v: %w", envelope.JobID, err)
	}
	if session == nil {
		return "", nil
	}
	return session.UserID, nil
}

func (d *Dispatcher) handleRealtime() error {
	streamName := WSOpts.StreamName
	if streamName == "" {
		streamName = publish.StreamName(keyvexcli.CommonOpts.Env)
	}

	var options []consumer.Option
	if WSOpts.Replay {
		options = append(options, consumer.WithShardIteratorType("TRIM_HORIZON"))
	} else {
		options = append(options, consumer.WithShardIteratorType("LATEST"))
	}
	c, err := consumer.New(streamName, options...)
	if err != nil {
		return err
	}

	ctx := d.Logger.WithContext(context.Background())
	callback := func(record *consumer.Record) error {
		er := events.KinesisEventRecord{
			Kinesis: events.KinesisRecord{Data: record.Data},
		}
		if err := d.processRecord(ctx, er); err != nil {
			d.Logger.Error().Err(err).Msg("failed to process record")
		}
		return nil
	}
	fmt.Println("Listening...")
	return c.Scan(ctx, callback)
}
