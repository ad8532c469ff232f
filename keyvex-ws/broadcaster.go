package keyvexws

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sender pushes a serialized frame to one connection. Any failure is taken to
// mean the connection is gone; there are no partial-success semantics.
type Sender interface {
	Send(ctx context.Context, endpoint, connectionID string, data []byte) error
}

// DeliveryReport summarizes one broadcast. Partial delivery is not an error;
// callers may use the counts for observability but must not fail a job on them.
type DeliveryReport struct {
	Attempted int
	Delivered int
	Pruned    int
}

// Broadcaster delivers progress events to every live connection of a user and
// self-heals the registry when deliveries fail.
type Broadcaster struct {
	Registry    *Registry
	Sender      Sender
	Logger      zerolog.Logger
	Concurrency int // max concurrent sends (default 50)
}

// Broadcast sends the event to all of the user's live connections,
// concurrently and independently. A failed delivery marks that connection
// stale and unregisters it; it never fails the broadcast. A user with no
// connections is a normal outcome and returns an empty report.
func (b *Broadcaster) Broadcast(ctx context.Context, userID string, event ProgressEvent) (DeliveryReport, error) {
	conns, err := b.Registry.FindByUser(ctx, userID)
	if err != nil {
		return DeliveryReport{}, err
	}
	if len(conns) == 0 {
		return DeliveryReport{}, nil
	}

	data, err := ProgressMessage(event)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("serializing progress event for job %v: %w", event.JobID, err)
	}

	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = 50
	}

	var delivered, pruned int64
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for _, conn := range conns {
		conn := conn
		group.Go(func() error {
			sendErr := b.Sender.Send(ctx, conn.Endpoint, conn.ConnectionID, data)
			if sendErr == nil {
				atomic.AddInt64(&delivered, 1)
				return nil
			}

			if isGoneException(sendErr) {
				b.Logger.Info().
					Str("connection_id", conn.ConnectionID).
					Str("job_id", event.JobID).
					Msg("connection gone, pruning")
			} else {
				b.Logger.Warn().Err(sendErr).
					Str("connection_id", conn.ConnectionID).
					Str("job_id", event.JobID).
					Msg("delivery failed, pruning connection")
			}
			if err := b.Registry.Unregister(ctx, conn.ConnectionID); err != nil {
				b.Logger.Error().Err(err).
					Str("connection_id", conn.ConnectionID).
					Msg("failed to prune stale connection")
			}
			atomic.AddInt64(&pruned, 1)
			return nil
		})
	}

	// sends absorb their own failures, so the only wait result is nil
	group.Wait()

	return DeliveryReport{
		Attempted: len(conns),
		Delivered: int(atomic.LoadInt64(&delivered)),
		Pruned:    int(atomic.LoadInt64(&pruned)),
	}, nil
}
