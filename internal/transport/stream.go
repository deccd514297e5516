package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/internal/backoff"
)

// Queue names one work-queue stream and the subject it captures.
type Queue struct {
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
}

// Default queues.
var (
	ChunkQueue     = Queue{Stream: "SCAN_CHUNKS", Subject: "scanrelay.chunks"}
	TelemetryQueue = Queue{Stream: "SCAN_TELEMETRY", Subject: "scanrelay.telemetry"}
	ControlQueue   = Queue{Stream: "SCAN_CONTROL", Subject: "scanrelay.control"}
)

// EnsureStream creates or opens the stream for q with retry logic.
//
// Producer and consumer both call EnsureStream at startup, so creation can
// race; an existing stream is opened instead of recreated. Transient failures
// are retried with jittered backoff.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - q: Queue to ensure
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.Stream: The stream handle
//   - error: Last error after all retries
func EnsureStream(ctx context.Context, js jetstream.JetStream, q Queue, maxRetries int) (jetstream.Stream, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	cfg := jetstream.StreamConfig{
		Name:      q.Stream,
		Subjects:  []string{q.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
		// Nats-Msg-Id dedup window for retried chunk publishes
		Duplicates: 2 * time.Minute,
	}

	delay := backoff.New(10*time.Millisecond, 2.0, time.Second, 0)

	var lastErr error
	for attempt := range maxRetries {
		stream, err := js.CreateStream(ctx, cfg)
		if err == nil {
			return stream, nil
		}

		if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			stream, err = js.Stream(ctx, q.Stream)
			if err == nil {
				return stream, nil
			}
			lastErr = fmt.Errorf("stream exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during stream creation: %w", ctx.Err())
		}

		if attempt < maxRetries-1 {
			if err := backoff.Sleep(ctx, delay.Next()); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open stream %s after %d attempts: %w", q.Stream, maxRetries, lastErr)
}

// EnsureConsumer creates or updates the durable pull consumer named durable on stream.
func EnsureConsumer(ctx context.Context, stream jetstream.Stream, durable string, ackWait time.Duration) (jetstream.Consumer, error) {
	if ackWait <= 0 {
		ackWait = 30 * time.Second
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          durable,
		Durable:       durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure consumer %s: %w", durable, err)
	}

	return cons, nil
}
