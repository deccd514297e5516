package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/time/rate"

	"github.com/arloliu/scanrelay/internal/backoff"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/metrics"
	"github.com/arloliu/scanrelay/internal/natsutil"
	"github.com/arloliu/scanrelay/types"
)

// HeaderDocumentID carries the document ID on every chunk message.
const HeaderDocumentID = "Scan-Document-Id"

// ChunkPublisherConfig configures a ChunkPublisher.
type ChunkPublisherConfig struct {
	// Subject is the chunk queue subject.
	Subject string
	// RateLimit caps chunks per second; zero or negative means unlimited.
	RateLimit float64
	// Burst is the limiter burst size (1 when <= 0).
	Burst int
	// Attempts bounds tries per chunk when the broker is unreachable
	// (DefaultPublishAttempts when <= 0).
	Attempts int
	// RetryDelay is the first backoff delay between attempts
	// (DefaultPublishRetryDelay when <= 0).
	RetryDelay time.Duration
}

const (
	DefaultPublishAttempts   = 3
	DefaultPublishRetryDelay = 200 * time.Millisecond
)

// ChunkPublisher publishes document chunks in position order.
type ChunkPublisher struct {
	js      jetstream.JetStream
	subject string
	limiter *rate.Limiter
	logger  types.Logger
	metrics types.ProducerMetrics

	attempts   int
	retryDelay time.Duration
}

// NewChunkPublisher creates a chunk publisher.
//
// Parameters:
//   - js: JetStream context
//   - cfg: Publisher configuration
//   - log: Logger (no-op when nil)
//   - m: Producer metrics (no-op when nil)
func NewChunkPublisher(js jetstream.JetStream, cfg ChunkPublisherConfig, log types.Logger, m types.ProducerMetrics) *ChunkPublisher {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultPublishAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultPublishRetryDelay
	}

	return &ChunkPublisher{
		js:      js,
		subject: cfg.Subject,
		limiter: limiter,
		logger:  log,
		metrics: m,

		attempts:   attempts,
		retryDelay: retryDelay,
	}
}

// PublishDocument publishes chunks one message at a time, waiting for the
// broker acknowledgement of each before sending the next.
//
// The first failure aborts the document; chunks already published stay on the
// queue.
//
// Returns:
//   - int: Number of chunks acknowledged by the broker
//   - error: Wrapped ErrPublishFailed, or the context error
func (p *ChunkPublisher) PublishDocument(ctx context.Context, docID string, chunks []types.Chunk) (int, error) {
	for i, chunk := range chunks {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return i, err
			}
		}

		data, err := json.Marshal(chunk)
		if err != nil {
			return i, fmt.Errorf("%w: encode chunk %d: %w", types.ErrPublishFailed, chunk.Position, err)
		}

		if err := p.publishChunk(ctx, docID, chunk, data); err != nil {
			return i, fmt.Errorf("%w: chunk %d/%d of %s: %w",
				types.ErrPublishFailed, chunk.Position, chunk.TerminalPosition, docID, err)
		}
	}

	return len(chunks), nil
}

// publishChunk sends one chunk, retrying only while the broker is unreachable.
// Every attempt carries the same message ID.
func (p *ChunkPublisher) publishChunk(ctx context.Context, docID string, chunk types.Chunk, data []byte) error {
	jitter := backoff.New(p.retryDelay, 2.0, 5*time.Second, 0)

	for attempt := 1; ; attempt++ {
		msg := nats.NewMsg(p.subject)
		msg.Data = data
		msg.Header.Set(HeaderDocumentID, docID)

		_, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(MessageID(docID, chunk.Position)))
		p.metrics.RecordChunkPublished(err == nil)
		if err == nil {
			return nil
		}

		retryable := natsutil.IsConnectivityError(err) && attempt < p.attempts
		p.logger.Error("chunk publish failed",
			"document", docID,
			"position", chunk.Position,
			"terminal", chunk.TerminalPosition,
			"attempt", attempt,
			"retrying", retryable,
			"error", err)
		if !retryable {
			return err
		}

		if sleepErr := backoff.Sleep(ctx, jitter.Next()); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
	}
}

// MessageID returns the broker deduplication ID of a chunk.
func MessageID(docID string, position int) string {
	return docID + "-" + strconv.Itoa(position)
}

// Publish sends one message and waits for the broker acknowledgement.
func Publish(ctx context.Context, js jetstream.JetStream, subject string, data []byte) error {
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrPublishFailed, subject, err)
	}

	return nil
}

// PublishJSON encodes v as JSON and publishes it.
func PublishJSON(ctx context.Context, js jetstream.JetStream, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %T: %w", types.ErrPublishFailed, v, err)
	}

	return Publish(ctx, js, subject, data)
}
