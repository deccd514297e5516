package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/internal/control"
	"github.com/arloliu/scanrelay/internal/fsutil"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/metrics"
	"github.com/arloliu/scanrelay/internal/transport"
	"github.com/arloliu/scanrelay/types"
)

// publishTimeout bounds a single control publish.
const publishTimeout = 5 * time.Second

// SnapshotLedger records received snapshots.
type SnapshotLedger interface {
	RecordSnapshot(ctx context.Context, snap types.Snapshot, receivedAt time.Time) error
}

// Config configures a Recorder.
type Config struct {
	// LogPath is the CSV config log; snapshots are appended to it.
	LogPath string
	// TimeoutFile is the operator's desired-timeout file.
	TimeoutFile string
	// ControlSubject receives pushed timeout values.
	ControlSubject string
	// Lock is the retry policy for reading the timeout file.
	Lock fsutil.RetryPolicy
}

// Recorder logs producer telemetry and forwards operator timeout changes.
type Recorder struct {
	cons    jetstream.Consumer
	js      jetstream.JetStream
	cfg     Config
	logger  types.Logger
	metrics types.ConsumerMetrics
	ledger  SnapshotLedger
	now     func() time.Time

	// lastSeen is the producer timeout from the latest snapshot, in nanoseconds.
	lastSeen atomic.Int64

	// mu serialises appends to the config log.
	mu sync.Mutex
}

// Option configures optional Recorder collaborators.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.ConsumerMetrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithLedger also stores every snapshot in l.
func WithLedger(l SnapshotLedger) Option {
	return func(r *Recorder) { r.ledger = l }
}

// New creates a recorder.
//
// Parameters:
//   - cons: Durable consumer on the telemetry stream
//   - js: JetStream context used to publish control messages
//   - cfg: File locations and control subject
//   - opts: Optional collaborators
func New(cons jetstream.Consumer, js jetstream.JetStream, cfg Config, opts ...Option) *Recorder {
	r := &Recorder{cons: cons, js: js, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logger.NewNop()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNop()
	}

	return r
}

// LastSeen returns the producer timeout from the most recent snapshot, or 0.
func (r *Recorder) LastSeen() time.Duration {
	return time.Duration(r.lastSeen.Load())
}

// Run records telemetry and reacts to timeout file notifications on changes
// until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context, changes <-chan struct{}) {
	r.logger.Info("telemetry recorder started", "log", r.cfg.LogPath, "timeoutFile", r.cfg.TimeoutFile)

	var wg sync.WaitGroup
	wg.Go(func() {
		transport.Listen(ctx, r.cons, transport.MessageHandlerFunc(r.handle), r.logger)
	})

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			r.logger.Info("telemetry recorder stopped")

			return
		case <-changes:
			if _, err := r.Push(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("failed to push timeout", "file", r.cfg.TimeoutFile, "error", err)
			}
		}
	}
}

func (r *Recorder) handle(ctx context.Context, msg jetstream.Msg) error {
	if err := r.Record(ctx, msg.Data()); err != nil {
		if errors.Is(err, types.ErrInvalidMessage) {
			r.logger.Warn("dropping invalid snapshot", "body", string(msg.Data()), "error", err)
			return nil
		}

		return err
	}

	return nil
}

// Record appends one snapshot message body to the config log and remembers
// its timeout.
func (r *Recorder) Record(ctx context.Context, body []byte) error {
	var snap types.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		r.metrics.RecordSnapshotRecorded(false)
		return fmt.Errorf("%w: %w", types.ErrInvalidMessage, err)
	}

	r.lastSeen.Store(int64(snap.Timeout()))

	if err := r.appendLine(FormatLine(snap)); err != nil {
		r.metrics.RecordSnapshotRecorded(false)
		return err
	}
	r.metrics.RecordSnapshotRecorded(true)
	r.logger.Debug("snapshot recorded", "status", snap.Status, "timeoutMillis", snap.TimeoutMillis)

	if r.ledger != nil {
		if err := r.ledger.RecordSnapshot(ctx, snap, r.now()); err != nil {
			r.logger.Warn("failed to record snapshot in ledger", "error", err)
		}
	}

	return nil
}

// FormatLine renders a snapshot as a config log line without the newline.
func FormatLine(snap types.Snapshot) string {
	return fmt.Sprintf("%s,%s,%ds", snap.Timestamp, snap.Status, snap.TimeoutMillis)
}

func (r *Recorder) appendLine(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.cfg.LogPath), 0o755); err != nil {
		return fmt.Errorf("creating config log directory: %w", err)
	}

	f, err := os.OpenFile(r.cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening config log: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("appending to config log: %w", err)
	}

	return f.Close()
}

// Push reads the timeout file and publishes its value on the control queue
// when it differs from the last timeout the producer reported.
//
// Returns:
//   - bool: true when a value was published
//   - error: Read, parse or publish error
func (r *Recorder) Push(ctx context.Context) (bool, error) {
	data, err := fsutil.ReadAll(ctx, r.cfg.TimeoutFile, r.cfg.Lock)
	if err != nil {
		return false, fmt.Errorf("reading timeout file: %w", err)
	}

	desired, err := ParseTimeoutFile(data)
	if err != nil {
		return false, err
	}

	if desired == r.LastSeen() {
		r.logger.Debug("timeout unchanged, not pushing", "timeout", desired)
		return false, nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := transport.Publish(pubCtx, r.js, r.cfg.ControlSubject, control.FormatTimeout(desired)); err != nil {
		r.metrics.RecordTimeoutPushed(false)
		return false, err
	}
	r.metrics.RecordTimeoutPushed(true)
	r.logger.Info("pushed timeout to producer", "from", r.LastSeen(), "to", desired)

	return true, nil
}
