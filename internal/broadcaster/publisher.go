package broadcaster

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/internal/control"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/metrics"
	"github.com/arloliu/scanrelay/internal/transport"
	"github.com/arloliu/scanrelay/types"
)

// DefaultInterval is the snapshot period.
const DefaultInterval = 10 * time.Second

// publishTimeout bounds a single snapshot publish.
const publishTimeout = 5 * time.Second

// Broadcaster publishes status snapshots to the telemetry queue.
type Broadcaster struct {
	js       jetstream.JetStream
	subject  string
	interval time.Duration
	status   *control.StatusCell
	timeout  *control.TimeoutCell
	logger   types.Logger
	metrics  types.ProducerMetrics
	now      func() time.Time

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a broadcaster.
//
// Parameters:
//   - js: JetStream context
//   - subject: Telemetry queue subject
//   - interval: Snapshot period (DefaultInterval when <= 0)
//   - status: Producer status cell
//   - timeout: Producer timeout cell
//   - log: Logger (no-op when nil)
//   - m: Producer metrics (no-op when nil)
func New(
	js jetstream.JetStream,
	subject string,
	interval time.Duration,
	status *control.StatusCell,
	timeout *control.TimeoutCell,
	log types.Logger,
	m types.ProducerMetrics,
) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Broadcaster{
		js:       js,
		subject:  subject,
		interval: interval,
		status:   status,
		timeout:  timeout,
		logger:   log,
		metrics:  m,
		now:      time.Now,
	}
}

// Start publishes the first snapshot and begins the periodic loop.
//
// A failed first publish is logged; the loop keeps trying on every tick.
//
// Returns:
//   - error: types.ErrAlreadyStarted if already running
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return types.ErrAlreadyStarted
	}

	b.started = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})

	changes, unsubscribe := b.timeout.Subscribe()

	b.publish(ctx, "start")

	go b.loop(ctx, changes, unsubscribe)

	return nil
}

// Stop stops the loop and waits for it to exit.
//
// Returns:
//   - error: types.ErrNotStarted if not running
func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return types.ErrNotStarted
	}
	close(b.stopCh)
	b.started = false
	doneCh := b.doneCh
	b.mu.Unlock()

	<-doneCh

	return nil
}

func (b *Broadcaster) loop(ctx context.Context, changes <-chan time.Duration, unsubscribe func()) {
	defer close(b.doneCh)
	defer unsubscribe()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.publish(ctx, "tick")
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			b.publish(ctx, "timeout_changed")
		}
	}
}

// Snapshot returns the snapshot that would be published now.
func (b *Broadcaster) Snapshot() types.Snapshot {
	return types.NewSnapshot(b.now(), b.status.Load(), b.timeout.Load())
}

func (b *Broadcaster) publish(ctx context.Context, trigger string) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	snap := b.Snapshot()
	err := transport.PublishJSON(ctx, b.js, b.subject, snap)
	b.metrics.RecordSnapshotPublished(err == nil)
	if err != nil {
		b.logger.Warn("snapshot publish failed", "trigger", trigger, "error", err)
		return
	}

	b.logger.Debug("snapshot published",
		"trigger", trigger,
		"status", snap.Status,
		"timeout_ms", snap.TimeoutMillis)
}
