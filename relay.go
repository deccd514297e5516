package scanrelay

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/internal/hooks"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/metrics"
	"github.com/arloliu/scanrelay/internal/transport"
)

// streamRetries is the number of attempts per stream at startup.
const streamRetries = 3

// lifecycle carries the run state shared by Producer and Consumer.
type lifecycle struct {
	cfg     Config
	logger  Logger
	metrics MetricsCollector
	hooks   *hooks.Dispatcher
	opts    relayOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func newLifecycle(cfg *Config, opts []Option) (*lifecycle, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	// Fill in missing configuration values with defaults
	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := relayOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	// Provide safe defaults for optional dependencies to avoid nil checks everywhere
	l := &lifecycle{cfg: *cfg, opts: options, logger: options.logger, metrics: options.metrics}
	if l.logger == nil {
		l.logger = logger.NewNop()
	}
	if l.metrics == nil {
		l.metrics = metrics.NewNop()
	}
	l.hooks = hooks.NewDispatcher(options.hooks, l.logger)

	cfg.ValidateWithWarnings(l.logger)

	return l, nil
}

// begin marks the lifecycle as started and returns the run context.
func (l *lifecycle) begin() (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ctx != nil {
		return nil, ErrAlreadyStarted
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())

	return l.ctx, nil
}

// abort undoes begin after a failed start.
func (l *lifecycle) abort() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cancel()
	l.ctx, l.cancel = nil, nil
}

// end cancels the run context and waits for the goroutines.
//
// The wait is bounded by ctx and, when ctx has no deadline, by ShutdownTimeout.
func (l *lifecycle) end(ctx context.Context, name string) error {
	l.mu.Lock()
	if l.ctx == nil || l.ctx.Err() != nil {
		l.mu.Unlock()
		return ErrNotStarted
	}
	l.cancel()
	l.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && l.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.ShutdownTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		l.hooks.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info(name + " stopped gracefully")
		return nil
	case <-ctx.Done():
		l.logger.Error("shutdown timeout exceeded, some goroutines may still be running", "component", name)
		return fmt.Errorf("%s shutdown: %w", name, ctx.Err())
	}
}

// ensureQueues creates or opens all three streams.
func ensureQueues(ctx context.Context, js jetstream.JetStream, q QueuesConfig) (chunks, telemetry, control jetstream.Stream, err error) {
	if chunks, err = transport.EnsureStream(ctx, js, q.Chunks, streamRetries); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to ensure chunk stream: %w", err)
	}
	if telemetry, err = transport.EnsureStream(ctx, js, q.Telemetry, streamRetries); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to ensure telemetry stream: %w", err)
	}
	if control, err = transport.EnsureStream(ctx, js, q.Control, streamRetries); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to ensure control stream: %w", err)
	}

	return chunks, telemetry, control, nil
}

func ensureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
