package scanrelay

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/internal/ledger"
	"github.com/arloliu/scanrelay/internal/reassembler"
	"github.com/arloliu/scanrelay/internal/telemetry"
	"github.com/arloliu/scanrelay/internal/transport"
	"github.com/arloliu/scanrelay/internal/watch"
)

// Consumer runs the server side of the relay.
//
// It owns two independent loops:
//   - the reassembler, polling the chunk queue and writing result files
//   - the telemetry recorder, logging snapshots and pushing timeout file changes
//
// Lifecycle:
//   - Create with NewConsumer()
//   - Call Start() to create streams and directories and begin processing
//   - Call Stop() to shut down; a partially received document is discarded
type Consumer struct {
	*lifecycle

	conn     *nats.Conn
	recorder *telemetry.Recorder
	ledger   *ledger.Ledger
	watcher  *watch.Watcher
}

// NewConsumer creates a consumer.
//
// Parameters:
//   - cfg: Configuration; defaults are applied in place
//   - conn: NATS connection
//   - opts: Optional logger, metrics and hooks
//
// Returns:
//   - *Consumer: Initialized consumer
//   - error: ErrInvalidConfig or ErrNATSConnectionRequired
func NewConsumer(cfg *Config, conn *nats.Conn, opts ...Option) (*Consumer, error) {
	if conn == nil {
		return nil, ErrNATSConnectionRequired
	}

	l, err := newLifecycle(cfg, opts)
	if err != nil {
		return nil, err
	}

	return &Consumer{lifecycle: l, conn: conn}, nil
}

// Start creates the streams and directories and launches the consumer loops.
//
// Parameters:
//   - ctx: Context bounding startup (stream creation)
//
// Returns:
//   - error: ErrAlreadyStarted or a startup failure
func (c *Consumer) Start(ctx context.Context) error {
	runCtx, err := c.begin()
	if err != nil {
		return err
	}
	if err := c.start(ctx, runCtx); err != nil {
		c.release()
		c.abort()

		return err
	}

	return nil
}

func (c *Consumer) start(ctx, runCtx context.Context) error {
	cfg := c.cfg.Consumer

	startupCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	if err := ensureDirs(cfg.OutputDir, filepath.Dir(cfg.ConfigLogPath), filepath.Dir(cfg.TimeoutFile)); err != nil {
		return err
	}

	js, err := jetstream.New(c.conn)
	if err != nil {
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	chunkStream, telemetryStream, _, err := ensureQueues(startupCtx, js, c.cfg.Queues)
	if err != nil {
		return err
	}

	chunkCons, err := transport.EnsureConsumer(startupCtx, chunkStream, cfg.ChunkDurable, 0)
	if err != nil {
		return fmt.Errorf("failed to create chunk consumer: %w", err)
	}
	telemetryCons, err := transport.EnsureConsumer(startupCtx, telemetryStream, cfg.TelemetryDurable, 0)
	if err != nil {
		return fmt.Errorf("failed to create telemetry consumer: %w", err)
	}

	reasmOpts := []reassembler.Option{
		reassembler.WithLogger(c.logger),
		reassembler.WithMetrics(c.metrics),
		reassembler.WithHooks(c.hooks),
	}
	recOpts := []telemetry.Option{
		telemetry.WithLogger(c.logger),
		telemetry.WithMetrics(c.metrics),
	}
	if cfg.LedgerPath != "" {
		led, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		c.ledger = led
		reasmOpts = append(reasmOpts, reassembler.WithLedger(led))
		recOpts = append(recOpts, telemetry.WithLedger(led))
	}

	watcher, err := watch.NewFile(cfg.TimeoutFile, c.logger)
	if err != nil {
		return err
	}
	c.watcher = watcher

	reasm := reassembler.New(chunkCons, reassembler.Config{
		OutputDir:    cfg.OutputDir,
		PollInterval: cfg.PollInterval,
		DrainBatch:   cfg.DrainBatch,
	}, reasmOpts...)

	recorder := telemetry.New(telemetryCons, js, telemetry.Config{
		LogPath:        cfg.ConfigLogPath,
		TimeoutFile:    cfg.TimeoutFile,
		ControlSubject: c.cfg.Queues.Control.Subject,
		Lock:           c.cfg.Lock.retryPolicy(),
	}, recOpts...)
	c.mu.Lock()
	c.recorder = recorder
	c.mu.Unlock()

	c.wg.Go(func() { watcher.Run(runCtx) })
	c.wg.Go(func() { reasm.Run(runCtx) })
	c.wg.Go(func() { recorder.Run(runCtx, watcher.C()) })

	c.logger.Info("consumer started",
		"output", cfg.OutputDir,
		"configLog", cfg.ConfigLogPath,
		"timeoutFile", cfg.TimeoutFile,
		"ledger", cfg.LedgerPath)

	return nil
}

// Stop stops the consumer loops and closes the ledger.
//
// Parameters:
//   - ctx: Context bounding the shutdown wait
//
// Returns:
//   - error: ErrNotStarted or a shutdown timeout
func (c *Consumer) Stop(ctx context.Context) error {
	if err := c.end(ctx, "consumer"); err != nil {
		return err
	}
	c.release()

	return nil
}

// LastSeenTimeout returns the producer timeout from the latest recorded snapshot.
func (c *Consumer) LastSeenTimeout() time.Duration {
	c.mu.Lock()
	rec := c.recorder
	c.mu.Unlock()

	if rec == nil {
		return 0
	}

	return rec.LastSeen()
}

func (c *Consumer) release() {
	if c.watcher != nil {
		_ = c.watcher.Close()
	}
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			c.logger.Warn("failed to close ledger", "error", err)
		}
		c.ledger = nil
	}
}
