package scanrelay

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/internal/assembler"
	"github.com/arloliu/scanrelay/internal/broadcaster"
	"github.com/arloliu/scanrelay/internal/control"
	"github.com/arloliu/scanrelay/internal/render"
	"github.com/arloliu/scanrelay/internal/transport"
	"github.com/arloliu/scanrelay/internal/watch"
)

// Producer runs the scanner side of the relay.
//
// It owns three loops sharing the inactivity timeout and the status:
//   - the batch assembler, woken by the input directory watcher
//   - the status broadcaster, publishing snapshots on the telemetry queue
//   - the control listener, applying timeout updates from the control queue
//
// Lifecycle:
//   - Create with NewProducer()
//   - Call Start() to create streams and directories and begin processing
//   - Call Stop() to flush the open document and shut down
type Producer struct {
	*lifecycle

	conn     *nats.Conn
	renderer Renderer

	timeout *control.TimeoutCell
	status  *control.StatusCell

	broadcaster *broadcaster.Broadcaster
	watcher     *watch.Watcher
}

// NewProducer creates a producer.
//
// Parameters:
//   - cfg: Configuration; defaults are applied in place
//   - conn: NATS connection
//   - opts: Optional logger, metrics, hooks and renderer
//
// Returns:
//   - *Producer: Initialized producer
//   - error: ErrInvalidConfig or ErrNATSConnectionRequired
//
// Example:
//
//	cfg := scanrelay.DefaultConfig()
//	cfg.Producer.InputDir = "/var/scans"
//	producer, err := scanrelay.NewProducer(&cfg, natsConn)
func NewProducer(cfg *Config, conn *nats.Conn, opts ...Option) (*Producer, error) {
	if conn == nil {
		return nil, ErrNATSConnectionRequired
	}

	l, err := newLifecycle(cfg, opts)
	if err != nil {
		return nil, err
	}

	renderer := l.opts.renderer
	if renderer == nil {
		renderer = render.NewPDF()
	}

	return &Producer{
		lifecycle: l,
		conn:      conn,
		renderer:  renderer,
		timeout:   control.NewTimeoutCell(l.cfg.Producer.Timeout),
		status:    &control.StatusCell{},
	}, nil
}

// Start creates the streams and directories and launches the producer loops.
//
// Parameters:
//   - ctx: Context bounding startup (stream creation)
//
// Returns:
//   - error: ErrAlreadyStarted or a startup failure
func (p *Producer) Start(ctx context.Context) error {
	runCtx, err := p.begin()
	if err != nil {
		return err
	}
	if err := p.start(ctx, runCtx); err != nil {
		p.abort()
		return err
	}

	return nil
}

func (p *Producer) start(ctx, runCtx context.Context) error {
	cfg := p.cfg.Producer

	startupCtx, cancel := context.WithTimeout(ctx, p.cfg.OperationTimeout)
	defer cancel()

	if err := ensureDirs(cfg.InputDir, cfg.StagingDir); err != nil {
		return err
	}

	js, err := jetstream.New(p.conn)
	if err != nil {
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	_, _, controlStream, err := ensureQueues(startupCtx, js, p.cfg.Queues)
	if err != nil {
		return err
	}

	controlCons, err := transport.EnsureConsumer(startupCtx, controlStream, cfg.ControlDurable, 0)
	if err != nil {
		return fmt.Errorf("failed to create control consumer: %w", err)
	}

	watcher, err := watch.NewDir(cfg.InputDir, p.logger)
	if err != nil {
		return err
	}
	p.watcher = watcher

	publisher := transport.NewChunkPublisher(js, transport.ChunkPublisherConfig{
		Subject:   p.cfg.Queues.Chunks.Subject,
		RateLimit: cfg.PublishRate,
		Burst:     cfg.PublishBurst,
	}, p.logger, p.metrics)

	asm := assembler.New(
		assembler.Config{
			InputDir:      cfg.InputDir,
			StagingDir:    cfg.StagingDir,
			ChunkSize:     cfg.ChunkSize,
			Lock:          p.cfg.Lock.retryPolicy(),
			ShutdownGrace: cfg.ShutdownGrace,
			SettleWindow:  cfg.SettleWindow,
		},
		p.renderer,
		publisher,
		p.timeout,
		watcher.C(),
		assembler.WithLogger(p.logger),
		assembler.WithMetrics(p.metrics),
		assembler.WithHooks(p.hooks),
		assembler.WithStatus(p.status),
	)

	listener := control.NewListener(controlCons, p.timeout, p.logger, p.metrics, p.hooks)

	b := broadcaster.New(js, p.cfg.Queues.Telemetry.Subject, cfg.StatusInterval,
		p.status, p.timeout, p.logger, p.metrics)
	if err := b.Start(runCtx); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to start broadcaster: %w", err)
	}
	p.mu.Lock()
	p.broadcaster = b
	p.mu.Unlock()

	p.wg.Go(func() { watcher.Run(runCtx) })
	p.wg.Go(func() { asm.Run(runCtx) })
	p.wg.Go(func() { listener.Run(runCtx) })

	p.logger.Info("producer started",
		"input", cfg.InputDir,
		"staging", cfg.StagingDir,
		"timeout", p.timeout.Load())

	return nil
}

// Stop flushes the open document and stops all producer loops.
//
// Parameters:
//   - ctx: Context bounding the shutdown wait
//
// Returns:
//   - error: ErrNotStarted or a shutdown timeout
func (p *Producer) Stop(ctx context.Context) error {
	p.mu.Lock()
	b := p.broadcaster
	p.mu.Unlock()

	err := p.end(ctx, "producer")
	if b != nil {
		_ = b.Stop()
	}

	return err
}

// Timeout returns the effective inactivity timeout.
func (p *Producer) Timeout() time.Duration {
	return p.timeout.Load()
}

// Status returns what the batch assembler is currently doing.
func (p *Producer) Status() Status {
	return p.status.Load()
}
