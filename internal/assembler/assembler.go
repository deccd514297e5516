package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/scanrelay/codec"
	"github.com/arloliu/scanrelay/internal/fsutil"
	"github.com/arloliu/scanrelay/internal/hooks"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/metrics"
	"github.com/arloliu/scanrelay/types"
)

// Flush reasons reported to metrics and logs.
const (
	FlushGap      = "gap"
	FlushTimeout  = "timeout"
	FlushShutdown = "shutdown"
)

// DefaultShutdownGrace bounds the final flush and staging cleanup after cancellation.
const DefaultShutdownGrace = 20 * time.Second

// ChunkPublisher sends a finished document's chunks in order.
type ChunkPublisher interface {
	PublishDocument(ctx context.Context, docID string, chunks []types.Chunk) (int, error)
}

// TimeoutSource provides the inactivity timeout, read once per wait.
type TimeoutSource interface {
	Load() time.Duration
}

// StatusSink receives the producer status.
type StatusSink interface {
	Store(status types.Status)
}

// Config configures an Assembler.
type Config struct {
	// InputDir is scanned for images.
	InputDir string
	// StagingDir holds images of open and flushed sessions until shutdown.
	StagingDir string
	// ChunkSize is the chunk payload capacity (types.DefaultChunkCapacity when <= 0).
	ChunkSize int
	// Lock is the exclusive-access retry policy for input and staged files.
	Lock fsutil.RetryPolicy
	// ShutdownGrace bounds the final flush after cancellation (DefaultShutdownGrace when <= 0).
	ShutdownGrace time.Duration
	// SettleWindow is how long an image must go unmodified before it is
	// staged; zero disables the check.
	SettleWindow time.Duration
}

// Session is the document currently being assembled.
type Session struct {
	// ID identifies the document on the wire.
	ID string
	// Images are the staged image paths in page order.
	Images []string
	// Expecting is the index the next image must carry to join this session.
	Expecting int

	doc types.Document
}

// Assembler runs the producer's scan/wait/flush cycle.
//
// All methods must be called from a single goroutine.
type Assembler struct {
	cfg       Config
	renderer  types.Renderer
	publisher ChunkPublisher
	timeout   TimeoutSource
	status    StatusSink
	logger    types.Logger
	metrics   types.ProducerMetrics
	hooks     *hooks.Dispatcher

	session *Session

	wait  func(ctx context.Context, timeout time.Duration) WakeReason
	newID func() string
}

// Option configures optional Assembler collaborators.
type Option func(*Assembler)

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.ProducerMetrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// WithHooks sets the hook dispatcher.
func WithHooks(h *hooks.Dispatcher) Option {
	return func(a *Assembler) { a.hooks = h }
}

// WithStatus sets the status sink.
func WithStatus(s StatusSink) Option {
	return func(a *Assembler) { a.status = s }
}

// New creates an assembler.
//
// Parameters:
//   - cfg: Directories and policies
//   - renderer: Image-to-document renderer
//   - publisher: Destination for finished documents
//   - timeout: Inactivity timeout source
//   - signal: Directory change signal
//   - opts: Optional collaborators
func New(
	cfg Config,
	renderer types.Renderer,
	publisher ChunkPublisher,
	timeout TimeoutSource,
	signal <-chan struct{},
	opts ...Option,
) *Assembler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = types.DefaultChunkCapacity
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}

	a := &Assembler{
		cfg:       cfg,
		renderer:  renderer,
		publisher: publisher,
		timeout:   timeout,
		newID:     uuid.NewString,
	}
	a.wait = func(ctx context.Context, d time.Duration) WakeReason {
		return Wait(ctx, d, signal)
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = logger.NewNop()
	}
	if a.metrics == nil {
		a.metrics = metrics.NewNop()
	}
	if a.hooks == nil {
		a.hooks = hooks.NewDispatcher(nil, a.logger)
	}
	if a.status == nil {
		a.status = nopStatus{}
	}

	userRetry := a.cfg.Lock.OnRetry
	a.cfg.Lock.OnRetry = func(path string, attempt int, err error) {
		a.metrics.RecordLockRetry()
		a.logger.Debug("file busy, retrying", "path", path, "attempt", attempt, "error", err)
		if userRetry != nil {
			userRetry(path, attempt, err)
		}
	}

	return a
}

// Session returns the open session, or nil.
func (a *Assembler) Session() *Session {
	return a.session
}

// Run scans and waits until ctx is cancelled, then flushes and cleans up.
func (a *Assembler) Run(ctx context.Context) {
	a.logger.Info("assembler started", "input", a.cfg.InputDir, "staging", a.cfg.StagingDir)

	for {
		a.status.Store(types.StatusProcessing)
		if err := a.Scan(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("scan failed", "dir", a.cfg.InputDir, "error", err)
		}
		a.status.Store(types.StatusWaiting)

		timeout := a.timeout.Load()
		reason := a.wait(ctx, timeout)
		a.logger.Debug("assembler woke", "reason", reason.String(), "timeout", timeout)

		switch reason {
		case WakeTimeout:
			if a.session != nil {
				_ = a.Flush(ctx, FlushTimeout)
			}
		case WakeSignal:
		case WakeShutdown:
			a.shutdown(ctx)
			a.logger.Info("assembler stopped")

			return
		}
	}
}

// Scan processes the input directory once.
//
// Returns:
//   - error: Directory listing failure or ctx cancellation
func (a *Assembler) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(a.cfg.InputDir)
	if err != nil {
		return fmt.Errorf("read input directory: %w", err)
	}

	// os.ReadDir returns entries sorted by file name
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			continue
		}

		name := entry.Name()
		path := filepath.Join(a.cfg.InputDir, name)

		index, ok := ParseImageName(name)
		if !ok {
			a.discard(ctx, path)
			continue
		}

		settled, err := fsutil.Settled(ctx, path, a.cfg.SettleWindow)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("failed to inspect image", "path", path, "error", err)

			continue
		}
		if !settled {
			// later images wait too, so page order follows file names
			a.metrics.RecordFileDeferred()
			a.logger.Debug("image still being written, will retry next scan", "path", path)

			return nil
		}

		if a.session != nil && index != a.session.Expecting {
			a.logger.Info("index gap, flushing session",
				"document", a.session.ID, "expected", a.session.Expecting, "got", index)
			_ = a.Flush(ctx, FlushGap)
		}

		if err := a.accept(ctx, path, name, index); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return nil
}

func (a *Assembler) discard(ctx context.Context, path string) {
	err := fsutil.Remove(ctx, path, a.cfg.Lock)
	switch {
	case err == nil:
		a.metrics.RecordFileDiscarded("invalid_name")
		a.logger.Info("deleted unrecognised input file", "path", path)
	case errors.Is(err, types.ErrFileLocked):
		a.metrics.RecordFileDeferred()
		a.logger.Warn("input file locked, will retry next scan", "path", path)
	case ctx.Err() == nil:
		a.logger.Warn("failed to delete input file", "path", path, "error", err)
	}
}

// accept stages one image and appends it to the session, opening one if needed.
func (a *Assembler) accept(ctx context.Context, path, name string, index int) error {
	staged := filepath.Join(a.cfg.StagingDir, name)

	var err error
	if _, statErr := os.Stat(staged); statErr == nil {
		// a staged file of the same name wins; the incoming copy is dropped
		err = fsutil.Remove(ctx, path, a.cfg.Lock)
		if err == nil {
			a.metrics.RecordFileDiscarded("duplicate")
			a.logger.Warn("image already staged, dropped incoming copy", "path", path, "staged", staged)
		}
	} else {
		err = fsutil.Move(ctx, path, staged, a.cfg.Lock)
	}

	if err != nil {
		if errors.Is(err, types.ErrFileLocked) {
			a.metrics.RecordFileDeferred()
			a.logger.Warn("image locked, will retry next scan", "path", path)
		} else if ctx.Err() == nil {
			a.logger.Warn("failed to stage image", "path", path, "error", err)
		}

		return err
	}

	if a.session == nil {
		if err := a.StartSession(); err != nil {
			return err
		}
	}

	if err := a.session.doc.AddPage(staged); err != nil {
		a.logger.Error("failed to add page", "document", a.session.ID, "image", staged, "error", err)
		return err
	}

	a.session.Images = append(a.session.Images, staged)
	a.session.Expecting = index + 1
	a.metrics.RecordPageAccepted()
	a.logger.Debug("page accepted", "document", a.session.ID, "image", staged, "index", index)

	return nil
}

// StartSession opens a new document session.
//
// Returns:
//   - error: types.ErrSessionOpen if a session is already open
func (a *Assembler) StartSession() error {
	if a.session != nil {
		return fmt.Errorf("%w: %s", types.ErrSessionOpen, a.session.ID)
	}

	a.session = &Session{ID: a.newID(), doc: a.renderer.NewDocument()}
	a.logger.Debug("session started", "document", a.session.ID)

	return nil
}

// Flush renders the open session, publishes its chunks and closes the session.
//
// The session is closed even when rendering or publishing fails; its staged
// images remain in the staging directory until shutdown.
//
// Returns:
//   - error: types.ErrNoSession, a render failure or a publish failure
func (a *Assembler) Flush(ctx context.Context, reason string) error {
	s := a.session
	if s == nil {
		return types.ErrNoSession
	}
	a.session = nil

	pages := len(s.Images)
	err := a.send(ctx, s)
	a.metrics.RecordDocumentFlushed(reason, pages, err == nil)
	if err != nil {
		a.logger.Error("document flush failed",
			"document", s.ID, "reason", reason, "pages", pages, "error", err)

		return err
	}

	return nil
}

func (a *Assembler) send(ctx context.Context, s *Session) error {
	if n := s.doc.PageCount(); n > 0 {
		if err := s.doc.RemovePage(n - 1); err != nil {
			return fmt.Errorf("%w: strip trailing page: %w", types.ErrRenderFailed, err)
		}
	}

	var buf bytes.Buffer
	if err := s.doc.Render(&buf); err != nil {
		return fmt.Errorf("%w: %w", types.ErrRenderFailed, err)
	}

	data := buf.Bytes()
	chunks := codec.Encode(data, a.cfg.ChunkSize)

	if _, err := a.publisher.PublishDocument(ctx, s.ID, chunks); err != nil {
		return err
	}

	info := types.DocumentInfo{
		ID:     s.ID,
		Pages:  len(s.Images),
		Size:   len(data),
		Chunks: len(chunks),
		Digest: codec.Digest(data),
	}
	a.logger.Info("document sent",
		"document", info.ID,
		"pages", info.Pages,
		"bytes", info.Size,
		"chunks", info.Chunks,
		"digest", fmt.Sprintf("%016x", info.Digest))
	a.hooks.DocumentSent(ctx, info)

	return nil
}

// shutdown flushes the open session and empties the staging directory.
func (a *Assembler) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownGrace)
	defer cancel()

	if a.session != nil {
		_ = a.Flush(ctx, FlushShutdown)
	}

	entries, err := os.ReadDir(a.cfg.StagingDir)
	if err != nil {
		a.logger.Warn("failed to list staging directory", "dir", a.cfg.StagingDir, "error", err)
		return
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(a.cfg.StagingDir, entry.Name())
		if err := fsutil.Remove(ctx, path, a.cfg.Lock); err != nil {
			a.logger.Warn("failed to remove staged image", "path", path, "error", err)
		}
	}
}

type nopStatus struct{}

func (nopStatus) Store(types.Status) {}
