package reassembler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/codec"
	"github.com/arloliu/scanrelay/internal/backoff"
	"github.com/arloliu/scanrelay/internal/hooks"
	"github.com/arloliu/scanrelay/internal/ledger"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/metrics"
	"github.com/arloliu/scanrelay/internal/transport"
	"github.com/arloliu/scanrelay/types"
)

// DefaultPollInterval is the pause between two queue passes.
const DefaultPollInterval = time.Second

// Protocol violation kinds reported to metrics.
const (
	ViolationUnparseable = "unparseable"
	ViolationOrder       = "order"
	ViolationInterleaved = "interleaved"
)

// DocumentLedger records written documents.
type DocumentLedger interface {
	RecordDocument(ctx context.Context, rec ledger.DocumentRecord) error
}

// Config configures a Reassembler.
type Config struct {
	// OutputDir receives result_{k}.pdf files.
	OutputDir string
	// PollInterval is the pause between passes (DefaultPollInterval when <= 0).
	PollInterval time.Duration
	// DrainBatch is the fetch batch size of one pass.
	DrainBatch int
}

// Reassembler turns the chunk queue back into files.
//
// Accept, Pass and Discard must be called from a single goroutine.
type Reassembler struct {
	cons    jetstream.Consumer
	cfg     Config
	logger  types.Logger
	metrics types.ConsumerMetrics
	hooks   *hooks.Dispatcher
	ledger  DocumentLedger
	now     func() time.Time

	buf        []types.Chunk
	docID      string
	violations int
}

// Option configures optional Reassembler collaborators.
type Option func(*Reassembler)

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(r *Reassembler) { r.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.ConsumerMetrics) Option {
	return func(r *Reassembler) { r.metrics = m }
}

// WithHooks sets the hook dispatcher.
func WithHooks(h *hooks.Dispatcher) Option {
	return func(r *Reassembler) { r.hooks = h }
}

// WithLedger records every written document in l.
func WithLedger(l DocumentLedger) Option {
	return func(r *Reassembler) { r.ledger = l }
}

// New creates a reassembler reading from cons.
func New(cons jetstream.Consumer, cfg Config, opts ...Option) *Reassembler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	r := &Reassembler{cons: cons, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logger.NewNop()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNop()
	}
	if r.hooks == nil {
		r.hooks = hooks.NewDispatcher(nil, r.logger)
	}

	return r
}

// Run polls the queue until ctx is cancelled. A partial document is discarded on exit.
func (r *Reassembler) Run(ctx context.Context) {
	r.logger.Info("reassembler started", "output", r.cfg.OutputDir, "poll", r.cfg.PollInterval)

	for ctx.Err() == nil {
		if _, err := r.Pass(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("queue pass failed", "error", err)
		}

		if backoff.Sleep(ctx, r.cfg.PollInterval) != nil {
			break
		}
	}

	if n := r.Discard(); n > 0 {
		r.logger.Warn("discarding partial document on shutdown", "document", r.docID, "chunks", n)
	}
	r.logger.Info("reassembler stopped")
}

// Pass drains the currently available messages, feeds them to Accept and
// acknowledges every inspected message.
//
// Returns:
//   - int: Number of documents written during the pass
//   - error: Drain or acknowledge error
func (r *Reassembler) Pass(ctx context.Context) (int, error) {
	msgs, drainErr := transport.Drain(ctx, r.cons, r.cfg.DrainBatch)

	written := 0
	for _, msg := range msgs {
		var docID string
		if h := msg.Headers(); h != nil {
			docID = h.Get(transport.HeaderDocumentID)
		}
		if _, ok := r.Accept(ctx, docID, msg.Data()); ok {
			written++
		}
	}

	if err := transport.AckAll(msgs); err != nil {
		return written, fmt.Errorf("acknowledging %d messages: %w", len(msgs), err)
	}
	if drainErr != nil {
		return written, fmt.Errorf("draining chunk queue: %w", drainErr)
	}

	return written, nil
}

// Accept appends one chunk message body to the buffer and writes the
// document when the chunk is terminal.
//
// Returns:
//   - string: Output path when a document was written
//   - bool: true when a document was written
func (r *Reassembler) Accept(ctx context.Context, docID string, body []byte) (string, bool) {
	r.metrics.RecordChunkReceived()

	var c types.Chunk
	if err := json.Unmarshal(body, &c); err != nil {
		r.violation(ViolationUnparseable, "skipping unparseable chunk", "document", docID, "error", err)
		return "", false
	}
	if err := codec.CheckPayload(c); err != nil {
		r.violation(ViolationUnparseable, "skipping malformed chunk", "document", docID, "position", c.Position, "error", err)
		return "", false
	}

	if len(r.buf) > 0 && docID != r.docID {
		r.violation(ViolationInterleaved, "chunk from another document inside open buffer",
			"buffered", r.docID, "received", docID, "position", c.Position)
	}
	if len(r.buf) == 0 {
		// violations seen between documents belong to no ledger record
		r.docID = docID
		r.violations = 0
	}
	r.buf = append(r.buf, c)

	if !c.IsTerminal() {
		return "", false
	}

	path, err := r.flush(ctx)
	if err != nil {
		r.logger.Error("failed to write document", "document", r.docID, "error", err)
		return "", false
	}

	return path, true
}

// Pending returns the number of buffered chunks.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Discard drops the buffered chunks and returns how many there were.
func (r *Reassembler) Discard() int {
	n := len(r.buf)
	r.reset()

	return n
}

func (r *Reassembler) flush(ctx context.Context) (string, error) {
	defer r.reset()

	if err := codec.Validate(r.buf); err != nil {
		r.violation(ViolationOrder, "chunk sequence out of order, writing as received",
			"document", r.docID, "chunks", len(r.buf), "error", err)
	}

	size := 0
	for _, c := range r.buf {
		size += c.PayloadLength
	}
	data := make([]byte, 0, size)
	for _, c := range r.buf {
		data = append(data, c.Bytes()...)
	}

	path, err := r.nextPath()
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		r.metrics.RecordDocumentReassembled(len(data), false)
		return "", err
	}
	r.metrics.RecordDocumentReassembled(len(data), true)

	info := types.DocumentInfo{
		ID:     r.docID,
		Size:   len(data),
		Chunks: len(r.buf),
		Digest: codec.Digest(data),
		Path:   path,
	}
	r.logger.Info("document reassembled", "document", info.ID, "path", path,
		"bytes", info.Size, "chunks", info.Chunks, "digest", fmt.Sprintf("%016x", info.Digest))

	if r.ledger != nil {
		rec := ledger.DocumentRecord{
			DocumentID: info.ID,
			Path:       path,
			Size:       info.Size,
			Chunks:     info.Chunks,
			Digest:     info.Digest,
			Violations: r.violations,
			WrittenAt:  r.now(),
		}
		if err := r.ledger.RecordDocument(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.Warn("failed to record document in ledger", "path", path, "error", err)
		}
	}
	r.hooks.DocumentReassembled(ctx, info)

	return path, nil
}

// nextPath names the output after the current directory size.
func (r *Reassembler) nextPath() (string, error) {
	entries, err := os.ReadDir(r.cfg.OutputDir)
	if err != nil {
		return "", fmt.Errorf("listing output directory: %w", err)
	}

	return filepath.Join(r.cfg.OutputDir, fmt.Sprintf("result_%d.pdf", len(entries)+1)), nil
}

func (r *Reassembler) violation(kind, msg string, kv ...any) {
	r.metrics.RecordProtocolViolation(kind)
	r.logger.Warn(msg, kv...)
	r.violations++
}

func (r *Reassembler) reset() {
	r.buf = r.buf[:0]
	r.docID = ""
	r.violations = 0
}
