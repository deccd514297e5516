package control

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/internal/hooks"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/metrics"
	"github.com/arloliu/scanrelay/internal/transport"
	"github.com/arloliu/scanrelay/types"
)

// Listener applies timeout updates received on the control queue.
type Listener struct {
	cons    jetstream.Consumer
	cell    *TimeoutCell
	logger  types.Logger
	metrics types.ProducerMetrics
	hooks   *hooks.Dispatcher
}

// NewListener creates a control listener writing into cell.
//
// Parameters:
//   - cons: Durable consumer on the control stream
//   - cell: Timeout cell shared with the assembler
//   - log: Logger (no-op when nil)
//   - m: Producer metrics (no-op when nil)
//   - h: Hook dispatcher (no hooks when nil)
func NewListener(cons jetstream.Consumer, cell *TimeoutCell, log types.Logger, m types.ProducerMetrics, h *hooks.Dispatcher) *Listener {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if h == nil {
		h = hooks.NewDispatcher(nil, log)
	}

	return &Listener{cons: cons, cell: cell, logger: log, metrics: m, hooks: h}
}

// Run blocks receiving control messages until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	l.logger.Info("control listener started", "timeout", l.cell.Load())
	transport.Listen(ctx, l.cons, transport.MessageHandlerFunc(l.handle), l.logger)
	l.logger.Info("control listener stopped")
}

func (l *Listener) handle(ctx context.Context, msg jetstream.Msg) error {
	l.Apply(ctx, msg.Data())

	// invalid updates are dropped, never redelivered
	return nil
}

// Apply parses body and stores the timeout it carries.
//
// Returns:
//   - bool: true when the update was applied
func (l *Listener) Apply(ctx context.Context, body []byte) bool {
	d, err := ParseTimeout(body)
	if err != nil {
		l.metrics.RecordTimeoutUpdate(false)
		l.logger.Warn("dropping invalid timeout update", "body", string(body), "error", err)

		return false
	}

	prev, _ := l.cell.Store(d)
	l.metrics.RecordTimeoutUpdate(true)
	if prev != d {
		l.logger.Info("inactivity timeout updated", "from", prev, "to", d)
		l.hooks.TimeoutChanged(ctx, prev, d)
	}

	return true
}

// ParseTimeout decodes a control message body: a positive decimal number of milliseconds.
func ParseTimeout(body []byte) (time.Duration, error) {
	text := strings.TrimSpace(string(body))
	ms, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", types.ErrInvalidMessage, text)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%w: timeout must be positive, got %d", types.ErrInvalidMessage, ms)
	}
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return 0, fmt.Errorf("%w: timeout %dms overflows", types.ErrInvalidMessage, ms)
	}

	return time.Duration(ms) * time.Millisecond, nil
}

// FormatTimeout encodes d as a control message body.
func FormatTimeout(d time.Duration) []byte {
	return strconv.AppendInt(nil, d.Milliseconds(), 10)
}
