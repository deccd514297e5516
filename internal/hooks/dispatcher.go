package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/types"
)

// Dispatcher invokes hooks in background goroutines so that slow callbacks
// never stall the relay loops. Hook errors are logged.
type Dispatcher struct {
	hooks  *types.Hooks
	logger types.Logger
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher for h. Nil hooks and nil callbacks are skipped.
func NewDispatcher(h *types.Hooks, log types.Logger) *Dispatcher {
	if h == nil {
		h = NewNop()
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Dispatcher{hooks: h, logger: log}
}

// DocumentSent fires OnDocumentSent.
func (d *Dispatcher) DocumentSent(ctx context.Context, doc types.DocumentInfo) {
	if fn := d.hooks.OnDocumentSent; fn != nil {
		d.run(ctx, "OnDocumentSent", func(ctx context.Context) error { return fn(ctx, doc) })
	}
}

// DocumentReassembled fires OnDocumentReassembled.
func (d *Dispatcher) DocumentReassembled(ctx context.Context, doc types.DocumentInfo) {
	if fn := d.hooks.OnDocumentReassembled; fn != nil {
		d.run(ctx, "OnDocumentReassembled", func(ctx context.Context) error { return fn(ctx, doc) })
	}
}

// TimeoutChanged fires OnTimeoutChanged.
func (d *Dispatcher) TimeoutChanged(ctx context.Context, from, to time.Duration) {
	if fn := d.hooks.OnTimeoutChanged; fn != nil {
		d.run(ctx, "OnTimeoutChanged", func(ctx context.Context) error { return fn(ctx, from, to) })
	}
}

// Wait blocks until every dispatched hook has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, name string, fn func(context.Context) error) {
	// hooks outlive a cancelled loop iteration but keep the caller's values
	hookCtx := context.WithoutCancel(ctx)

	d.wg.Go(func() {
		if err := fn(hookCtx); err != nil {
			d.logger.Warn("hook returned error", "hook", name, "error", err)
		}
	})
}
