package assembler

import (
	"context"
	"time"
)

// WakeReason tells why a wait ended.
type WakeReason int

const (
	// WakeTimeout means the inactivity timeout elapsed.
	WakeTimeout WakeReason = iota
	// WakeSignal means the input directory changed.
	WakeSignal
	// WakeShutdown means the context was cancelled.
	WakeShutdown
)

// String returns the wake reason name.
func (r WakeReason) String() string {
	switch r {
	case WakeTimeout:
		return "timeout"
	case WakeSignal:
		return "signal"
	case WakeShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Wait blocks until timeout elapses, signal fires or ctx is done.
//
// Shutdown wins over a signal or timeout that is ready at the same time.
func Wait(ctx context.Context, timeout time.Duration, signal <-chan struct{}) WakeReason {
	if ctx.Err() != nil {
		return WakeShutdown
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return WakeShutdown
	case <-signal:
		if ctx.Err() != nil {
			return WakeShutdown
		}

		return WakeSignal
	case <-timer.C:
		if ctx.Err() != nil {
			return WakeShutdown
		}

		return WakeTimeout
	}
}
