package control

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/scanrelay/types"
)

// TimeoutCell stores the effective inactivity timeout.
type TimeoutCell struct {
	nanos atomic.Int64

	subscribers      *xsync.Map[uint64, *timeoutSubscriber]
	nextSubscriberID atomic.Uint64
}

// NewTimeoutCell creates a cell holding initial.
func NewTimeoutCell(initial time.Duration) *TimeoutCell {
	c := &TimeoutCell{subscribers: xsync.NewMap[uint64, *timeoutSubscriber]()}
	c.nanos.Store(int64(initial))

	return c
}

// Load returns the current timeout.
func (c *TimeoutCell) Load() time.Duration {
	return time.Duration(c.nanos.Load())
}

// Store replaces the timeout when d is positive.
//
// Subscribers are notified only when the value actually changes.
//
// Returns:
//   - time.Duration: The previous value
//   - bool: false when d was rejected as non-positive
func (c *TimeoutCell) Store(d time.Duration) (time.Duration, bool) {
	if d <= 0 {
		return c.Load(), false
	}

	prev := time.Duration(c.nanos.Swap(int64(d)))
	if prev != d {
		c.subscribers.Range(func(_ uint64, sub *timeoutSubscriber) bool {
			sub.trySend(d)
			return true
		})
	}

	return prev, true
}

// Subscribe returns a channel that receives every new timeout value.
//
// The channel holds one pending value; a slow reader sees the latest value
// after missing intermediate ones.
//
// Returns:
//   - <-chan time.Duration: Change notifications
//   - func(): Unsubscribe function that closes the channel
func (c *TimeoutCell) Subscribe() (<-chan time.Duration, func()) {
	id := c.nextSubscriberID.Add(1)
	sub := &timeoutSubscriber{ch: make(chan time.Duration, 1)}
	c.subscribers.Store(id, sub)

	return sub.ch, func() {
		if s, ok := c.subscribers.LoadAndDelete(id); ok {
			s.close()
		}
	}
}

type timeoutSubscriber struct {
	ch     chan time.Duration
	mu     sync.Mutex
	closed bool
}

// trySend delivers d, replacing a pending value the reader has not taken yet.
func (s *timeoutSubscriber) trySend(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case <-s.ch:
	default:
	}
	s.ch <- d
}

func (s *timeoutSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// StatusCell stores the producer status reported in snapshots.
type StatusCell struct {
	v atomic.Int32
}

// Load returns the current status.
func (c *StatusCell) Load() types.Status {
	return types.Status(c.v.Load())
}

// Store replaces the status.
func (c *StatusCell) Store(s types.Status) {
	c.v.Store(int32(s))
}
