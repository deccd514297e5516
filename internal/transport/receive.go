package transport

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/scanrelay/internal/backoff"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/types"
)

// MessageHandler processes one message taken by Listen.
//
// Listen ACKs the message when Handle returns nil and NAKs it otherwise, so a
// handler that wants to drop a malformed message logs it and returns nil.
type MessageHandler interface {
	Handle(ctx context.Context, msg jetstream.Msg) error
}

// MessageHandlerFunc is a function adapter for MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg jetstream.Msg) error

// Handle implements MessageHandler interface.
func (f MessageHandlerFunc) Handle(ctx context.Context, msg jetstream.Msg) error { return f(ctx, msg) }

// Drain takes every message currently available on cons without waiting.
//
// Messages are fetched in batches of batchSize until a fetch returns nothing.
// The returned messages are not acknowledged; the caller acknowledges them
// once it has processed the whole pass.
//
// Returns:
//   - []jetstream.Msg: Messages in stream order
//   - error: Fetch error; messages gathered before the error are still returned
func Drain(ctx context.Context, cons jetstream.Consumer, batchSize int) ([]jetstream.Msg, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var out []jetstream.Msg
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		batch, err := cons.FetchNoWait(batchSize)
		if err != nil {
			return out, err
		}

		n := 0
		for msg := range batch.Messages() {
			out = append(out, msg)
			n++
		}

		if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// AckAll acknowledges msgs and returns the first error encountered.
func AckAll(msgs []jetstream.Msg) error {
	var first error
	for _, msg := range msgs {
		if err := msg.Ack(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Listen blocks delivering messages from cons to h until ctx is cancelled.
//
// Cancellation interrupts a pending receive. Iterator failures are logged and
// the iterator is recreated after a jittered delay.
func Listen(ctx context.Context, cons jetstream.Consumer, h MessageHandler, log types.Logger) {
	if log == nil {
		log = logger.NewNop()
	}
	retry := backoff.New(100*time.Millisecond, 2.0, 5*time.Second, 0)

	for ctx.Err() == nil {
		iter, err := cons.Messages(jetstream.PullMaxMessages(1))
		if err != nil {
			log.Warn("failed to create message iterator", "error", err)
			if backoff.Sleep(ctx, retry.Next()) != nil {
				return
			}

			continue
		}

		stop := context.AfterFunc(ctx, iter.Stop)
		err = consume(ctx, iter, h, log, retry)
		stop()
		iter.Stop()

		if ctx.Err() != nil {
			return
		}

		log.Warn("message iterator stopped, recreating", "error", err)
		if backoff.Sleep(ctx, retry.Next()) != nil {
			return
		}
	}
}

func consume(ctx context.Context, iter jetstream.MessagesContext, h MessageHandler, log types.Logger, retry *backoff.Jitter) error {
	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return nil
			}

			return err
		}
		retry.Reset()

		if err := h.Handle(ctx, msg); err != nil {
			log.Warn("message handling failed, will be redelivered", "subject", msg.Subject(), "error", err)
			_ = msg.Nak()

			continue
		}
		if err := msg.Ack(); err != nil {
			log.Warn("failed to ack message", "subject", msg.Subject(), "error", err)
		}
	}
}
