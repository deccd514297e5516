package control

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/scanrelay/internal/hooks"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/transport"
	relaytest "github.com/arloliu/scanrelay/testing"
	"github.com/arloliu/scanrelay/types"
)

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    time.Duration
		wantErr bool
	}{
		{name: "plain milliseconds", body: "3000", want: 3 * time.Second},
		{name: "surrounding whitespace", body: " 250\n", want: 250 * time.Millisecond},
		{name: "zero", body: "0", wantErr: true},
		{name: "negative", body: "-5", wantErr: true},
		{name: "not a number", body: "fast", wantErr: true},
		{name: "fractional", body: "1.5", wantErr: true},
		{name: "empty", body: "", wantErr: true},
		{name: "overflow", body: "9223372036854775807", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeout([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, types.ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTimeout(t *testing.T) {
	require.Equal(t, "3000", string(FormatTimeout(3*time.Second)))
}

func TestListener_Apply(t *testing.T) {
	t.Run("applies valid updates and fires the hook", func(t *testing.T) {
		cell := NewTimeoutCell(5 * time.Second)
		changed := make(chan [2]time.Duration, 1)
		d := hooks.NewDispatcher(&types.Hooks{
			OnTimeoutChanged: func(_ context.Context, from, to time.Duration) error {
				changed <- [2]time.Duration{from, to}
				return nil
			},
		}, nil)
		l := NewListener(nil, cell, logger.NewTest(t), nil, d)

		require.True(t, l.Apply(t.Context(), []byte("3000")))
		d.Wait()

		require.Equal(t, 3*time.Second, cell.Load())
		require.Equal(t, [2]time.Duration{5 * time.Second, 3 * time.Second}, <-changed)
	})

	t.Run("drops invalid updates", func(t *testing.T) {
		cell := NewTimeoutCell(5 * time.Second)
		log := logger.NewTest(t)
		l := NewListener(nil, cell, log, nil, nil)

		require.False(t, l.Apply(t.Context(), []byte("-1")))
		require.False(t, l.Apply(t.Context(), []byte("abc")))

		require.Equal(t, 5*time.Second, cell.Load())
		require.True(t, log.Contains("WARN", "dropping invalid timeout update"))
	})
}

func TestListener_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	_, nc := relaytest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	stream, err := transport.EnsureStream(t.Context(), js, transport.ControlQueue, 3)
	require.NoError(t, err)
	cons, err := transport.EnsureConsumer(t.Context(), stream, "control-test", 0)
	require.NoError(t, err)

	cell := NewTimeoutCell(5 * time.Second)
	l := NewListener(cons, cell, logger.NewTest(t), nil, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	require.NoError(t, transport.Publish(t.Context(), js, transport.ControlQueue.Subject, []byte("oops")))
	require.NoError(t, transport.Publish(t.Context(), js, transport.ControlQueue.Subject, FormatTimeout(3*time.Second)))

	require.Eventually(t, func() bool {
		return cell.Load() == 3*time.Second
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop after cancellation")
	}

	require.Eventually(t, func() bool {
		return relaytest.StreamMessageCount(t, nc, transport.ControlQueue.Stream) == 0
	}, 2*time.Second, 20*time.Millisecond, "invalid updates are acknowledged, not redelivered")
}
