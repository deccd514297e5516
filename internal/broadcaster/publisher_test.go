package broadcaster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/scanrelay/internal/control"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/transport"
	relaytest "github.com/arloliu/scanrelay/testing"
	"github.com/arloliu/scanrelay/types"
)

type fixture struct {
	js      jetstream.JetStream
	cons    jetstream.Consumer
	status  *control.StatusCell
	timeout *control.TimeoutCell
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	_, nc := relaytest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	stream, err := transport.EnsureStream(t.Context(), js, transport.TelemetryQueue, 3)
	require.NoError(t, err)
	cons, err := transport.EnsureConsumer(t.Context(), stream, "recorder", 0)
	require.NoError(t, err)

	return fixture{
		js:      js,
		cons:    cons,
		status:  &control.StatusCell{},
		timeout: control.NewTimeoutCell(5 * time.Second),
	}
}

func (f fixture) drain(t *testing.T) []types.Snapshot {
	t.Helper()

	msgs, err := transport.Drain(t.Context(), f.cons, 10)
	require.NoError(t, err)
	require.NoError(t, transport.AckAll(msgs))

	out := make([]types.Snapshot, 0, len(msgs))
	for _, msg := range msgs {
		var s types.Snapshot
		require.NoError(t, json.Unmarshal(msg.Data(), &s))
		out = append(out, s)
	}

	return out
}

func TestBroadcaster_Start(t *testing.T) {
	t.Run("publishes a snapshot immediately", func(t *testing.T) {
		f := newFixture(t)
		b := New(f.js, transport.TelemetryQueue.Subject, time.Hour, f.status, f.timeout, logger.NewTest(t), nil)
		b.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local) }

		require.NoError(t, b.Start(t.Context()))
		defer func() { _ = b.Stop() }()

		snaps := f.drain(t)
		require.Len(t, snaps, 1)
		require.Equal(t, types.Snapshot{
			Timestamp:     "2024-05-01 10:00:00",
			Status:        "Waiting",
			TimeoutMillis: 5000,
		}, snaps[0])
	})

	t.Run("publishes periodically with current status", func(t *testing.T) {
		f := newFixture(t)
		b := New(f.js, transport.TelemetryQueue.Subject, 50*time.Millisecond, f.status, f.timeout, nil, nil)

		require.NoError(t, b.Start(t.Context()))
		f.status.Store(types.StatusProcessing)

		var snaps []types.Snapshot
		require.Eventually(t, func() bool {
			snaps = append(snaps, f.drain(t)...)
			return len(snaps) >= 3
		}, 5*time.Second, 50*time.Millisecond)
		require.NoError(t, b.Stop())

		require.Equal(t, "Processing", snaps[len(snaps)-1].Status)
	})

	t.Run("publishes out of band on timeout change", func(t *testing.T) {
		f := newFixture(t)
		b := New(f.js, transport.TelemetryQueue.Subject, time.Hour, f.status, f.timeout, nil, nil)

		require.NoError(t, b.Start(t.Context()))
		defer func() { _ = b.Stop() }()
		require.Len(t, f.drain(t), 1)

		f.timeout.Store(3 * time.Second)

		var snaps []types.Snapshot
		require.Eventually(t, func() bool {
			snaps = append(snaps, f.drain(t)...)
			return len(snaps) == 1
		}, 5*time.Second, 20*time.Millisecond)
		require.Equal(t, int64(3000), snaps[0].TimeoutMillis)
	})

	t.Run("rejects double start and double stop", func(t *testing.T) {
		f := newFixture(t)
		b := New(f.js, transport.TelemetryQueue.Subject, time.Hour, f.status, f.timeout, nil, nil)

		require.NoError(t, b.Start(t.Context()))
		require.ErrorIs(t, b.Start(t.Context()), types.ErrAlreadyStarted)
		require.NoError(t, b.Stop())
		require.ErrorIs(t, b.Stop(), types.ErrNotStarted)
	})
}

func TestNew_Defaults(t *testing.T) {
	b := New(nil, "s", 0, &control.StatusCell{}, control.NewTimeoutCell(time.Second), nil, nil)

	require.Equal(t, DefaultInterval, b.interval)
	require.Equal(t, int64(1000), b.Snapshot().TimeoutMillis)
}
