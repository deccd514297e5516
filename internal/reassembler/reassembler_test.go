package reassembler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/scanrelay/codec"
	"github.com/arloliu/scanrelay/internal/hooks"
	"github.com/arloliu/scanrelay/internal/ledger"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/internal/metrics"
	"github.com/arloliu/scanrelay/internal/transport"
	relaytest "github.com/arloliu/scanrelay/testing"
	"github.com/arloliu/scanrelay/types"
)

type countingMetrics struct {
	metrics.NopMetrics

	mu         sync.Mutex
	received   int
	violations map[string]int
	written    int
}

func (m *countingMetrics) RecordChunkReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received++
}

func (m *countingMetrics) RecordProtocolViolation(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.violations == nil {
		m.violations = make(map[string]int)
	}
	m.violations[kind]++
}

func (m *countingMetrics) RecordDocumentReassembled(_ int, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.written++
	}
}

type memLedger struct {
	records []ledger.DocumentRecord
}

func (l *memLedger) RecordDocument(_ context.Context, rec ledger.DocumentRecord) error {
	l.records = append(l.records, rec)
	return nil
}

func encodeChunks(t *testing.T, chunks []types.Chunk) [][]byte {
	t.Helper()

	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		b, err := json.Marshal(c)
		require.NoError(t, err)
		out[i] = b
	}

	return out
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}

	return data
}

func newTestReassembler(t *testing.T, opts ...Option) (*Reassembler, string) {
	t.Helper()

	out := t.TempDir()
	opts = append([]Option{WithLogger(logger.NewTest(t))}, opts...)

	return New(nil, Config{OutputDir: out}, opts...), out
}

func TestReassembler_Accept(t *testing.T) {
	t.Run("writes the document when the terminal chunk arrives", func(t *testing.T) {
		m := &countingMetrics{}
		r, out := newTestReassembler(t, WithMetrics(m))
		data := payload(2500)
		bodies := encodeChunks(t, codec.Encode(data, 1024))

		for _, b := range bodies[:2] {
			_, ok := r.Accept(t.Context(), "doc-1", b)
			require.False(t, ok)
		}
		require.Equal(t, 2, r.Pending())

		path, ok := r.Accept(t.Context(), "doc-1", bodies[2])
		require.True(t, ok)
		require.Equal(t, filepath.Join(out, "result_1.pdf"), path)
		require.Zero(t, r.Pending())

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, data, got)
		require.Equal(t, 3, m.received)
		require.Equal(t, 1, m.written)
		require.Empty(t, m.violations)
	})

	t.Run("numbers outputs after the directory size", func(t *testing.T) {
		r, out := newTestReassembler(t)
		require.NoError(t, os.WriteFile(filepath.Join(out, "unrelated.txt"), nil, 0o644))

		first, ok := r.Accept(t.Context(), "a", encodeChunks(t, codec.Encode([]byte("one"), 1024))[0])
		require.True(t, ok)
		second, ok := r.Accept(t.Context(), "b", encodeChunks(t, codec.Encode([]byte("two"), 1024))[0])
		require.True(t, ok)

		require.Equal(t, "result_2.pdf", filepath.Base(first))
		require.Equal(t, "result_3.pdf", filepath.Base(second))
	})

	t.Run("overwrites an existing file with the computed name", func(t *testing.T) {
		r, out := newTestReassembler(t)
		// one entry in the directory, so the next output is result_2.pdf
		existing := filepath.Join(out, "result_2.pdf")
		require.NoError(t, os.WriteFile(existing, []byte("stale content that is long"), 0o644))

		path, ok := r.Accept(t.Context(), "a", encodeChunks(t, codec.Encode([]byte("new"), 1024))[0])
		require.True(t, ok)
		require.Equal(t, existing, path)

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "new", string(got))
	})

	t.Run("skips unparseable messages", func(t *testing.T) {
		m := &countingMetrics{}
		log := logger.NewTest(t)
		r, _ := newTestReassembler(t, WithMetrics(m), WithLogger(log))

		_, ok := r.Accept(t.Context(), "doc", []byte("not json"))
		require.False(t, ok)
		_, ok = r.Accept(t.Context(), "doc", []byte(`{"position":0,"terminalPosition":0,"payload":"AA==","payloadLength":9}`))
		require.False(t, ok)

		require.Zero(t, r.Pending())
		require.Equal(t, 2, m.violations[ViolationUnparseable])
		require.True(t, log.Contains("WARN", "unparseable"))
	})

	t.Run("does not charge a stray chunk to the next document", func(t *testing.T) {
		m := &countingMetrics{}
		led := &memLedger{}
		r, _ := newTestReassembler(t, WithMetrics(m), WithLedger(led))

		r.Accept(t.Context(), "stray", []byte("not json"))
		for _, b := range encodeChunks(t, codec.Encode([]byte("clean"), 2)) {
			r.Accept(t.Context(), "doc-clean", b)
		}

		require.Equal(t, 1, m.violations[ViolationUnparseable])
		require.Len(t, led.records, 1)
		require.Zero(t, led.records[0].Violations)
	})

	t.Run("charges a bad chunk inside an open buffer to that document", func(t *testing.T) {
		led := &memLedger{}
		r, _ := newTestReassembler(t, WithLedger(led))
		bodies := encodeChunks(t, codec.Encode([]byte("dirty"), 2))

		r.Accept(t.Context(), "doc-dirty", bodies[0])
		r.Accept(t.Context(), "doc-dirty", []byte("not json"))
		for _, b := range bodies[1:] {
			r.Accept(t.Context(), "doc-dirty", b)
		}

		require.Len(t, led.records, 1)
		require.Equal(t, 1, led.records[0].Violations)
	})

	t.Run("writes out-of-order chunks as received and counts the violation", func(t *testing.T) {
		m := &countingMetrics{}
		r, _ := newTestReassembler(t, WithMetrics(m))
		chunks := codec.Encode([]byte("abcdef"), 2)
		bodies := encodeChunks(t, chunks)

		r.Accept(t.Context(), "doc", bodies[1])
		r.Accept(t.Context(), "doc", bodies[0])
		path, ok := r.Accept(t.Context(), "doc", bodies[2])
		require.True(t, ok)

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "cdabef", string(got))
		require.Equal(t, 1, m.violations[ViolationOrder])
	})

	t.Run("flags chunks of another document inside the buffer", func(t *testing.T) {
		m := &countingMetrics{}
		led := &memLedger{}
		r, _ := newTestReassembler(t, WithMetrics(m), WithLedger(led))
		a := encodeChunks(t, codec.Encode([]byte("aaaa"), 2))
		b := encodeChunks(t, codec.Encode([]byte("bb"), 2))

		r.Accept(t.Context(), "doc-a", a[0])
		path, ok := r.Accept(t.Context(), "doc-b", b[0])
		require.True(t, ok)

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "aabb", string(got))
		require.Equal(t, 1, m.violations[ViolationInterleaved])
		require.Len(t, led.records, 1)
		require.Equal(t, "doc-a", led.records[0].DocumentID)
		require.Positive(t, led.records[0].Violations)
	})

	t.Run("an empty document is written as an empty file", func(t *testing.T) {
		r, _ := newTestReassembler(t)

		path, ok := r.Accept(t.Context(), "empty", encodeChunks(t, codec.Encode(nil, 1024))[0])
		require.True(t, ok)

		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Zero(t, info.Size())
	})

	t.Run("records the ledger entry and fires the hook", func(t *testing.T) {
		led := &memLedger{}
		done := make(chan types.DocumentInfo, 1)
		d := hooks.NewDispatcher(&types.Hooks{
			OnDocumentReassembled: func(_ context.Context, doc types.DocumentInfo) error {
				done <- doc
				return nil
			},
		}, nil)
		r, _ := newTestReassembler(t, WithLedger(led), WithHooks(d))
		now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		r.now = func() time.Time { return now }

		data := payload(1500)
		var path string
		for _, b := range encodeChunks(t, codec.Encode(data, 1024)) {
			path, _ = r.Accept(t.Context(), "doc-9", b)
		}
		d.Wait()

		require.Equal(t, []ledger.DocumentRecord{{
			DocumentID: "doc-9",
			Path:       path,
			Size:       1500,
			Chunks:     2,
			Digest:     codec.Digest(data),
			WrittenAt:  now,
		}}, led.records)

		info := <-done
		require.Equal(t, path, info.Path)
		require.Equal(t, codec.Digest(data), info.Digest)
	})

	t.Run("reports write failures without keeping the buffer", func(t *testing.T) {
		m := &countingMetrics{}
		r := New(nil, Config{OutputDir: filepath.Join(t.TempDir(), "missing")}, WithMetrics(m), WithLogger(logger.NewTest(t)))

		_, ok := r.Accept(t.Context(), "doc", encodeChunks(t, codec.Encode([]byte("x"), 1024))[0])
		require.False(t, ok)
		require.Zero(t, r.Pending())
		require.Zero(t, m.written)
	})
}

func TestReassembler_Discard(t *testing.T) {
	r, out := newTestReassembler(t)
	bodies := encodeChunks(t, codec.Encode(payload(3000), 1024))

	r.Accept(t.Context(), "doc", bodies[0])
	r.Accept(t.Context(), "doc", bodies[1])
	require.Equal(t, 2, r.Discard())
	require.Zero(t, r.Pending())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReassembler_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	_, nc := relaytest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	stream, err := transport.EnsureStream(t.Context(), js, transport.ChunkQueue, 3)
	require.NoError(t, err)
	cons, err := transport.EnsureConsumer(t.Context(), stream, "reassembler-test", 0)
	require.NoError(t, err)

	out := t.TempDir()
	r := New(cons, Config{OutputDir: out, PollInterval: 20 * time.Millisecond}, WithLogger(logger.NewTest(t)))

	pub := transport.NewChunkPublisher(js, transport.ChunkPublisherConfig{Subject: transport.ChunkQueue.Subject}, nil, nil)
	first, second := payload(5000), payload(700)
	_, err = pub.PublishDocument(t.Context(), "doc-1", codec.Encode(first, 1024))
	require.NoError(t, err)
	_, err = pub.PublishDocument(t.Context(), "doc-2", codec.Encode(second, 1024))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(out)
		return err == nil && len(entries) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// a partial document left on the queue is discarded on shutdown
	partial := codec.Encode(payload(3000), 1024)
	_, err = pub.PublishDocument(t.Context(), "doc-3", partial[:2])
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return relaytest.StreamMessageCount(t, nc, transport.ChunkQueue.Stream) == 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reassembler did not stop after cancellation")
	}

	got1, err := os.ReadFile(filepath.Join(out, "result_1.pdf"))
	require.NoError(t, err)
	require.Equal(t, first, got1)
	got2, err := os.ReadFile(filepath.Join(out, "result_2.pdf"))
	require.NoError(t, err)
	require.Equal(t, second, got2)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
