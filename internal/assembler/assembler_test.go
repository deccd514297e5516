package assembler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/scanrelay/codec"
	"github.com/arloliu/scanrelay/internal/control"
	"github.com/arloliu/scanrelay/internal/fsutil"
	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/types"
)

// fakeRenderer renders a document as its page list, one path per line.
type fakeRenderer struct {
	failRender error
}

func (r *fakeRenderer) NewDocument() types.Document {
	return &fakeDoc{pages: []string{""}, failRender: r.failRender}
}

type fakeDoc struct {
	pages      []string
	failRender error
}

func (d *fakeDoc) AddPage(imagePath string) error {
	d.pages[len(d.pages)-1] = imagePath
	d.pages = append(d.pages, "")

	return nil
}

func (d *fakeDoc) PageCount() int { return len(d.pages) }

func (d *fakeDoc) RemovePage(index int) error {
	if index < 0 || index >= len(d.pages) {
		return errors.New("out of range")
	}
	d.pages = append(d.pages[:index], d.pages[index+1:]...)

	return nil
}

func (d *fakeDoc) Render(w io.Writer) error {
	if d.failRender != nil {
		return d.failRender
	}
	_, err := io.WriteString(w, strings.Join(d.pages, "\n"))

	return err
}

type sentDoc struct {
	id    string
	pages []string
}

type fakePublisher struct {
	docs []sentDoc
	err  error
}

func (p *fakePublisher) PublishDocument(_ context.Context, docID string, chunks []types.Chunk) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	data, err := codec.Decode(chunks)
	if err != nil {
		return 0, err
	}
	p.docs = append(p.docs, sentDoc{id: docID, pages: strings.Split(string(data), "\n")})

	return len(chunks), nil
}

type harness struct {
	a       *Assembler
	input   string
	staging string
	pub     *fakePublisher
	timeout *control.TimeoutCell
	log     *logger.TestLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		input:   t.TempDir(),
		staging: t.TempDir(),
		pub:     &fakePublisher{},
		timeout: control.NewTimeoutCell(5 * time.Second),
		log:     logger.NewTest(t),
	}

	h.a = New(Config{
		InputDir:   h.input,
		StagingDir: h.staging,
		ChunkSize:  16,
		Lock:       fsutil.RetryPolicy{Attempts: 2, Delay: 10 * time.Millisecond},
	}, &fakeRenderer{}, h.pub, h.timeout, make(chan struct{}), WithLogger(h.log))

	n := 0
	h.a.newID = func() string {
		n++
		return fmt.Sprintf("doc-%d", n)
	}

	return h
}

func (h *harness) drop(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(h.input, name), []byte(name), 0o600))
	}
}

func (h *harness) staged(names ...string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(h.staging, name)
	}

	return out
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func TestParseImageName(t *testing.T) {
	tests := []struct {
		name  string
		index int
		ok    bool
	}{
		{name: "img_000.jpg", index: 0, ok: true},
		{name: "img_042.png", index: 42, ok: true},
		{name: "img_999.jpeg", index: 999, ok: true},
		{name: "img_01.jpg", ok: false},
		{name: "img_0001.jpg", ok: false},
		{name: "img_001.gif", ok: false},
		{name: "img_001.JPG", ok: false},
		{name: "img_001xjpg", ok: false},
		{name: "junk.txt", ok: false},
		{name: "prefix_img_001.jpg", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, ok := ParseImageName(tt.name)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.index, index)
			}
		})
	}
}

func TestAssembler_Scan(t *testing.T) {
	t.Run("contiguous images form a single session in index order", func(t *testing.T) {
		h := newHarness(t)
		h.drop(t, "img_002.jpg", "img_000.jpg", "img_001.png")

		require.NoError(t, h.a.Scan(t.Context()))

		s := h.a.Session()
		require.NotNil(t, s)
		require.Equal(t, h.staged("img_000.jpg", "img_001.png", "img_002.jpg"), s.Images)
		require.Equal(t, 3, s.Expecting)
		require.Empty(t, listDir(t, h.input))
		require.Empty(t, h.pub.docs)

		require.NoError(t, h.a.Flush(t.Context(), FlushTimeout))
		require.Len(t, h.pub.docs, 1)
		require.Equal(t, h.staged("img_000.jpg", "img_001.png", "img_002.jpg"), h.pub.docs[0].pages,
			"trailing blank page is stripped")
	})

	t.Run("an image still being written waits for the next scan", func(t *testing.T) {
		h := newHarness(t)
		h.a.cfg.SettleWindow = 200 * time.Millisecond
		h.drop(t, "img_000.jpg", "img_001.jpg", "img_002.jpg")
		past := time.Now().Add(-time.Minute)
		for _, name := range []string{"img_000.jpg", "img_002.jpg"} {
			require.NoError(t, os.Chtimes(filepath.Join(h.input, name), past, past))
		}

		writing := filepath.Join(h.input, "img_001.jpg")
		f, err := os.OpenFile(writing, os.O_WRONLY|os.O_APPEND, 0)
		require.NoError(t, err)
		go func() {
			time.Sleep(20 * time.Millisecond)
			_, _ = f.WriteString("-tail")
			_ = f.Close()
		}()

		require.NoError(t, h.a.Scan(t.Context()))

		require.Equal(t, h.staged("img_000.jpg"), h.a.Session().Images)
		require.ElementsMatch(t, []string{"img_001.jpg", "img_002.jpg"}, listDir(t, h.input),
			"later images are not staged ahead of the unfinished one")
		require.Empty(t, h.pub.docs)
		require.True(t, h.log.Contains("DEBUG", "still being written"))

		require.NoError(t, os.Chtimes(writing, past, past))
		require.NoError(t, h.a.Scan(t.Context()))

		require.Equal(t, h.staged("img_000.jpg", "img_001.jpg", "img_002.jpg"), h.a.Session().Images)
		require.Empty(t, h.pub.docs)
	})

	t.Run("a gap flushes before the next session starts", func(t *testing.T) {
		h := newHarness(t)
		h.drop(t, "img_000.jpg", "img_001.jpg", "img_003.jpg")

		require.NoError(t, h.a.Scan(t.Context()))

		require.Len(t, h.pub.docs, 1)
		require.Equal(t, "doc-1", h.pub.docs[0].id)
		require.Equal(t, h.staged("img_000.jpg", "img_001.jpg"), h.pub.docs[0].pages)

		s := h.a.Session()
		require.NotNil(t, s)
		require.Equal(t, "doc-2", s.ID)
		require.Equal(t, h.staged("img_003.jpg"), s.Images)
		require.Equal(t, 4, s.Expecting)
	})

	t.Run("garbage is deleted and the first image starts a session", func(t *testing.T) {
		h := newHarness(t)
		h.drop(t, "junk.txt", "img_005.jpg")

		require.NoError(t, h.a.Scan(t.Context()))

		require.Empty(t, listDir(t, h.input))
		require.NotNil(t, h.a.Session())
		require.Equal(t, h.staged("img_005.jpg"), h.a.Session().Images)
		require.Equal(t, 6, h.a.Session().Expecting)
	})

	t.Run("an image continuing across scans joins the open session", func(t *testing.T) {
		h := newHarness(t)
		h.drop(t, "img_010.jpg")
		require.NoError(t, h.a.Scan(t.Context()))

		h.drop(t, "img_011.jpg")
		require.NoError(t, h.a.Scan(t.Context()))

		require.Empty(t, h.pub.docs)
		require.Equal(t, h.staged("img_010.jpg", "img_011.jpg"), h.a.Session().Images)
	})

	t.Run("an already staged name drops the incoming file and reuses the staged one", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, os.WriteFile(filepath.Join(h.staging, "img_000.jpg"), []byte("first"), 0o600))
		h.drop(t, "img_000.jpg")

		require.NoError(t, h.a.Scan(t.Context()))

		require.Empty(t, listDir(t, h.input))
		data, err := os.ReadFile(filepath.Join(h.staging, "img_000.jpg"))
		require.NoError(t, err)
		require.Equal(t, "first", string(data))
		require.Equal(t, h.staged("img_000.jpg"), h.a.Session().Images)
		require.True(t, h.log.Contains("WARN", "already staged"))
	})

	t.Run("directories are ignored", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, os.Mkdir(filepath.Join(h.input, "img_000.jpg"), 0o700))

		require.NoError(t, h.a.Scan(t.Context()))

		require.Nil(t, h.a.Session())
		require.Equal(t, []string{"img_000.jpg"}, listDir(t, h.input))
	})

	t.Run("an empty scan with no session is a no-op", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.a.Scan(t.Context()))

		require.Nil(t, h.a.Session())
		require.Empty(t, h.pub.docs)
	})

	t.Run("missing input directory is reported", func(t *testing.T) {
		h := newHarness(t)
		h.a.cfg.InputDir = filepath.Join(h.input, "missing")

		require.Error(t, h.a.Scan(t.Context()))
	})
}

func TestAssembler_Sessions(t *testing.T) {
	t.Run("rejects overlapping sessions", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.a.StartSession())
		require.ErrorIs(t, h.a.StartSession(), types.ErrSessionOpen)
	})

	t.Run("flush without a session fails", func(t *testing.T) {
		h := newHarness(t)

		require.ErrorIs(t, h.a.Flush(t.Context(), FlushTimeout), types.ErrNoSession)
	})

	t.Run("publish failure closes the session", func(t *testing.T) {
		h := newHarness(t)
		h.pub.err = fmt.Errorf("%w: broker down", types.ErrPublishFailed)
		h.drop(t, "img_000.jpg")
		require.NoError(t, h.a.Scan(t.Context()))

		err := h.a.Flush(t.Context(), FlushTimeout)

		require.ErrorIs(t, err, types.ErrPublishFailed)
		require.Nil(t, h.a.Session())
		require.True(t, h.log.Contains("ERROR", "document flush failed"))
	})

	t.Run("render failure closes the session", func(t *testing.T) {
		h := newHarness(t)
		h.a.renderer = &fakeRenderer{failRender: errors.New("corrupt image")}
		h.drop(t, "img_000.jpg")
		require.NoError(t, h.a.Scan(t.Context()))

		err := h.a.Flush(t.Context(), FlushTimeout)

		require.ErrorIs(t, err, types.ErrRenderFailed)
		require.Nil(t, h.a.Session())
		require.Empty(t, h.pub.docs)
	})
}

// scriptedWait replays wake reasons and records the timeout each wait used.
type scriptedWait struct {
	reasons []WakeReason
	seen    []time.Duration
	before  func(call int)
}

func (s *scriptedWait) wait(_ context.Context, d time.Duration) WakeReason {
	call := len(s.seen)
	s.seen = append(s.seen, d)
	if s.before != nil {
		s.before(call)
	}
	if call >= len(s.reasons) {
		return WakeShutdown
	}

	return s.reasons[call]
}

func TestAssembler_Run(t *testing.T) {
	t.Run("flushes exactly once after inactivity", func(t *testing.T) {
		h := newHarness(t)
		h.drop(t, "img_000.jpg", "img_001.png")
		w := &scriptedWait{reasons: []WakeReason{WakeTimeout, WakeTimeout, WakeTimeout, WakeShutdown}}
		h.a.wait = w.wait

		h.a.Run(t.Context())

		require.Len(t, h.pub.docs, 1)
		require.Equal(t, h.staged("img_000.jpg", "img_001.png"), h.pub.docs[0].pages)
		require.Empty(t, listDir(t, h.staging), "staging is emptied on shutdown")
	})

	t.Run("timeout update applies to the next wait only", func(t *testing.T) {
		h := newHarness(t)
		w := &scriptedWait{reasons: []WakeReason{WakeSignal, WakeSignal, WakeShutdown}}
		w.before = func(call int) {
			if call == 0 {
				h.timeout.Store(3000 * time.Millisecond)
			}
		}
		h.a.wait = w.wait

		h.a.Run(t.Context())

		require.Equal(t, []time.Duration{5 * time.Second, 3 * time.Second, 3 * time.Second}, w.seen)
	})

	t.Run("shutdown flushes the open session", func(t *testing.T) {
		h := newHarness(t)
		h.drop(t, "img_000.jpg")
		w := &scriptedWait{reasons: []WakeReason{WakeShutdown}}
		h.a.wait = w.wait

		ctx, cancel := context.WithCancel(t.Context())
		w.before = func(int) { cancel() }

		h.a.Run(ctx)

		require.Len(t, h.pub.docs, 1)
		require.Nil(t, h.a.Session())
		require.Empty(t, listDir(t, h.staging))
	})

	t.Run("signal wake rescans without flushing", func(t *testing.T) {
		h := newHarness(t)
		h.drop(t, "img_000.jpg")
		w := &scriptedWait{reasons: []WakeReason{WakeSignal, WakeShutdown}}
		w.before = func(call int) {
			if call == 0 {
				h.drop(t, "img_001.jpg")
			}
		}
		h.a.wait = w.wait

		h.a.Run(t.Context())

		require.Len(t, h.pub.docs, 1)
		require.Equal(t, h.staged("img_000.jpg", "img_001.jpg"), h.pub.docs[0].pages)
	})

	t.Run("reports status transitions", func(t *testing.T) {
		h := newHarness(t)
		status := &control.StatusCell{}
		h.a.status = status
		var during []types.Status
		w := &scriptedWait{reasons: []WakeReason{WakeShutdown}}
		w.before = func(int) { during = append(during, status.Load()) }
		h.a.wait = w.wait

		h.a.Run(t.Context())

		require.Equal(t, []types.Status{types.StatusWaiting}, during)
	})
}

func TestWait(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		require.Equal(t, WakeTimeout, Wait(t.Context(), 10*time.Millisecond, nil))
	})

	t.Run("signal", func(t *testing.T) {
		sig := make(chan struct{}, 1)
		sig <- struct{}{}

		require.Equal(t, WakeSignal, Wait(t.Context(), time.Minute, sig))
	})

	t.Run("shutdown", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		require.Equal(t, WakeShutdown, Wait(ctx, time.Minute, nil))
	})

	t.Run("shutdown wins over a ready signal", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		sig := make(chan struct{}, 1)
		sig <- struct{}{}

		require.Equal(t, WakeShutdown, Wait(ctx, time.Minute, sig))
	})

	t.Run("reason names", func(t *testing.T) {
		require.Equal(t, "timeout", WakeTimeout.String())
		require.Equal(t, "signal", WakeSignal.String())
		require.Equal(t, "shutdown", WakeShutdown.String())
		require.Equal(t, "unknown", WakeReason(9).String())
	})
}
