package logger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/scanrelay/types"
)

func TestNopLogger(t *testing.T) {
	var log types.Logger = NewNop()

	require.NotPanics(t, func() {
		log.Debug("test message", "key", "value")
		log.Info("", nil)
		log.Warn("message")
		log.Error("message", "single")
		log.Fatal("message", "k1", "v1", "k2", "v2") // must not exit
	})
}

func TestTestLogger(t *testing.T) {
	t.Run("captures entries by level", func(t *testing.T) {
		log := NewTest(t)

		log.Info("document flushed", "pages", 3)
		log.Warn("interleaved document", "previous", "a", "current", "b")

		entries := log.Entries()
		require.Len(t, entries, 2)
		require.Equal(t, "INFO", entries[0].Level)
		require.Equal(t, "pages=3", entries[0].Fields)
		require.True(t, log.Contains("WARN", "interleaved"))
		require.False(t, log.Contains("ERROR", "interleaved"))
	})

	t.Run("marks dangling keys", func(t *testing.T) {
		require.Equal(t, "a=1 b=<missing>", formatKeyValues([]any{"a", 1, "b"}))
		require.Empty(t, formatKeyValues(nil))
	})
}

func BenchmarkNopLogger(b *testing.B) {
	log := NewNop()

	for b.Loop() {
		log.Debug("benchmark message", "key1", "value1", "key2", 42)
	}
}
