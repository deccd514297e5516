package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitter_Next(t *testing.T) {
	t.Run("starts at base and stays within bounds", func(t *testing.T) {
		j := New(100*time.Millisecond, 2.0, 2*time.Second, 42)

		require.Equal(t, 100*time.Millisecond, j.Next())
		for range 20 {
			d := j.Next()
			require.GreaterOrEqual(t, d, 100*time.Millisecond)
			require.LessOrEqual(t, d, 2*time.Second)
		}
	})

	t.Run("same seed yields same sequence", func(t *testing.T) {
		a := New(50*time.Millisecond, 1.8, time.Second, 7)
		b := New(50*time.Millisecond, 1.8, time.Second, 7)

		for range 10 {
			require.Equal(t, a.Next(), b.Next())
		}
	})

	t.Run("cap below base returns cap", func(t *testing.T) {
		j := New(time.Second, 2.0, 100*time.Millisecond, 1)
		require.Equal(t, 100*time.Millisecond, j.Next())
	})

	t.Run("reset restarts from base", func(t *testing.T) {
		j := New(10*time.Millisecond, 3.0, time.Second, 3)
		for range 5 {
			j.Next()
		}
		j.Reset()

		require.Equal(t, 10*time.Millisecond, j.Next())
	})

	t.Run("zero base falls back to default", func(t *testing.T) {
		j := New(0, 2.0, 0, 0)
		require.Equal(t, 50*time.Millisecond, j.Next())
	})
}

func TestSleep(t *testing.T) {
	t.Run("returns nil after the delay", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, Sleep(t.Context(), 20*time.Millisecond))
		require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("returns early on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		start := time.Now()
		err := Sleep(ctx, time.Minute)

		require.ErrorIs(t, err, context.Canceled)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("non-positive delay only checks context", func(t *testing.T) {
		require.NoError(t, Sleep(t.Context(), 0))
	})
}
