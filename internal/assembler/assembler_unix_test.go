//go:build unix

package assembler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAssembler_LockedImageIsDeferred(t *testing.T) {
	h := newHarness(t)
	h.drop(t, "img_000.jpg")

	path := filepath.Join(h.input, "img_000.jpg")
	holder, err := os.Open(path)
	require.NoError(t, err)
	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_EX|unix.LOCK_NB))

	require.NoError(t, h.a.Scan(t.Context()))

	require.Nil(t, h.a.Session())
	require.Equal(t, []string{"img_000.jpg"}, listDir(t, h.input))
	require.True(t, h.log.Contains("WARN", "image locked"))

	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_UN))
	require.NoError(t, holder.Close())

	require.NoError(t, h.a.Scan(t.Context()))
	require.NotNil(t, h.a.Session())
	require.Empty(t, listDir(t, h.input))
}
