package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fepitre/debian-snapshot/internal/ingesterr"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "locks", "debian.lock")

	a, err := Acquire(p)
	require.NoError(t, err)
	require.NoError(t, a.Release())

	a, err = Acquire(p)
	require.NoError(t, err)
	require.NoError(t, a.Release())
}

func TestAcquireHeldByAnotherHolder(t *testing.T) {
	p := filepath.Join(t.TempDir(), "locks", "debian.lock")

	a, err := Acquire(p)
	require.NoError(t, err)
	defer a.Release()

	_, err = Acquire(p)
	require.Error(t, err)
	require.True(t, ingesterr.Is(err, ingesterr.LockHeld))
}
