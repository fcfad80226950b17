package hashio

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceSuccess(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "by-hash", "aa", "aaaa")

	res, err := Place(dst, strings.NewReader("hello world"), PlaceOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), res.Size)

	_, err = os.Stat(dst)
	require.NoError(t, err)
	_, err = os.Stat(dst + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestPlaceHashMismatchCleansPart(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "f")

	_, err := Place(dst, strings.NewReader("hello world"), PlaceOptions{
		ExpectedSHA256: strings.Repeat("0", 64),
	})
	require.ErrorIs(t, err, ErrHashMismatch)

	_, err = os.Stat(dst + ".part")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestPlaceSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "f")

	_, err := Place(dst, strings.NewReader("hello world"), PlaceOptions{
		ExpectedSize: 3,
	})
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0o644))

	res, err := HashFile(p)
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Size)
	_, err = hex.DecodeString(res.SHA256)
	require.NoError(t, err)
}

func TestLinkIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	dst := filepath.Join(dir, "nested", "dst")

	require.NoError(t, Link(src, dst))
	require.NoError(t, Link(src, dst)) // idempotent
}
