package control

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompressPassthrough(t *testing.T) {
	r, err := Decompress(bytes.NewReader([]byte("Package: hello\n")), "Packages")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Package: hello\n", string(got))
}

func TestDecompressGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("Package: hello\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	r, err := Decompress(&buf, "Packages.gz")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Package: hello\n", string(got))
}
