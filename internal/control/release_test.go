package control

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pault.ag/go/debian/control"
)

func TestReleaseIndices(t *testing.T) {
	hash, err := hex.DecodeString("aaaa")
	require.NoError(t, err)

	r := Release{
		Suite: "bullseye",
		SHA256: []control.SHA256FileHash{
			{FileHash: control.FileHash{
				Filename:  "main/binary-all/Packages.xz",
				Size:      12345,
				Algorithm: "sha256",
				Hash:      hash,
			}},
		},
	}

	idx := r.Indices()
	require.Contains(t, idx, "main/binary-all/Packages.xz")
	entry := idx["main/binary-all/Packages.xz"]
	assert.Equal(t, int64(12345), entry.Size)
	assert.Equal(t, "aaaa", entry.SHA256)
}
