// Package control parses the RFC822-style paragraph format used by Debian
// repository index files (Release, Packages, Sources, .buildinfo).
package control

import (
	"compress/bzip2"
	"compress/gzip"
	"io"
	"strings"

	"xi2.org/x/xz"
)

// decompressorFunc wraps a raw byte stream in a transparent decompressing
// reader. Adapted from the teacher's compression/readers.go, folded into
// this package since every caller of Decompress immediately feeds the
// result to a paragraph Decoder.
type decompressorFunc func(io.Reader) (io.Reader, error)

var knownDecompressors = map[string]decompressorFunc{
	".gz": func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	},
	".bz2": func(r io.Reader) (io.Reader, error) {
		return bzip2.NewReader(r), nil
	},
	".xz": func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r, 0)
	},
}

// Decompress returns a reader over in that transparently decompresses based
// on fileName's suffix (.gz, .xz, .bz2). Files with an unrecognized suffix
// are passed through unchanged, matching a plain Release or InRelease file.
func Decompress(in io.Reader, fileName string) (io.Reader, error) {
	for suffix, decomp := range knownDecompressors {
		if strings.HasSuffix(fileName, suffix) {
			return decomp(in)
		}
	}
	return in, nil
}
