package control

import (
	"fmt"
	"io"
	"os"

	"pault.ag/go/debian/control"
	"pault.ag/go/debian/dependency"
)

// Release is the parsed view of a dists/{suite}/{Release,InRelease} file.
//
// Signature verification of InRelease's OpenPGP clearsign wrapper is
// explicitly out of scope (spec Non-goals): LoadRelease decodes with no
// keyring, so the control decoder unwraps a clearsigned InRelease body
// without checking its signature, and a plain "Release" body is parsed
// as is. The pipeline hands InRelease bodies over as fetched.
type Release struct {
	control.Paragraph

	Origin     string
	Label      string
	Suite      string
	Codename   string
	Version    string
	Components []string          `delim:" "`
	Arches     []dependency.Arch `control:"Architectures"`
	Date       string
	ValidUntil string `control:"Valid-Until"`

	MD5Sum []control.MD5FileHash    `delim:"\n" strip:" \t\n\r" multiline:"true"`
	SHA1   []control.SHA1FileHash   `delim:"\n" strip:" \t\n\r" multiline:"true"`
	SHA256 []control.SHA256FileHash `delim:"\n" strip:" \t\n\r" multiline:"true"`

	AcquireByHash bool `control:"Acquire-By-Hash"`
}

// IndexedFile is one entry of a Release file's SHA256 block: the sha256,
// size and path of a referenced index, relative to the Release file's
// directory (dists/{suite}/).
type IndexedFile struct {
	SHA256 string
	Size   int64
	Path   string
}

// Indices returns every (sha256, size, path) triple the Release file
// certifies, keyed by the path relative to the Release file's directory.
func (r *Release) Indices() map[string]IndexedFile {
	ret := map[string]IndexedFile{}
	for _, el := range r.SHA256 {
		ret[el.Filename] = IndexedFile{
			SHA256: fmt.Sprintf("%x", el.Hash),
			Size:   el.Size,
			Path:   el.Filename,
		}
	}
	return ret
}

// LoadRelease parses a Release or InRelease body. Parsing failure of
// the top-level Release is fatal for the (archive, timestamp) being
// ingested: without it there is no certified index checksum to verify
// Packages/Sources against.
func LoadRelease(in io.Reader) (*Release, error) {
	ret := Release{}
	decoder, err := control.NewDecoder(in, nil)
	if err != nil {
		return nil, fmt.Errorf("control: new decoder: %w", err)
	}
	if err := decoder.Decode(&ret); err != nil {
		return nil, fmt.Errorf("control: decode Release: %w", err)
	}
	return &ret, nil
}

// LoadReleaseFile is LoadRelease over a file path.
func LoadReleaseFile(path string) (*Release, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return LoadRelease(fd)
}
