package control

import (
	"fmt"
	"io"

	"pault.ag/go/debian/control"
	"pault.ag/go/debian/version"
)

// SourceFile is one file referenced by a Sources paragraph's
// Checksums-Sha256 block: the .dsc, the orig tarball, the debian diff/tar.
type SourceFile struct {
	SHA256 string
	Size   int64
	Name   string
}

// Source is one paragraph of a Sources index, reduced to the fields the
// ingester needs.
type Source struct {
	control.Paragraph

	Name      string `control:"Package"`
	Directory string `required:"true"`
	Version   version.Version

	ChecksumsSha256 []control.SHA256FileHash `control:"Checksums-Sha256" delim:"\n" strip:"\n\r\t "`
}

// Files returns the paragraph's Checksums-Sha256 block as SourceFile
// records: the per-file (sha256, size, filename) triples the ingest
// pipeline needs to fetch and record each file belonging to this source
// package.
func (s *Source) Files() []SourceFile {
	ret := make([]SourceFile, 0, len(s.ChecksumsSha256))
	for _, fh := range s.ChecksumsSha256 {
		ret = append(ret, SourceFile{
			SHA256: fmt.Sprintf("%x", fh.Hash),
			Size:   fh.Size,
			Name:   fh.Filename,
		})
	}
	return ret
}

// Sources is a lazy iterator over a Sources index paragraph stream.
type Sources struct {
	decoder *control.Decoder
}

// Next returns the next Source paragraph, or io.EOF at the end of stream.
func (s *Sources) Next() (*Source, error) {
	next := Source{}
	if err := s.decoder.Decode(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

// LoadSources constructs a Sources iterator over an already decompressed
// reader.
func LoadSources(in io.Reader) (*Sources, error) {
	decoder, err := control.NewDecoder(in, nil)
	if err != nil {
		return nil, fmt.Errorf("control: new decoder: %w", err)
	}
	return &Sources{decoder: decoder}, nil
}
