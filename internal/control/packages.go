package control

import (
	"fmt"
	"io"

	"pault.ag/go/debian/control"
	"pault.ag/go/debian/dependency"
	"pault.ag/go/debian/version"
)

// Package is one paragraph of a Packages index: a binary .deb entry,
// reduced to the fields the ingester needs to realize and record the file.
type Package struct {
	control.Paragraph

	Name         string          `control:"Package" required:"true"`
	Source       string
	Version      version.Version `required:"true"`
	Architecture dependency.Arch `required:"true"`

	Filename string `required:"true"`
	Size     int64  `required:"true"`
	SHA256   string `required:"true"`
}

// Packages is a lazy iterator over a Packages index paragraph stream.
type Packages struct {
	decoder *control.Decoder
}

// Next returns the next Package paragraph, or io.EOF at the end of the
// stream. A malformed paragraph yields the decoder's error as is; the
// ingest pipeline skips it rather than aborting the whole index.
func (p *Packages) Next() (*Package, error) {
	next := Package{}
	if err := p.decoder.Decode(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

// LoadPackages constructs a Packages iterator over an already decompressed
// reader.
func LoadPackages(in io.Reader) (*Packages, error) {
	decoder, err := control.NewDecoder(in, nil)
	if err != nil {
		return nil, fmt.Errorf("control: new decoder: %w", err)
	}
	return &Packages{decoder: decoder}, nil
}
