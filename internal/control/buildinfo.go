package control

import (
	"fmt"
	"io"
	"strings"

	"pault.ag/go/debian/control"
	"pault.ag/go/debian/dependency"
)

// BuildDep is one parsed entry of a .buildinfo file's
// Installed-Build-Depends field.
type BuildDep struct {
	Name    string
	Version string
	// Arch is the architecture qualifier if one was present (":amd64"),
	// or the buildinfo's own host Architecture when absent (an
	// unqualified dependency means "built for the host architecture";
	// ":all" means the architecture-independent package), resolved by
	// BuildDeps.
	Arch string
}

// Buildinfo is the parsed view of a .buildinfo file, reduced to the fields
// the solver needs.
type Buildinfo struct {
	control.Paragraph

	Source       string
	Architecture string `control:"Architecture"`

	InstalledBuildDepends string `control:"Installed-Build-Depends"`
}

// BuildDeps parses the Installed-Build-Depends field into typed entries.
// Each entry has the form "name (= version)" with an optional ":arch"
// qualifier on the name, following the same possibility grammar the
// teacher's Source.BuildDepends uses dependency.Parse for.
func (b *Buildinfo) BuildDeps() ([]BuildDep, error) {
	dep, err := dependency.Parse(b.InstalledBuildDepends)
	if err != nil {
		return nil, fmt.Errorf("control: parse Installed-Build-Depends: %w", err)
	}
	ret := make([]BuildDep, 0, len(dep.Relations))
	for _, rel := range dep.Relations {
		for _, possi := range rel.Possibilities {
			name := possi.Name
			arch := b.Architecture
			if idx := strings.IndexByte(name, ':'); idx >= 0 {
				arch = name[idx+1:]
				name = name[:idx]
			}
			version := ""
			if possi.Version != nil {
				version = possi.Version.Number
			}
			ret = append(ret, BuildDep{Name: name, Version: version, Arch: arch})
		}
	}
	return ret, nil
}

// LoadBuildinfo parses a .buildinfo file body (the multipart upload to
// POST /mr/buildinfo).
func LoadBuildinfo(in io.Reader) (*Buildinfo, error) {
	ret := Buildinfo{}
	decoder, err := control.NewDecoder(in, nil)
	if err != nil {
		return nil, fmt.Errorf("control: new decoder: %w", err)
	}
	if err := decoder.Decode(&ret); err != nil {
		return nil, fmt.Errorf("control: decode buildinfo: %w", err)
	}
	return &ret, nil
}
