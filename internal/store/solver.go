package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Requirement is one (name, version, architecture) dependency extracted
// from a buildinfo's Installed-Build-Depends.
type Requirement struct {
	Kind         PackageKind
	Name         string
	Version      string
	Architecture string // "" for source packages
}

// LocationKey identifies a candidate (suite, component) the solver reports
// results under.
type LocationKey struct {
	Suite     string
	Component string
}

// CoverageEntry is one requirement's timestamp coverage at a LocationKey.
type CoverageEntry struct {
	Requirement Requirement
	Timestamps  []string // sorted chronologically
}

// ResolveCoverage returns, for each (suite, component) location that ever
// observed req's package (under any architecture), the sorted list of
// timestamps at which req itself — name, version, and the requested
// architecture — was present there. A location can appear in the returned
// map with a nil/empty timestamp list: that means the package was observed
// there, just never under the requested architecture, and the caller
// should still report it as a candidate location with req missing rather
// than drop the location from consideration entirely.
//
// Only a location that never observed this package at all (no row for any
// architecture) is absent from the returned map; that is how the solver
// (C8) recognizes "this location has no coverage context for this
// requirement whatsoever".
func (s *Store) ResolveCoverage(archiveName string, req Requirement) (map[LocationKey][]string, error) {
	var a Archive
	if err := s.db.Where("name = ?", archiveName).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find archive: %w", err)
	}

	var pkg Package
	err := s.db.Where("kind = ? AND name = ? AND version = ?", req.Kind, req.Name, req.Version).First(&pkg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[LocationKey][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find requirement package: %w", err)
	}

	// Candidate locations: anywhere this package name/version was ever
	// observed, regardless of architecture. This is what keeps an
	// arch-mismatched requirement (e.g. "hello" only ever seen as "all",
	// requested as "amd64") surfacing as a known-but-missing location
	// instead of vanishing from the result entirely.
	type locRow struct {
		Suite     string
		Component string
	}
	var locRows []locRow
	locQ := s.db.Table("package_files").
		Select("DISTINCT suites.name as suite, components.name as component").
		Joins("JOIN timestamp_ranges ON timestamp_ranges.file_id = package_files.file_id").
		Joins("JOIN locations ON locations.id = timestamp_ranges.location_id").
		Joins("JOIN suites ON suites.id = locations.suite_id").
		Joins("JOIN components ON components.id = locations.component_id").
		Where("package_files.package_id = ? AND locations.archive_id = ?", pkg.ID, a.ID)
	if err := locQ.Scan(&locRows).Error; err != nil {
		return nil, fmt.Errorf("store: resolve candidate locations: %w", err)
	}

	out := map[LocationKey][]string{}
	for _, r := range locRows {
		out[LocationKey{Suite: r.Suite, Component: r.Component}] = nil
	}

	var archID uint
	haveArch := true
	if req.Architecture != "" {
		var arch Architecture
		if err := s.db.Where("name = ?", req.Architecture).First(&arch).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				haveArch = false
			} else {
				return nil, fmt.Errorf("store: find architecture: %w", err)
			}
		} else {
			archID = arch.ID
		}
	}

	// No Architecture row at all for the requested arch: every candidate
	// location is known but has zero coverage of this exact requirement.
	if req.Architecture != "" && !haveArch {
		return out, nil
	}

	q := s.db.Table("package_files").
		Select(
			"DISTINCT timestamp_ranges.id as range_id, suites.name as suite, components.name as component, "+
				"timestamp_ranges.begin_id as begin_id, timestamp_ranges.end_id as end_id",
		).
		Joins("JOIN timestamp_ranges ON timestamp_ranges.file_id = package_files.file_id").
		Joins("JOIN locations ON locations.id = timestamp_ranges.location_id").
		Joins("JOIN suites ON suites.id = locations.suite_id").
		Joins("JOIN components ON components.id = locations.component_id").
		Where("package_files.package_id = ? AND locations.archive_id = ?", pkg.ID, a.ID)

	if req.Architecture != "" {
		q = q.Where("timestamp_ranges.architecture_id = ?", archID)
	} else {
		q = q.Where("timestamp_ranges.architecture_id IS NULL")
	}

	type row struct {
		Suite     string
		Component string
		BeginID   uint
		EndID     uint
	}
	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: resolve coverage: %w", err)
	}

	for _, r := range rows {
		var begin, end Timestamp
		if err := s.db.First(&begin, r.BeginID).Error; err != nil {
			return nil, fmt.Errorf("store: load range begin: %w", err)
		}
		if err := s.db.First(&end, r.EndID).Error; err != nil {
			return nil, fmt.Errorf("store: load range end: %w", err)
		}
		var values []string
		err := s.db.Model(&Timestamp{}).
			Where("archive_id = ? AND value >= ? AND value <= ?", a.ID, begin.Value, end.Value).
			Order("value").Pluck("value", &values).Error
		if err != nil {
			return nil, fmt.Errorf("store: expand range: %w", err)
		}
		key := LocationKey{Suite: r.Suite, Component: r.Component}
		out[key] = mergeSortedUnique(out[key], values)
	}
	return out, nil
}

func mergeSortedUnique(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
