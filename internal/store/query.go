// Read helpers for the query layer and the buildinfo solver. Both are
// strictly readers of the store. The one writer in this file is
// MarkProvisioned, which the ingest pipeline calls inside its own
// transaction.
package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by read helpers when the named entity does not
// exist, mapped by the query layer to HTTP 404.
var ErrNotFound = errors.New("store: not found")

// ListSourcePackageNames returns every distinct source package name,
// lexicographically sorted: every query response is ordered
// deterministically on the primary key of the entity it lists.
func (s *Store) ListSourcePackageNames() ([]string, error) {
	var names []string
	err := s.db.Model(&Package{}).Where("kind = ?", KindSource).
		Distinct().Order("name").Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("store: list source packages: %w", err)
	}
	return names, nil
}

// PackageVersions returns every known version of (kind, name), sorted
// lexicographically. This is not Debian version order (the teacher's
// version.Compare would produce a different order); callers that need
// that should re-sort with pault.ag/go/debian/version — lexicographic
// order here is only guaranteed to be deterministic.
func (s *Store) PackageVersions(kind PackageKind, name string) ([]string, error) {
	var versions []string
	err := s.db.Model(&Package{}).Where("kind = ? AND name = ?", kind, name).
		Order("version").Pluck("version", &versions).Error
	if err != nil {
		return nil, fmt.Errorf("store: package versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

// PackageFileEntry is one row of a srcfiles/binfiles response.
type PackageFileEntry struct {
	SHA256       string
	Architecture string // empty for source files
}

// PackageFiles returns the sha256 (and, for binary packages, architecture)
// of every file realizing (kind, name, version).
func (s *Store) PackageFiles(kind PackageKind, name, version string) ([]PackageFileEntry, error) {
	var pkg Package
	err := s.db.Where("kind = ? AND name = ? AND version = ?", kind, name, version).First(&pkg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("store: find package: %w", err)
	}

	type row struct {
		Sha256 string
		Arch   string
	}
	var rows []row
	err = s.db.Table("package_files").
		Joins("JOIN files ON files.id = package_files.file_id").
		Joins("LEFT JOIN architectures ON architectures.id = package_files.architecture_id").
		Where("package_files.package_id = ?", pkg.ID).
		Order("files.sha256").
		Select("files.sha256 as sha256, architectures.name as arch").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: package files: %w", err)
	}
	ret := make([]PackageFileEntry, 0, len(rows))
	for _, r := range rows {
		ret = append(ret, PackageFileEntry{SHA256: r.Sha256, Architecture: r.Arch})
	}
	return ret, nil
}

// CoveringTimestamps returns, for sha256, every timestamp value at which it
// was observed anywhere in archive, sorted.
func (s *Store) CoveringTimestamps(archive, sha256 string) ([]string, error) {
	var a Archive
	if err := s.db.Where("name = ?", archive).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find archive: %w", err)
	}
	var f File
	if err := s.db.Where("sha256 = ?", sha256).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find file: %w", err)
	}

	var values []string
	err := s.db.Table("observations").
		Joins("JOIN timestamps ON timestamps.id = observations.timestamp_id").
		Where("timestamps.archive_id = ? AND observations.file_id = ?", a.ID, f.ID).
		Order("timestamps.value").
		Distinct().
		Pluck("timestamps.value", &values).Error
	if err != nil {
		return nil, fmt.Errorf("store: covering timestamps: %w", err)
	}
	return values, nil
}

// AllFileHashes returns every known sha256, sorted.
func (s *Store) AllFileHashes() ([]string, error) {
	var hashes []string
	err := s.db.Model(&File{}).Order("sha256").Pluck("sha256", &hashes).Error
	if err != nil {
		return nil, fmt.Errorf("store: list files: %w", err)
	}
	return hashes, nil
}

// Range is a [Begin, End] timestamp pair in the textual form the API
// returns for a file's coalesced observation history.
type Range struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

// FileObservation is one entry of a sha256's expanded observation list.
type FileObservation struct {
	Name            string  `json:"name"`
	Path            string  `json:"path"`
	Size            uint64  `json:"size"`
	ArchiveName     string  `json:"archive_name"`
	SuiteName       string  `json:"suite_name"`
	ComponentName   string  `json:"component_name"`
	TimestampRanges []Range `json:"timestamp_ranges"`
}

// FileInfo returns every observation of sha256 across all locations, with
// coalesced timestamp ranges expanded to their textual form.
func (s *Store) FileInfo(sha256 string) ([]FileObservation, error) {
	var f File
	if err := s.db.Where("sha256 = ?", sha256).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find file: %w", err)
	}

	var rangeRows []TimestampRange
	if err := s.db.Where("file_id = ?", f.ID).Find(&rangeRows).Error; err != nil {
		return nil, fmt.Errorf("store: ranges for file: %w", err)
	}

	byLocation := map[uint][]TimestampRange{}
	for _, r := range rangeRows {
		byLocation[r.LocationID] = append(byLocation[r.LocationID], r)
	}

	var locationIDs []uint
	for id := range byLocation {
		locationIDs = append(locationIDs, id)
	}
	sort.Slice(locationIDs, func(i, j int) bool { return locationIDs[i] < locationIDs[j] })

	ret := make([]FileObservation, 0, len(locationIDs))
	for _, locID := range locationIDs {
		var loc Location
		if err := s.db.First(&loc, locID).Error; err != nil {
			return nil, fmt.Errorf("store: load location: %w", err)
		}
		var archive Archive
		var suite Suite
		var component Component
		if err := s.db.First(&archive, loc.ArchiveID).Error; err != nil {
			return nil, err
		}
		if err := s.db.First(&suite, loc.SuiteID).Error; err != nil {
			return nil, err
		}
		if err := s.db.First(&component, loc.ComponentID).Error; err != nil {
			return nil, err
		}

		ranges, err := s.textualRanges(byLocation[locID])
		if err != nil {
			return nil, err
		}
		ret = append(ret, FileObservation{
			Name:            loc.Name,
			Path:            loc.Path,
			Size:            f.Size,
			ArchiveName:     archive.Name,
			SuiteName:       suite.Name,
			ComponentName:   component.Name,
			TimestampRanges: ranges,
		})
	}
	return ret, nil
}

func (s *Store) textualRanges(rows []TimestampRange) ([]Range, error) {
	ret := make([]Range, 0, len(rows))
	for _, r := range rows {
		var begin, end Timestamp
		if err := s.db.First(&begin, r.BeginID).Error; err != nil {
			return nil, fmt.Errorf("store: load range begin: %w", err)
		}
		if err := s.db.First(&end, r.EndID).Error; err != nil {
			return nil, fmt.Errorf("store: load range end: %w", err)
		}
		ret = append(ret, Range{Begin: begin.Value, End: end.Value})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Begin < ret[j].Begin })
	return ret, nil
}

// TimestampsForArchive returns every known timestamp value for archive,
// sorted; lexicographic order on a YYYYMMDDThhmmssZ value equals
// chronological order.
func (s *Store) TimestampsForArchive(archive string) ([]string, error) {
	var a Archive
	if err := s.db.Where("name = ?", archive).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find archive: %w", err)
	}
	var values []string
	err := s.db.Model(&Timestamp{}).Where("archive_id = ?", a.ID).Order("value").Pluck("value", &values).Error
	if err != nil {
		return nil, fmt.Errorf("store: list timestamps: %w", err)
	}
	return values, nil
}

// ClosestTimestamp resolves query to the exact timestamp if it exists, or
// else the greatest timestamp strictly less than query. Returns
// ErrNotFound if neither exists.
func (s *Store) ClosestTimestamp(archive, query string) (string, error) {
	var a Archive
	if err := s.db.Where("name = ?", archive).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: find archive: %w", err)
	}

	var exact Timestamp
	err := s.db.Where("archive_id = ? AND value = ?", a.ID, query).First(&exact).Error
	if err == nil {
		return exact.Value, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("store: exact timestamp lookup: %w", err)
	}

	var lower Timestamp
	err = s.db.Where("archive_id = ? AND value < ?", a.ID, query).
		Order("value DESC").Limit(1).First(&lower).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: closest timestamp lookup: %w", err)
	}
	return lower.Value, nil
}

// LatestTimestamp returns the maximum timestamp for archive.
func (s *Store) LatestTimestamp(archive string) (string, error) {
	var a Archive
	if err := s.db.Where("name = ?", archive).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: find archive: %w", err)
	}
	var latest Timestamp
	err := s.db.Where("archive_id = ?", a.ID).Order("value DESC").Limit(1).First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: latest timestamp lookup: %w", err)
	}
	return latest.Value, nil
}

// IsProvisioned reports whether (archive, timestamp, suite, component,
// arch) has already completed ingestion.
func IsProvisioned(tx *gorm.DB, archiveID, timestampID, suiteID, componentID uint, architectureID *uint) (bool, error) {
	q := tx.Model(&Provisioned{}).Where(
		"archive_id = ? AND timestamp_id = ? AND suite_id = ? AND component_id = ?",
		archiveID, timestampID, suiteID, componentID,
	)
	if architectureID == nil {
		q = q.Where("architecture_id IS NULL")
	} else {
		q = q.Where("architecture_id = ?", *architectureID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("store: check provisioned: %w", err)
	}
	return count > 0, nil
}

// MarkProvisioned records that ingestion of a tuple completed.
func MarkProvisioned(tx *gorm.DB, archiveID, timestampID, suiteID, componentID uint, architectureID *uint) error {
	p := Provisioned{
		ArchiveID: archiveID, TimestampID: timestampID, SuiteID: suiteID,
		ComponentID: componentID, ArchitectureID: architectureID, ProvisionedAt: time.Now().UTC(),
	}
	cols := []clause.Column{
		{Name: "archive_id"}, {Name: "timestamp_id"}, {Name: "suite_id"}, {Name: "component_id"}, {Name: "architecture_id"},
	}
	if architectureID == nil {
		// A NULL architecture_id never conflicts in the unique index, so
		// an existing row has to be looked up explicitly.
		done, err := IsProvisioned(tx, archiveID, timestampID, suiteID, componentID, nil)
		if err != nil || done {
			return err
		}
	}
	return tx.Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).Create(&p).Error
}
