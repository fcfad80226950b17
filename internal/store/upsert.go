package store

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetOrCreateArchive returns the Archive row for name, creating it if this
// is the first time it has been sighted.
func GetOrCreateArchive(tx *gorm.DB, name string) (*Archive, error) {
	a := Archive{Name: name}
	if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&a).Error; err != nil {
		return nil, fmt.Errorf("store: upsert archive: %w", err)
	}
	if a.ID == 0 {
		if err := tx.Where("name = ?", name).First(&a).Error; err != nil {
			return nil, fmt.Errorf("store: fetch archive: %w", err)
		}
	}
	return &a, nil
}

// GetOrCreateTimestamp returns the Timestamp row for (archive, value),
// creating it on successful ingestion of that timestamp's Release.
func GetOrCreateTimestamp(tx *gorm.DB, archiveID uint, value string) (*Timestamp, error) {
	ts := Timestamp{ArchiveID: archiveID, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "archive_id"}, {Name: "value"}},
		DoNothing: true,
	}).Create(&ts).Error; err != nil {
		return nil, fmt.Errorf("store: upsert timestamp: %w", err)
	}
	if ts.ID == 0 {
		if err := tx.Where("archive_id = ? AND value = ?", archiveID, value).First(&ts).Error; err != nil {
			return nil, fmt.Errorf("store: fetch timestamp: %w", err)
		}
	}
	return &ts, nil
}

// GetOrCreateSuite returns the Suite row for (archive, name).
func GetOrCreateSuite(tx *gorm.DB, archiveID uint, name string) (*Suite, error) {
	s := Suite{ArchiveID: archiveID, Name: name}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "archive_id"}, {Name: "name"}},
		DoNothing: true,
	}).Create(&s).Error; err != nil {
		return nil, fmt.Errorf("store: upsert suite: %w", err)
	}
	if s.ID == 0 {
		if err := tx.Where("archive_id = ? AND name = ?", archiveID, name).First(&s).Error; err != nil {
			return nil, fmt.Errorf("store: fetch suite: %w", err)
		}
	}
	return &s, nil
}

// GetOrCreateComponent returns the Component row for (suite, name).
func GetOrCreateComponent(tx *gorm.DB, suiteID uint, name string) (*Component, error) {
	c := Component{SuiteID: suiteID, Name: name}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "suite_id"}, {Name: "name"}},
		DoNothing: true,
	}).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("store: upsert component: %w", err)
	}
	if c.ID == 0 {
		if err := tx.Where("suite_id = ? AND name = ?", suiteID, name).First(&c).Error; err != nil {
			return nil, fmt.Errorf("store: fetch component: %w", err)
		}
	}
	return &c, nil
}

// GetOrCreateArchitecture returns the Architecture row for name.
func GetOrCreateArchitecture(tx *gorm.DB, name string) (*Architecture, error) {
	arch := Architecture{Name: name}
	if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&arch).Error; err != nil {
		return nil, fmt.Errorf("store: upsert architecture: %w", err)
	}
	if arch.ID == 0 {
		if err := tx.Where("name = ?", name).First(&arch).Error; err != nil {
			return nil, fmt.Errorf("store: fetch architecture: %w", err)
		}
	}
	return &arch, nil
}

// GetOrCreatePackage returns the Package row for (kind, name, version).
func GetOrCreatePackage(tx *gorm.DB, kind PackageKind, name, version string) (*Package, error) {
	p := Package{Kind: kind, Name: name, Version: version}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "name"}, {Name: "version"}},
		DoNothing: true,
	}).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("store: upsert package: %w", err)
	}
	if p.ID == 0 {
		if err := tx.Where("kind = ? AND name = ? AND version = ?", kind, name, version).First(&p).Error; err != nil {
			return nil, fmt.Errorf("store: fetch package: %w", err)
		}
	}
	return &p, nil
}

// ErrSizeDrift is returned by GetOrCreateFile when a sha256 is seen again
// with a different size than previously recorded: a collision with
// differing sizes indicates corruption, so this aborts the ingesting
// transaction rather than silently trusting either size.
var ErrSizeDrift = fmt.Errorf("store: size drift for existing sha256")

// GetOrCreateFile returns the File row for sha256, creating it on first
// sighting. If sha256 already exists with a different size, returns
// ErrSizeDrift.
func GetOrCreateFile(tx *gorm.DB, sha256 string, size uint64) (*File, error) {
	f := File{SHA256: sha256, Size: size}
	if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sha256"}}, DoNothing: true}).
		Create(&f).Error; err != nil {
		return nil, fmt.Errorf("store: upsert file: %w", err)
	}
	if f.ID == 0 {
		if err := tx.Where("sha256 = ?", sha256).First(&f).Error; err != nil {
			return nil, fmt.Errorf("store: fetch file: %w", err)
		}
		if f.Size != size {
			return nil, fmt.Errorf("%w: sha256=%s have=%d want=%d", ErrSizeDrift, sha256, f.Size, size)
		}
	}
	return &f, nil
}

// GetOrCreateLocation returns the Location row for (archive, suite,
// component, path, name).
func GetOrCreateLocation(tx *gorm.DB, archiveID, suiteID, componentID uint, path, name string) (*Location, error) {
	l := Location{ArchiveID: archiveID, SuiteID: suiteID, ComponentID: componentID, Path: path, Name: name}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "archive_id"}, {Name: "suite_id"}, {Name: "component_id"}, {Name: "path"}, {Name: "name"},
		},
		DoNothing: true,
	}).Create(&l).Error; err != nil {
		return nil, fmt.Errorf("store: upsert location: %w", err)
	}
	if l.ID == 0 {
		if err := tx.Where(
			"archive_id = ? AND suite_id = ? AND component_id = ? AND path = ? AND name = ?",
			archiveID, suiteID, componentID, path, name,
		).First(&l).Error; err != nil {
			return nil, fmt.Errorf("store: fetch location: %w", err)
		}
	}
	return &l, nil
}

// RecordPackageFile upserts the Package<->File projection for a package's
// realized file.
func RecordPackageFile(tx *gorm.DB, packageID, fileID uint, architectureID *uint) error {
	pf := PackageFile{PackageID: packageID, FileID: fileID, ArchitectureID: architectureID}
	cols := []clause.Column{{Name: "package_id"}, {Name: "file_id"}, {Name: "architecture_id"}}
	if architectureID == nil {
		// A NULL architecture_id never conflicts in the unique index, so
		// an existing row has to be looked up explicitly.
		var n int64
		if err := tx.Model(&PackageFile{}).Where("package_id = ? AND file_id = ? AND architecture_id IS NULL", packageID, fileID).Count(&n).Error; err != nil {
			return fmt.Errorf("store: check package file: %w", err)
		}
		if n > 0 {
			return nil
		}
	}
	return tx.Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).Create(&pf).Error
}
