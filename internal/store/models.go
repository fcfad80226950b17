// Package store is the provenance store: a normalized relational schema
// over gorm, upserts, and the timestamp-range coalescer.
//
// Grounded on ihosol-military-audit-log's internal/db/postgres.go
// (gorm.Open + AutoMigrate + Create/First), generalized from a single
// Document table to the full entity set a provenance-tracking mirror
// needs: archives, timestamps, suites, components, architectures,
// packages, files, locations, observations, and coalesced ranges.
package store

import "time"

// Archive is an administrative namespace such as "debian" or
// "qubes-r4.1-vm". Created lazily on first ingestion, immortal.
type Archive struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:255"`
	CreatedAt time.Time
}

// Timestamp is one UTC instant (YYYYMMDDThhmmssZ) at which an archive was
// observed. Lexicographic order on Value equals chronological order.
// Unique per archive; indexed on (ArchiveID, Value) so the coalescer can
// find the adjacent ingested timestamp in O(log n).
type Timestamp struct {
	ID        uint `gorm:"primaryKey"`
	ArchiveID uint `gorm:"uniqueIndex:idx_archive_timestamp;index:idx_archive_value_order"`
	Value     string `gorm:"uniqueIndex:idx_archive_timestamp;index:idx_archive_value_order;size:32"`
	CreatedAt time.Time
}

// Suite is a release stream within an archive (e.g. "unstable").
type Suite struct {
	ID        uint   `gorm:"primaryKey"`
	ArchiveID uint   `gorm:"uniqueIndex:idx_archive_suite"`
	Name      string `gorm:"uniqueIndex:idx_archive_suite;size:255"`
}

// Component is a licensing/organizational subdivision within a suite
// (e.g. "main").
type Component struct {
	ID      uint   `gorm:"primaryKey"`
	SuiteID uint   `gorm:"uniqueIndex:idx_suite_component"`
	Name    string `gorm:"uniqueIndex:idx_suite_component;size:255"`
}

// Architecture is a target CPU name or the pseudo-values "all"/"source".
type Architecture struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;size:64"`
}

// PackageKind distinguishes source packages, binary packages, and
// debian-installer images (which carry no Debian package metadata of
// their own, only a SHA256SUMS entry).
type PackageKind string

const (
	KindSource    PackageKind = "source"
	KindBinary    PackageKind = "binary"
	KindInstaller PackageKind = "installer"
)

// Package identity is the (kind, name, version) triple.
type Package struct {
	ID      uint        `gorm:"primaryKey"`
	Kind    PackageKind `gorm:"uniqueIndex:idx_package_identity;size:16"`
	Name    string      `gorm:"uniqueIndex:idx_package_identity;size:255;index:idx_package_name"`
	Version string      `gorm:"uniqueIndex:idx_package_identity;size:255"`
}

// File identity is its sha256. Size must be consistent across every
// observation of the same sha256; a caller that sees a new size for an
// existing sha256 must raise a StorageError rather than update it here.
type File struct {
	ID     uint   `gorm:"primaryKey"`
	SHA256 string `gorm:"uniqueIndex;size:64"`
	Size   uint64
}

// Location is the logical position at which a File can be observed:
// (archive, suite, component, path, name). (Path, Name) reconstruct the
// repo-relative URL.
type Location struct {
	ID          uint `gorm:"primaryKey"`
	ArchiveID   uint `gorm:"uniqueIndex:idx_location_identity"`
	SuiteID     uint `gorm:"uniqueIndex:idx_location_identity"`
	ComponentID uint `gorm:"uniqueIndex:idx_location_identity"`
	Path        string `gorm:"uniqueIndex:idx_location_identity;size:1024"`
	Name        string `gorm:"uniqueIndex:idx_location_identity;size:255"`
}

// Observation records that a file was present at a location at a
// timestamp, optionally qualified by architecture for binary files.
// Append-only: nothing in this package deletes or mutates a row here,
// only ever inserts new ones, so provenance history is never rewritten.
type Observation struct {
	ID             uint  `gorm:"primaryKey"`
	FileID         uint  `gorm:"uniqueIndex:idx_observation_identity"`
	LocationID     uint  `gorm:"uniqueIndex:idx_observation_identity"`
	ArchitectureID *uint `gorm:"uniqueIndex:idx_observation_identity"`
	TimestampID    uint  `gorm:"uniqueIndex:idx_observation_identity;index:idx_observation_timestamp"`
	CreatedAt      time.Time
}

// PackageFile is the Package<->File projection of Observation: the set of
// files that realize a given package version.
type PackageFile struct {
	ID             uint  `gorm:"primaryKey"`
	PackageID      uint  `gorm:"uniqueIndex:idx_package_file_identity"`
	FileID         uint  `gorm:"uniqueIndex:idx_package_file_identity"`
	ArchitectureID *uint `gorm:"uniqueIndex:idx_package_file_identity"`
}

// TimestampRange is a coalesced, maximal closed interval [Begin, End]
// during which a (File, Location, Architecture) was observed at every
// intermediate ingested timestamp for that archive.
type TimestampRange struct {
	ID             uint  `gorm:"primaryKey"`
	FileID         uint  `gorm:"uniqueIndex:idx_range_identity"`
	LocationID     uint  `gorm:"uniqueIndex:idx_range_identity"`
	ArchitectureID *uint `gorm:"uniqueIndex:idx_range_identity"`
	BeginID        uint  `gorm:"uniqueIndex:idx_range_identity"`
	EndID          uint
}

// Provisioned marks an (archive, timestamp, suite, component, arch) tuple
// as having completed ingestion. The ingest pipeline only writes these
// rows; it does not read them back, so neither the download skip nor
// --ignore-provisioned nor --provision-db-only consults this table.
type Provisioned struct {
	ID             uint  `gorm:"primaryKey"`
	ArchiveID      uint  `gorm:"uniqueIndex:idx_provisioned_identity"`
	TimestampID    uint  `gorm:"uniqueIndex:idx_provisioned_identity"`
	SuiteID        uint  `gorm:"uniqueIndex:idx_provisioned_identity"`
	ComponentID    uint  `gorm:"uniqueIndex:idx_provisioned_identity"`
	ArchitectureID *uint `gorm:"uniqueIndex:idx_provisioned_identity"`
	ProvisionedAt  time.Time
}

// AllModels lists every model AutoMigrate needs to create or update, in
// an order that satisfies foreign-key dependencies.
func AllModels() []any {
	return []any{
		&Archive{},
		&Timestamp{},
		&Suite{},
		&Component{},
		&Architecture{},
		&Package{},
		&File{},
		&Location{},
		&Observation{},
		&PackageFile{},
		&TimestampRange{},
		&Provisioned{},
	}
}
