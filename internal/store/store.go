package store

import (
	"fmt"
	"sync/atomic"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps a *gorm.DB with the provenance schema. C5 is the only
// writer; C7 and C8 only ever call the read methods in query.go and
// solver.go.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema. A dsn beginning with
// "sqlite://" opens a gorm sqlite store on the rest of the string;
// anything else (a bare file path included) is treated as a Postgres DSN, matching
// ihosol-military-audit-log's NewPostgresDB.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch {
	case len(dsn) >= len("sqlite://") && dsn[:len("sqlite://")] == "sqlite://":
		dialector = sqlite.Open(dsn[len("sqlite://"):])
	default:
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

var memDBSeq atomic.Uint64

// OpenSQLiteMemory opens an in-memory sqlite store, used by tests. Each
// call gets its own named database, so stores never share rows.
func OpenSQLiteMemory() (*Store, error) {
	return Open(fmt.Sprintf("sqlite://file:memdb%d?mode=memory&cache=shared", memDBSeq.Add(1)))
}

// DB exposes the underlying *gorm.DB for callers (chiefly tests) that need
// to inspect rows directly.
func (s *Store) DB() *gorm.DB { return s.db }
