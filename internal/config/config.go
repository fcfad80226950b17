// Package config holds the explicit Config value threaded through the
// ingester and the API server, replacing the teacher's package-level
// mutable globals (DefaultDownloader, releaseCache).
package config

import (
	"os"

	"github.com/spf13/pflag"
)

// Config is the full set of tunables for both cmd/snapshot-ingest and
// cmd/snapshot-api. Precedence is CLI flag > environment variable >
// built-in default.
type Config struct {
	DBUrl    string
	Upstream string
	Root     string

	// Ingest-only.
	Archives    []string
	Suites      []string
	Components  []string
	Timestamps  []string
	Workers     int
	IgnoreProvisioned bool
	ProvisionDBOnly   bool
	IncludeInstaller  bool
	DryRun            bool
	NoCleanPartFile   bool

	// API-only.
	Listen string
}

const (
	envDBUrl    = "SNAPSHOT_DB_URL"
	envUpstream = "SNAPSHOT_UPSTREAM"
	envRoot     = "SNAPSHOT_ROOT"

	defaultDBUrl    = "sqlite://snapshot.db"
	defaultUpstream = "https://snapshot.debian.org"
	defaultRoot     = "./archive"
	defaultListen   = ":8080"
	defaultWorkers  = 4
)

// Default returns a Config seeded from environment variables, falling back
// to built-in defaults for anything unset.
func Default() Config {
	return Config{
		DBUrl:    envOr(envDBUrl, defaultDBUrl),
		Upstream: envOr(envUpstream, defaultUpstream),
		Root:     envOr(envRoot, defaultRoot),
		Workers:  defaultWorkers,
		Listen:   defaultListen,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// RegisterIngestFlags binds the snapshot-ingest CLI surface onto fs,
// overlaying cfg's environment-derived defaults.
func RegisterIngestFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.DBUrl, "db", cfg.DBUrl, "provenance database DSN (sqlite://path or a postgres DSN)")
	fs.StringVar(&cfg.Upstream, "upstream", cfg.Upstream, "upstream snapshot service base URL")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "local archive mirror root")
	fs.StringArrayVar(&cfg.Archives, "archive", nil, "archive to ingest (repeatable)")
	fs.StringArrayVar(&cfg.Suites, "suite", nil, "suite to ingest (repeatable; default: unstable)")
	fs.StringArrayVar(&cfg.Components, "component", nil, "component to ingest (repeatable; default: main)")
	fs.StringArrayVar(&cfg.Timestamps, "timestamp", nil, "timestamp to ingest, or a lo:hi range with either side optional (repeatable; default: latest only)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "bounded worker pool size for per-file fetches")
	fs.BoolVar(&cfg.IgnoreProvisioned, "ignore-provisioned", false, "re-fetch and re-verify tuples already marked provisioned")
	fs.BoolVar(&cfg.ProvisionDBOnly, "provision-db-only", false, "record provenance without writing files to the local mirror")
	fs.BoolVar(&cfg.IncludeInstaller, "include-installer", false, "also ingest debian-installer images and their SHA256SUMS")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "resolve the selection and print what would be ingested without fetching anything")
	fs.BoolVar(&cfg.NoCleanPartFile, "no-clean-part-file", false, "retain .part files on verification failure for post-mortem debugging")
}

// RegisterAPIFlags binds the snapshot-api CLI surface onto fs.
func RegisterAPIFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.DBUrl, "db", cfg.DBUrl, "provenance database DSN (sqlite://path or a postgres DSN)")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "local archive mirror root (target of /mr/file/{sha256}/download redirects)")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
}
