package ingest

import "github.com/fepitre/debian-snapshot/internal/store"

// fileRecord is one (sha256, size, location, filename, optional arch)
// tuple the index parser yields for the download fan-out.
type fileRecord struct {
	SHA256       string
	Size         int64
	RepoPath     string // archive-relative path, e.g. pool/main/h/hello/hello_2.10-2_all.deb
	Path         string // Location.Path: the directory portion of RepoPath
	Name         string // Location.Name: the filename portion of RepoPath
	Architecture string // "" for source files
	Component    string // the component this record was realized for

	PackageKind    store.PackageKind
	PackageName    string
	PackageVersion string
}

// failure is one per-file ingestion failure, collected and summarized at
// the end of a tuple rather than aborting the rest of the tuple's work.
type failure struct {
	RepoPath string
	Kind     string
	Err      error
}

// TupleResult summarizes one (archive, timestamp, suite)'s ingestion
// across every selected component and architecture.
type TupleResult struct {
	Archive      string
	Timestamp    string
	Suite        string
	FilesFetched int
	FilesSkipped int
	FilesFailed  int
	Failures     []failure
}

// Summary aggregates every tuple processed in one Run call.
type Summary struct {
	Tuples []TupleResult
}

func (s *Summary) totalFailed() int {
	n := 0
	for _, t := range s.Tuples {
		n += t.FilesFailed
	}
	return n
}
