package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/fepitre/debian-snapshot/internal/control"
	"github.com/fepitre/debian-snapshot/internal/fetch"
	"github.com/fepitre/debian-snapshot/internal/hashio"
	"github.com/fepitre/debian-snapshot/internal/ingesterr"
	"github.com/fepitre/debian-snapshot/internal/layout"
	"github.com/fepitre/debian-snapshot/internal/lock"
	"github.com/fepitre/debian-snapshot/internal/metrics"
	"github.com/fepitre/debian-snapshot/internal/store"
)

// indexExtensions is the preference order the pipeline tries when looking
// for a compressed index in a Release file's SHA256 block: the parser
// transparently decompresses whichever of .xz/.gz/.bz2 (or the
// uncompressed form) the Release file actually certifies.
var indexExtensions = []string{".xz", ".gz", ".bz2", ""}

// Pipeline is the per-run ingestion orchestrator (C5).
type Pipeline struct {
	Layout layout.Layout
	Fetch  *fetch.Client
	Store  *store.Store
}

// New constructs a Pipeline.
func New(lay layout.Layout, fc *fetch.Client, st *store.Store) *Pipeline {
	return &Pipeline{Layout: lay, Fetch: fc, Store: st}
}

// Run ingests sel under opts, holding one advisory lock per archive for
// the duration of that archive's ingestion.
func (p *Pipeline) Run(ctx context.Context, sel Selection, opts Options) (*Summary, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	summary := &Summary{}

	for _, archive := range sel.Archives {
		held, err := lock.Acquire(p.Layout.LockPath(archive))
		if err != nil {
			return summary, err
		}

		timestamps, err := ResolveTimestamps(ctx, p.Fetch, p.Layout, archive, sel.Timestamps)
		if err != nil {
			held.Release()
			return summary, err
		}

		for _, ts := range timestamps {
			for _, suite := range sel.Suites {
				res, err := p.runTuple(ctx, archive, ts, suite, sel, opts)
				if res != nil {
					summary.Tuples = append(summary.Tuples, *res)
				}
				if err != nil {
					held.Release()
					return summary, err
				}
			}
		}
		if err := held.Release(); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// runTuple ingests one (archive, timestamp, suite) across every requested
// (component, architecture) pair: fetch the Release, resolve and realize
// every index, fan out the downloads, then provision the results.
func (p *Pipeline) runTuple(ctx context.Context, archive, timestamp, suite string, sel Selection, opts Options) (*TupleResult, error) {
	result := &TupleResult{Archive: archive, Timestamp: timestamp, Suite: suite}

	release, err := p.fetchRelease(ctx, archive, timestamp, suite)
	if err != nil {
		return result, err
	}

	components := sel.Components
	if len(components) == 0 {
		components = release.Components
	}

	wantArches := map[string]bool{}
	for _, a := range sel.Architectures {
		wantArches[a] = true
	}
	var arches []string
	for _, a := range release.Arches {
		name := fmt.Sprintf("%v", a)
		if len(wantArches) == 0 || wantArches[name] {
			arches = append(arches, name)
		}
	}
	wantSource := len(wantArches) == 0 || wantArches["source"]

	var records []fileRecord
	for _, component := range components {
		if wantSource {
			recs, err := p.realizeSourceIndex(ctx, archive, timestamp, suite, component, release)
			if err != nil {
				result.Failures = append(result.Failures, failure{Kind: "index", Err: err})
			} else {
				records = append(records, recs...)
			}
		}
		for _, arch := range arches {
			recs, err := p.realizeBinaryIndex(ctx, archive, timestamp, suite, component, arch, release)
			if err != nil {
				result.Failures = append(result.Failures, failure{Kind: "index", Err: err})
			} else {
				records = append(records, recs...)
			}
		}
	}

	if !opts.SkipInstallerFiles {
		for _, arch := range arches {
			recs, err := p.realizeInstallerFiles(ctx, archive, timestamp, suite, arch)
			if err != nil {
				result.Failures = append(result.Failures, failure{Kind: "installer", Err: err})
			} else {
				records = append(records, recs...)
			}
		}
	}

	if opts.CheckOnly {
		p.checkOnly(records, result)
		return result, nil
	}

	confirmed := records
	if !opts.ProvisionDBOnly {
		ok := p.downloadFanOut(ctx, archive, timestamp, records, opts, result)
		confirmed = make([]fileRecord, 0, len(records))
		for i, rec := range records {
			if ok[i] {
				confirmed = append(confirmed, rec)
			}
		}
	}

	if err := p.provision(archive, timestamp, suite, components, arches, wantSource, confirmed, result); err != nil {
		return result, err
	}

	return result, nil
}

func (p *Pipeline) fetchRelease(ctx context.Context, archive, timestamp, suite string) (*control.Release, error) {
	for _, inRelease := range []bool{true, false} {
		repoPath := layout.ReleasePath(suite, inRelease)
		url := p.Layout.UpstreamURL(archive, timestamp, repoPath)
		res, err := p.Fetch.Fetch(ctx, url, fetch.Options{Cache: true})
		if err != nil {
			continue
		}
		release, err := control.LoadRelease(bytes.NewReader(res.Body))
		if err != nil {
			return nil, ingesterr.New(ingesterr.ParseError, url, err)
		}
		return release, nil
	}
	return nil, ingesterr.New(ingesterr.NetworkFatal, suite, fmt.Errorf("neither InRelease nor Release fetched for %s/%s/%s", archive, timestamp, suite))
}

// resolveIndex finds the (path, sha256, size, extension) of suite's
// Packages or Sources index for (component, arch) by checking, in
// preference order, which compressed variant the Release file certifies.
// The returned Path is archive-relative (dists/{suite}/...).
func resolveIndex(release *control.Release, suite, component, arch string) (control.IndexedFile, string, error) {
	indices := release.Indices()
	for _, ext := range indexExtensions {
		repoPath := layout.IndexPath(suite, component, arch, ext)
		if idx, ok := lookupIndex(indices, repoPath); ok {
			idx.Path = repoPath
			return idx, ext, nil
		}
	}
	return control.IndexedFile{}, "", fmt.Errorf("no index found for %s/%s/%s", suite, component, arch)
}

func lookupIndex(indices map[string]control.IndexedFile, repoPath string) (control.IndexedFile, bool) {
	// Release's SHA256 block keys paths relative to dists/{suite}/, while
	// repoPath is archive-relative; try both forms.
	if idx, ok := indices[repoPath]; ok {
		return idx, true
	}
	for key, idx := range indices {
		if len(repoPath) >= len(key) && repoPath[len(repoPath)-len(key):] == key {
			return idx, true
		}
	}
	return control.IndexedFile{}, false
}

func (p *Pipeline) fetchIndexBody(ctx context.Context, archive, timestamp, repoPath, ext string) (io.Reader, error) {
	url := p.Layout.UpstreamURL(archive, timestamp, repoPath)
	res, err := p.Fetch.Fetch(ctx, url, fetch.Options{Cache: true})
	if err != nil {
		return nil, ingesterr.New(ingesterr.NetworkTransient, url, err)
	}
	decompressed, err := control.Decompress(bytes.NewReader(res.Body), repoPath)
	if err != nil {
		return nil, ingesterr.New(ingesterr.ParseError, url, err)
	}
	return decompressed, nil
}

func (p *Pipeline) realizeSourceIndex(ctx context.Context, archive, timestamp, suite, component string, release *control.Release) ([]fileRecord, error) {
	idx, ext, err := resolveIndex(release, suite, component, "source")
	if err != nil {
		return nil, nil // component has no source index; not an error
	}
	body, err := p.fetchIndexBody(ctx, archive, timestamp, idx.Path, ext)
	if err != nil {
		return nil, err
	}
	sources, err := control.LoadSources(body)
	if err != nil {
		return nil, ingesterr.New(ingesterr.ParseError, idx.Path, err)
	}

	var records []fileRecord
	for {
		src, err := sources.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // malformed paragraph: skipped rather than aborting the whole index
		}
		for _, f := range src.Files() {
			repoPath := layout.PoolPath(component, src.Name, f.Name)
			records = append(records, fileRecord{
				SHA256:         f.SHA256,
				Size:           f.Size,
				RepoPath:       repoPath,
				Path:           dirOf(repoPath),
				Name:           f.Name,
				Component:      component,
				PackageKind:    store.KindSource,
				PackageName:    src.Name,
				PackageVersion: fmt.Sprintf("%v", src.Version),
			})
		}
	}
	return records, nil
}

func (p *Pipeline) realizeBinaryIndex(ctx context.Context, archive, timestamp, suite, component, arch string, release *control.Release) ([]fileRecord, error) {
	idx, ext, err := resolveIndex(release, suite, component, arch)
	if err != nil {
		return nil, nil
	}
	body, err := p.fetchIndexBody(ctx, archive, timestamp, idx.Path, ext)
	if err != nil {
		return nil, err
	}
	packages, err := control.LoadPackages(body)
	if err != nil {
		return nil, ingesterr.New(ingesterr.ParseError, idx.Path, err)
	}

	var records []fileRecord
	for {
		pkg, err := packages.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		repoPath := pkg.Filename
		records = append(records, fileRecord{
			SHA256:         pkg.SHA256,
			Size:           pkg.Size,
			RepoPath:       repoPath,
			Path:           dirOf(repoPath),
			Name:           baseOf(repoPath),
			Architecture:   fmt.Sprintf("%v", pkg.Architecture),
			Component:      component,
			PackageKind:    store.KindBinary,
			PackageName:    pkg.Name,
			PackageVersion: fmt.Sprintf("%v", pkg.Version),
		})
	}
	return records, nil
}

// realizeInstallerFiles enumerates the debian-installer images for
// (suite, arch) from their SHA256SUMS manifest. Unlike
// Packages/Sources, SHA256SUMS carries no package metadata, so each image
// is recorded as a store.KindInstaller "package" named after the arch,
// versioned by the ingest timestamp (installer images have no Debian
// version of their own; the timestamp is the only axis they vary on).
func (p *Pipeline) realizeInstallerFiles(ctx context.Context, archive, timestamp, suite, arch string) ([]fileRecord, error) {
	repoPath := layout.InstallerSHA256SUMSPath(suite, arch)
	body, err := p.fetchIndexBody(ctx, archive, timestamp, repoPath, "")
	if err != nil {
		return nil, nil // no installer images published for this (suite, arch); not an error
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, ingesterr.New(ingesterr.ParseError, repoPath, err)
	}

	imagesDir := dirOf(repoPath)
	var records []fileRecord
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue // malformed line: skipped rather than aborting the whole manifest
		}
		sha256, rel := fields[0], fields[1]
		imgPath := path.Join(imagesDir, rel)
		records = append(records, fileRecord{
			SHA256:         sha256,
			RepoPath:       imgPath,
			Path:           dirOf(imgPath),
			Name:           baseOf(imgPath),
			Architecture:   arch,
			Component:      "main",
			PackageKind:    store.KindInstaller,
			PackageName:    "installer-" + arch,
			PackageVersion: timestamp,
		})
	}
	return records, nil
}

func dirOf(repoPath string) string {
	for i := len(repoPath) - 1; i >= 0; i-- {
		if repoPath[i] == '/' {
			return repoPath[:i]
		}
	}
	return ""
}

func baseOf(repoPath string) string {
	for i := len(repoPath) - 1; i >= 0; i-- {
		if repoPath[i] == '/' {
			return repoPath[i+1:]
		}
	}
	return repoPath
}

// downloadFanOut submits every record to a bounded worker pool, matching the
// teacher's downloader.go channel-semaphore pool idiom. It returns a
// per-record ok slice (aligned with records by index) marking which records
// ended up with linked content on disk this run: freshly fetched and
// verified, or already present under by-hash (not re-compared against the
// record's sha256); provision must
// only persist provenance for those, never for a record whose download
// failed.
func (p *Pipeline) downloadFanOut(ctx context.Context, archive, timestamp string, records []fileRecord, opts Options, result *TupleResult) []bool {
	ok := make([]bool, len(records))
	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, rec := range records {
		i, rec := i, rec
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if opts.OnFileDone != nil {
				defer opts.OnFileDone()
			}

			byHash := p.Layout.ByHashPath(rec.SHA256)
			onDisk := p.Layout.OnDiskPath(archive, timestamp, rec.RepoPath)

			skip := false
			if !opts.IgnoreProvisioned {
				if _, err := hashio.HashFile(byHash); err == nil {
					skip = true
				}
			}

			if skip {
				mu.Lock()
				result.FilesSkipped++
				mu.Unlock()
				if err := hashio.Link(byHash, onDisk); err != nil {
					mu.Lock()
					result.Failures = append(result.Failures, failure{RepoPath: rec.RepoPath, Kind: "link", Err: err})
					mu.Unlock()
					return
				}
				mu.Lock()
				ok[i] = true
				mu.Unlock()
				return
			}

			url := p.Layout.UpstreamURL(archive, timestamp, rec.RepoPath)
			_, err := p.Fetch.Fetch(ctx, url, fetch.Options{
				ExpectedSHA256:      rec.SHA256,
				ExpectedSize:        rec.Size,
				Destination:         byHash,
				RetainPartOnFailure: opts.NoCleanPartFile,
			})
			if err != nil {
				mu.Lock()
				result.FilesFailed++
				result.Failures = append(result.Failures, failure{RepoPath: rec.RepoPath, Kind: "fetch", Err: err})
				mu.Unlock()
				metrics.FilesFailed.WithLabelValues(archive, classify(err)).Inc()
				return
			}
			if linkErr := hashio.Link(byHash, onDisk); linkErr != nil {
				mu.Lock()
				result.Failures = append(result.Failures, failure{RepoPath: rec.RepoPath, Kind: "link", Err: linkErr})
				mu.Unlock()
				return
			}

			mu.Lock()
			result.FilesFetched++
			ok[i] = true
			mu.Unlock()
			metrics.FilesFetched.WithLabelValues(archive).Inc()
			metrics.BytesFetched.WithLabelValues(archive).Add(float64(rec.Size))
		}()
	}
	wg.Wait()
	return ok
}

func classify(err error) string {
	switch {
	case ingesterr.Is(err, ingesterr.HashMismatch):
		return "hash_mismatch"
	case ingesterr.Is(err, ingesterr.SizeMismatch):
		return "size_mismatch"
	case ingesterr.Is(err, ingesterr.NetworkFatal):
		return "network_fatal"
	default:
		return "network_transient"
	}
}

// checkOnly re-hashes on-disk files against their expected sha256 without
// downloading or writing the DB.
func (p *Pipeline) checkOnly(records []fileRecord, result *TupleResult) {
	for _, rec := range records {
		res, err := hashio.HashFile(p.Layout.ByHashPath(rec.SHA256))
		if err != nil {
			result.Failures = append(result.Failures, failure{RepoPath: rec.RepoPath, Kind: "missing", Err: err})
			continue
		}
		if res.SHA256 != rec.SHA256 || (rec.Size != 0 && res.Size != rec.Size) {
			result.Failures = append(result.Failures, failure{RepoPath: rec.RepoPath, Kind: "drift", Err: fmt.Errorf("on-disk content no longer matches recorded sha256")})
		}
	}
}

// provision opens the tuple-scoped transaction that upserts every entity
// and records an Observation (plus coalescing) for every record this run
// actually confirmed on disk — freshly downloaded-and-verified, or already
// present and not forced to re-verify — then marks the tuple provisioned.
// Records whose download failed this run never reach here, so a failed
// file never gets an Observation claiming it was present.
func (p *Pipeline) provision(archive, timestamp, suite string, components, arches []string, wantSource bool, records []fileRecord, result *TupleResult) error {
	db := p.Store.DB()
	return db.Transaction(func(tx *gorm.DB) error {
		a, err := store.GetOrCreateArchive(tx, archive)
		if err != nil {
			return ingesterr.New(ingesterr.StorageError, archive, err)
		}
		ts, err := store.GetOrCreateTimestamp(tx, a.ID, timestamp)
		if err != nil {
			return ingesterr.New(ingesterr.StorageError, timestamp, err)
		}
		s, err := store.GetOrCreateSuite(tx, a.ID, suite)
		if err != nil {
			return ingesterr.New(ingesterr.StorageError, suite, err)
		}

		componentIDs := map[string]uint{}
		for _, c := range components {
			comp, err := store.GetOrCreateComponent(tx, s.ID, c)
			if err != nil {
				return ingesterr.New(ingesterr.StorageError, c, err)
			}
			componentIDs[c] = comp.ID
		}

		for _, rec := range records {
			compID, ok := componentIDs[rec.Component]
			if !ok {
				comp, err := store.GetOrCreateComponent(tx, s.ID, rec.Component)
				if err != nil {
					return ingesterr.New(ingesterr.StorageError, rec.Component, err)
				}
				componentIDs[rec.Component] = comp.ID
				compID = comp.ID
			}
			if err := p.recordOne(tx, a.ID, ts.ID, s.ID, compID, rec); err != nil {
				return err
			}
		}

		for _, c := range components {
			if wantSource {
				if err := store.MarkProvisioned(tx, a.ID, ts.ID, s.ID, componentIDs[c], nil); err != nil {
					return ingesterr.New(ingesterr.StorageError, c, err)
				}
			}
			for _, arch := range arches {
				archRow, err := store.GetOrCreateArchitecture(tx, arch)
				if err != nil {
					return ingesterr.New(ingesterr.StorageError, arch, err)
				}
				if err := store.MarkProvisioned(tx, a.ID, ts.ID, s.ID, componentIDs[c], &archRow.ID); err != nil {
					return ingesterr.New(ingesterr.StorageError, arch, err)
				}
			}
		}
		metrics.TuplesProvisioned.WithLabelValues(archive).Inc()
		return nil
	})
}

func (p *Pipeline) recordOne(tx *gorm.DB, archiveID, timestampID, suiteID, componentID uint, rec fileRecord) error {
	f, err := store.GetOrCreateFile(tx, rec.SHA256, uint64(rec.Size))
	if err != nil {
		return ingesterr.New(ingesterr.StorageError, rec.SHA256, err)
	}
	loc, err := store.GetOrCreateLocation(tx, archiveID, suiteID, componentID, rec.Path, rec.Name)
	if err != nil {
		return ingesterr.New(ingesterr.StorageError, rec.RepoPath, err)
	}
	pkg, err := store.GetOrCreatePackage(tx, rec.PackageKind, rec.PackageName, rec.PackageVersion)
	if err != nil {
		return ingesterr.New(ingesterr.StorageError, rec.PackageName, err)
	}

	var archID *uint
	if rec.Architecture != "" {
		arch, err := store.GetOrCreateArchitecture(tx, rec.Architecture)
		if err != nil {
			return ingesterr.New(ingesterr.StorageError, rec.Architecture, err)
		}
		archID = &arch.ID
	}

	if err := store.RecordPackageFile(tx, pkg.ID, f.ID, archID); err != nil {
		return ingesterr.New(ingesterr.StorageError, rec.PackageName, err)
	}

	key := store.ObservationKey{FileID: f.ID, LocationID: loc.ID, ArchitectureID: archID}
	if err := store.RecordObservation(tx, archiveID, key, timestampID); err != nil {
		return ingesterr.New(ingesterr.StorageError, rec.RepoPath, err)
	}
	return nil
}

