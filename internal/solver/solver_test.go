package solver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fepitre/debian-snapshot/internal/store"
)

func TestSolveOneGreedyCover(t *testing.T) {
	loc := store.LocationKey{Suite: "bullseye", Component: "main"}
	reqs := []store.Requirement{
		{Name: "a"},
		{Name: "b"},
		{Name: "c"},
	}
	// t1 covers a,b; t2 covers b,c; t3 covers only a.
	// t1 and t2 tie at 2, so greedy picks the more recent t2, then t3
	// (t1 and t3 tie at 1 for the remaining a).
	perReq := map[int][]string{
		0: {"t1", "t3"},
		1: {"t1", "t2"},
		2: {"t2"},
	}

	result := solveOne(loc, reqs, perReq)
	require.Empty(t, result.Missing)
	require.Len(t, result.Covered, 3)
	require.Equal(t, []string{"t2", "t3"}, result.Timestamps)
}

func TestSolveOneReportsMissing(t *testing.T) {
	loc := store.LocationKey{Suite: "bullseye", Component: "main"}
	reqs := []store.Requirement{
		{Name: "hello", Architecture: "all"},
		{Name: "ghost", Architecture: "amd64"},
	}
	// "ghost" has no candidate timestamps at all at this location.
	perReq := map[int][]string{
		0: {"t1"},
	}

	result := solveOne(loc, reqs, perReq)
	require.Equal(t, []string{"t1"}, result.Timestamps)
	require.Len(t, result.Covered, 1)
	require.Equal(t, "hello", result.Covered[0].Name)
	require.Len(t, result.Missing, 1)
	require.Equal(t, "ghost", result.Missing[0].Name)
}

func TestSolveOneTieBreaksOnMostRecent(t *testing.T) {
	loc := store.LocationKey{Suite: "sid", Component: "main"}
	reqs := []store.Requirement{{Name: "a"}}
	// Both t1 and t2 cover the only requirement equally (count 1); the
	// lexicographically greatest (most recent) timestamp wins the tie.
	perReq := map[int][]string{
		0: {"t1", "t2"},
	}

	result := solveOne(loc, reqs, perReq)
	require.Equal(t, []string{"t2"}, result.Timestamps)
}

// TestSolveOneArchMismatchStaysAtKnownLocation covers a requirement that is
// present in perReq (the location has coverage context for this package)
// but with an empty timestamp set, the shape ResolveCoverage now returns
// for a package only ever observed under a different architecture than
// requested. It must be reported missing, not silently dropped from the
// location's result.
func TestSolveOneArchMismatchStaysAtKnownLocation(t *testing.T) {
	loc := store.LocationKey{Suite: "bullseye", Component: "main"}
	reqs := []store.Requirement{{Name: "hello", Version: "2.10-2", Architecture: "amd64"}}
	perReq := map[int][]string{
		0: nil, // "hello" known at this location, never as amd64
	}

	result := solveOne(loc, reqs, perReq)
	require.Empty(t, result.Covered)
	require.Len(t, result.Missing, 1)
	require.Equal(t, "hello", result.Missing[0].Name)
	require.Empty(t, result.Timestamps)
}

// TestSolveReportsArchMismatchLocation reproduces scenario S6: a buildinfo
// requires "hello" (= 2.10-2) for amd64, but the store only ever observed
// "hello" built for "all". Solve must still surface the (suite, component)
// location it was observed at, with hello listed under Missing and an
// empty timestamp cover, rather than omitting the location altogether.
func TestSolveReportsArchMismatchLocation(t *testing.T) {
	s, err := store.OpenSQLiteMemory()
	require.NoError(t, err)
	db := s.DB()

	a, err := store.GetOrCreateArchive(db, "debian")
	require.NoError(t, err)
	suite, err := store.GetOrCreateSuite(db, a.ID, "bullseye")
	require.NoError(t, err)
	comp, err := store.GetOrCreateComponent(db, suite.ID, "main")
	require.NoError(t, err)
	loc, err := store.GetOrCreateLocation(db, a.ID, suite.ID, comp.ID, "pool/main/h/hello", "hello_2.10-2_all.deb")
	require.NoError(t, err)
	f, err := store.GetOrCreateFile(db, "deadbeef", 1024)
	require.NoError(t, err)
	pkg, err := store.GetOrCreatePackage(db, store.KindBinary, "hello", "2.10-2")
	require.NoError(t, err)
	archAll, err := store.GetOrCreateArchitecture(db, "all")
	require.NoError(t, err)
	require.NoError(t, store.RecordPackageFile(db, pkg.ID, f.ID, &archAll.ID))

	ts, err := store.GetOrCreateTimestamp(db, a.ID, "20210221T150011Z")
	require.NoError(t, err)
	key := store.ObservationKey{FileID: f.ID, LocationID: loc.ID, ArchitectureID: &archAll.ID}
	require.NoError(t, store.RecordObservation(db, a.ID, key, ts.ID))

	reqs := []store.Requirement{{Kind: store.KindBinary, Name: "hello", Version: "2.10-2", Architecture: "amd64"}}
	results, err := Solve(s, "debian", reqs, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "bullseye", results[0].Suite)
	require.Equal(t, "main", results[0].Component)
	require.Empty(t, results[0].Timestamps)
	require.Empty(t, results[0].Covered)
	require.Len(t, results[0].Missing, 1)
	require.Equal(t, "hello", results[0].Missing[0].Name)
}
