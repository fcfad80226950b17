package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLiteMemory()
	require.NoError(t, err)
	return s
}

func setupLocation(t *testing.T, s *Store) (archiveID uint, key ObservationKey) {
	t.Helper()
	db := s.DB()
	a, err := GetOrCreateArchive(db, "debian")
	require.NoError(t, err)
	suite, err := GetOrCreateSuite(db, a.ID, "bullseye")
	require.NoError(t, err)
	comp, err := GetOrCreateComponent(db, suite.ID, "main")
	require.NoError(t, err)
	loc, err := GetOrCreateLocation(db, a.ID, suite.ID, comp.ID, "pool/main/h/hello", "hello_2.10-2_all.deb")
	require.NoError(t, err)
	f, err := GetOrCreateFile(db, "aaaa", 12345)
	require.NoError(t, err)
	arch, err := GetOrCreateArchitecture(db, "all")
	require.NoError(t, err)
	return a.ID, ObservationKey{FileID: f.ID, LocationID: loc.ID, ArchitectureID: &arch.ID}
}

func tsID(t *testing.T, s *Store, archiveID uint, value string) uint {
	t.Helper()
	ts, err := GetOrCreateTimestamp(s.DB(), archiveID, value)
	require.NoError(t, err)
	return ts.ID
}

func ranges(t *testing.T, s *Store, key ObservationKey) []TimestampRange {
	t.Helper()
	var out []TimestampRange
	require.NoError(t, key.rangeQuery(s.DB()).Order("begin_id").Find(&out).Error)
	return out
}

// TestS1S2S3S4 walks an observe/re-observe/gap/re-ingest sequence and
// checks the coalescer produces the expected range at each step.
func TestS1S2S3S4(t *testing.T) {
	s := newTestStore(t)
	archiveID, key := setupLocation(t, s)

	t1 := tsID(t, s, archiveID, "20210221T150011Z")
	require.NoError(t, RecordObservation(s.DB(), archiveID, key, t1))
	rs := ranges(t, s, key)
	require.Len(t, rs, 1)
	require.Equal(t, t1, rs[0].BeginID)
	require.Equal(t, t1, rs[0].EndID)

	// S2: re-observed at the very next ingested timestamp -> coalesced.
	t2 := tsID(t, s, archiveID, "20210222T150011Z")
	require.NoError(t, RecordObservation(s.DB(), archiveID, key, t2))
	rs = ranges(t, s, key)
	require.Len(t, rs, 1)
	require.Equal(t, t1, rs[0].BeginID)
	require.Equal(t, t2, rs[0].EndID)

	// S3: a third timestamp ingested (e.g. Release parsed) where this
	// file is absent from the index: no new Observation, range
	// untouched.
	t3 := tsID(t, s, archiveID, "20210223T150011Z")
	_ = t3 // no RecordObservation call: hello omitted from this index
	rs = ranges(t, s, key)
	require.Len(t, rs, 1)
	require.Equal(t, t1, rs[0].BeginID)
	require.Equal(t, t2, rs[0].EndID)

	// S4: idempotence — re-ingesting t2 again must not change anything.
	require.NoError(t, RecordObservation(s.DB(), archiveID, key, t2))
	rs = ranges(t, s, key)
	require.Len(t, rs, 1)
	require.Equal(t, t1, rs[0].BeginID)
	require.Equal(t, t2, rs[0].EndID)
}

// TestCoalesceMergesBothSides exercises the branch where a newly-filled
// gap has an existing range on both sides, and they must merge into one.
func TestCoalesceMergesBothSides(t *testing.T) {
	s := newTestStore(t)
	archiveID, key := setupLocation(t, s)

	t1 := tsID(t, s, archiveID, "20210101T000000Z")
	t2 := tsID(t, s, archiveID, "20210102T000000Z")
	t3 := tsID(t, s, archiveID, "20210103T000000Z")

	require.NoError(t, RecordObservation(s.DB(), archiveID, key, t1))
	require.NoError(t, RecordObservation(s.DB(), archiveID, key, t3))

	rs := ranges(t, s, key)
	require.Len(t, rs, 2)

	require.NoError(t, RecordObservation(s.DB(), archiveID, key, t2))

	rs = ranges(t, s, key)
	require.Len(t, rs, 1)
	require.Equal(t, t1, rs[0].BeginID)
	require.Equal(t, t3, rs[0].EndID)
}

// TestCoalesceIdempotentRepeatedInsert checks that inserting the same
// observation N times yields the same range set as inserting it once.
func TestCoalesceIdempotentRepeatedInsert(t *testing.T) {
	s := newTestStore(t)
	archiveID, key := setupLocation(t, s)
	t1 := tsID(t, s, archiveID, "20210101T000000Z")

	for i := 0; i < 5; i++ {
		require.NoError(t, RecordObservation(s.DB(), archiveID, key, t1))
	}
	rs := ranges(t, s, key)
	require.Len(t, rs, 1)
	require.Equal(t, t1, rs[0].BeginID)
	require.Equal(t, t1, rs[0].EndID)
}

func TestGetOrCreateFileSizeDrift(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	_, err := GetOrCreateFile(db, "bbbb", 100)
	require.NoError(t, err)
	_, err = GetOrCreateFile(db, "bbbb", 200)
	require.ErrorIs(t, err, ErrSizeDrift)
}
