package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fepitre/debian-snapshot/internal/layout"
	"github.com/fepitre/debian-snapshot/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.OpenSQLiteMemory()
	require.NoError(t, err)
	return New(st, layout.New("https://snapshot.debian.org", t.TempDir())), st
}

func seedHello(t *testing.T, st *store.Store) {
	t.Helper()
	db := st.DB()
	a, err := store.GetOrCreateArchive(db, "debian")
	require.NoError(t, err)
	suite, err := store.GetOrCreateSuite(db, a.ID, "bullseye")
	require.NoError(t, err)
	comp, err := store.GetOrCreateComponent(db, suite.ID, "main")
	require.NoError(t, err)
	loc, err := store.GetOrCreateLocation(db, a.ID, suite.ID, comp.ID, "pool/main/h/hello", "hello_2.10-2_all.deb")
	require.NoError(t, err)
	f, err := store.GetOrCreateFile(db, "aaaabbbbccccdddd", 12345)
	require.NoError(t, err)
	pkg, err := store.GetOrCreatePackage(db, store.KindBinary, "hello", "2.10-2")
	require.NoError(t, err)
	arch, err := store.GetOrCreateArchitecture(db, "all")
	require.NoError(t, err)
	require.NoError(t, store.RecordPackageFile(db, pkg.ID, f.ID, &arch.ID))

	ts, err := store.GetOrCreateTimestamp(db, a.ID, "20210221T150011Z")
	require.NoError(t, err)
	key := store.ObservationKey{FileID: f.ID, LocationID: loc.ID, ArchitectureID: &arch.ID}
	require.NoError(t, store.RecordObservation(db, a.ID, key, ts.ID))
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestPackageVersionsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/mr/package/nonexistent", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBinaryVersionsFound(t *testing.T) {
	s, st := newTestServer(t)
	seedHello(t, st)

	req := httptest.NewRequest(http.MethodGet, "/mr/binary/hello", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	require.Equal(t, APIVersion, env.API)
	versions, ok := env.Result.([]any)
	require.True(t, ok)
	require.Equal(t, "2.10-2", versions[0])
}

func TestBinFilesWithFileinfo(t *testing.T) {
	s, st := newTestServer(t)
	seedHello(t, st)

	req := httptest.NewRequest(http.MethodGet, "/mr/binary/hello/2.10-2/binfiles?fileinfo=1", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	m, ok := env.Result.(map[string]any)
	require.True(t, ok)
	require.Contains(t, m, "fileinfo")
}

func TestTimestampResolveLatest(t *testing.T) {
	s, st := newTestServer(t)
	seedHello(t, st)

	req := httptest.NewRequest(http.MethodGet, "/mr/timestamp/debian/latest", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	require.Equal(t, "20210221T150011Z", env.Result)
}

func TestTimestampResolveUnknownArchive(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/mr/timestamp/ghost/latest", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
