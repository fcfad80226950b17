// Package api implements the read-only provenance query layer and the
// buildinfo solver endpoint over stdlib net/http. Routing uses Go 1.22's
// http.ServeMux method+pattern matching rather than a router framework:
// the mux itself stays minimal and the interesting logic lives in
// internal/store and internal/solver.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fepitre/debian-snapshot/internal/control"
	"github.com/fepitre/debian-snapshot/internal/layout"
	"github.com/fepitre/debian-snapshot/internal/metrics"
	"github.com/fepitre/debian-snapshot/internal/solver"
	"github.com/fepitre/debian-snapshot/internal/store"
)

// APIVersion is carried in every response's "_api" field.
const APIVersion = "1.0"

// Server serves the /mr query API over a read-only Store.
type Server struct {
	Store  *store.Store
	Layout layout.Layout
	mux    *http.ServeMux
}

// New builds a Server with its routes registered.
func New(st *store.Store, lay layout.Layout) *Server {
	s := &Server{Store: st, Layout: lay, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /mr/package", s.wrapMetrics("package_list", s.handleSourcePackages))
	s.mux.HandleFunc("GET /mr/package/{p}", s.wrapMetrics("package_versions", s.handlePackageVersions))
	s.mux.HandleFunc("GET /mr/package/{p}/{v}/srcfiles", s.wrapMetrics("srcfiles", s.handleSrcFiles))
	s.mux.HandleFunc("GET /mr/binary/{p}", s.wrapMetrics("binary_versions", s.handleBinaryVersions))
	s.mux.HandleFunc("GET /mr/binary/{p}/{v}/binfiles", s.wrapMetrics("binfiles", s.handleBinFiles))
	s.mux.HandleFunc("GET /mr/file", s.wrapMetrics("file_list", s.handleFileList))
	s.mux.HandleFunc("GET /mr/file/{sha256}/info", s.wrapMetrics("file_info", s.handleFileInfo))
	s.mux.HandleFunc("GET /mr/file/{sha256}/download", s.wrapMetrics("file_download", s.handleFileDownload))
	s.mux.HandleFunc("GET /mr/timestamp/{archive}", s.wrapMetrics("timestamp_list", s.handleTimestampList))
	s.mux.HandleFunc("GET /mr/timestamp/{archive}/{value}", s.wrapMetrics("timestamp_resolve", s.handleTimestampResolve))
	s.mux.HandleFunc("POST /mr/buildinfo", s.wrapMetrics("buildinfo", s.handleBuildinfo))
}

// envelope is the "{"_api": version, "_comment": string, ...}" wrapper
// every response carries, matching snapshot.debian.org's own machine-readable
// API shape.
type envelope struct {
	API     string `json:"_api"`
	Comment string `json:"_comment"`
	Result  any    `json:"result"`
}

// handleRoot answers the bare "/" with a version banner, letting a load
// balancer or an operator's curl confirm the service is up without hitting
// a real query endpoint.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, "debian-snapshot query API", map[string]string{"version": APIVersion})
}

func writeJSON(w http.ResponseWriter, comment string, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{API: APIVersion, Comment: comment, Result: result})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{API: APIVersion, Comment: msg, Result: nil})
}

func mapStoreErr(w http.ResponseWriter, err error) {
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "store error")
}

// wrapMetrics records a request counter per route+status-class, matching
// the prometheus/client_golang wiring vjache-cie's cmd/cie/index.go uses
// for promhttp.Handler.
func (s *Server) wrapMetrics(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.QueryRequests.WithLabelValues(route, statusClass(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func (s *Server) handleSourcePackages(w http.ResponseWriter, r *http.Request) {
	names, err := s.Store.ListSourcePackageNames()
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, "source package names", names)
}

func (s *Server) handlePackageVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.Store.PackageVersions(store.KindSource, r.PathValue("p"))
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, fmt.Sprintf("versions of source package %s", r.PathValue("p")), versions)
}

func (s *Server) handleBinaryVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.Store.PackageVersions(store.KindBinary, r.PathValue("p"))
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, fmt.Sprintf("versions of binary package %s", r.PathValue("p")), versions)
}

func (s *Server) handleSrcFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.Store.PackageFiles(store.KindSource, r.PathValue("p"), r.PathValue("v"))
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	s.writeFileList(w, files, r.URL.Query().Get("fileinfo") == "1")
}

func (s *Server) handleBinFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.Store.PackageFiles(store.KindBinary, r.PathValue("p"), r.PathValue("v"))
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	s.writeFileList(w, files, r.URL.Query().Get("fileinfo") == "1")
}

func (s *Server) writeFileList(w http.ResponseWriter, files []store.PackageFileEntry, expand bool) {
	if !expand {
		writeJSON(w, "file list", files)
		return
	}
	fileinfo := map[string][]store.FileObservation{}
	for _, f := range files {
		obs, err := s.Store.FileInfo(f.SHA256)
		if err != nil && err != store.ErrNotFound {
			writeError(w, http.StatusInternalServerError, "store error")
			return
		}
		fileinfo[f.SHA256] = obs
	}
	writeJSON(w, "file list with fileinfo expansion", map[string]any{
		"files":    files,
		"fileinfo": fileinfo,
	})
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	hashes, err := s.Store.AllFileHashes()
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, "all known sha256", hashes)
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	obs, err := s.Store.FileInfo(r.PathValue("sha256"))
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, "observations of this file", obs)
}

func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	sha256 := r.PathValue("sha256")
	if _, err := s.Store.FileInfo(sha256); err != nil {
		mapStoreErr(w, err)
		return
	}
	http.Redirect(w, r, "file://"+s.Layout.ByHashPath(sha256), http.StatusFound)
}

func (s *Server) handleTimestampList(w http.ResponseWriter, r *http.Request) {
	values, err := s.Store.TimestampsForArchive(r.PathValue("archive"))
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, fmt.Sprintf("timestamps for %s", r.PathValue("archive")), values)
}

func (s *Server) handleTimestampResolve(w http.ResponseWriter, r *http.Request) {
	archive, value := r.PathValue("archive"), r.PathValue("value")
	var (
		resolved string
		err      error
	)
	if value == "latest" {
		resolved, err = s.Store.LatestTimestamp(archive)
	} else {
		resolved, err = s.Store.ClosestTimestamp(archive, value)
	}
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, fmt.Sprintf("closest timestamp to %s for %s", value, archive), resolved)
}

const maxBuildinfoUpload = 8 << 20 // generous for a .buildinfo control file

func (s *Server) handleBuildinfo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBuildinfoUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("buildinfo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing buildinfo form field")
		return
	}
	defer file.Close()

	bi, err := control.LoadBuildinfo(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unparseable buildinfo")
		return
	}
	deps, err := bi.BuildDeps()
	if err != nil {
		writeError(w, http.StatusBadRequest, "unparseable Installed-Build-Depends")
		return
	}

	reqs := make([]store.Requirement, 0, len(deps))
	for _, d := range deps {
		kind := store.KindBinary
		arch := d.Arch
		if arch == "source" {
			kind, arch = store.KindSource, ""
		}
		reqs = append(reqs, store.Requirement{Kind: kind, Name: d.Name, Version: d.Version, Architecture: arch})
	}

	archive := r.URL.Query().Get("archive")
	if archive == "" {
		archive = "debian"
	}
	suiteFilter := r.URL.Query().Get("suite_name")

	results, err := solver.Solve(s.Store, archive, reqs, suiteFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "solver error")
		return
	}
	writeJSON(w, "minimal timestamp cover per location", results)
}
