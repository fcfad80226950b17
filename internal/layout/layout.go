// Package layout implements the deterministic bijection between logical
// repository coordinates (archive, timestamp, suite, component, arch,
// file) and both upstream URLs and on-disk paths.
//
// Grounded on the teacher's pool.go (poolPrefix/IncludeSources/IncludeDeb
// path construction) and archive.go's by-hash object path derivation,
// generalized from "publish a file I built" to "resolve the path a
// downloaded file belongs at".
package layout

import (
	"path"
	"strings"
)

// SentinelTimestamp is the non-temporal "multi-version" marker used by
// archives such as QubesOS that don't carry real point-in-time snapshots.
const SentinelTimestamp = "99990101T000000Z"

// Layout derives URLs and on-disk paths for one (root, upstream) pair.
type Layout struct {
	UpstreamRoot string // e.g. "https://snapshot.debian.org"
	Root         string // local on-disk mirror root
}

// New constructs a Layout.
func New(upstreamRoot, root string) Layout {
	return Layout{UpstreamRoot: strings.TrimRight(upstreamRoot, "/"), Root: strings.TrimRight(root, "/")}
}

// IsFlat reports whether archive uses the sentinel timestamp and a flat
// (no dists/{suite}) pool layout, as QubesOS does.
func IsFlat(timestamp string) bool {
	return timestamp == SentinelTimestamp
}

// UpstreamURL returns the upstream URL for an archive-relative repoPath at
// a given (archive, timestamp).
func (l Layout) UpstreamURL(archive, timestamp, repoPath string) string {
	return l.UpstreamRoot + "/" + path.Join("archive", archive, timestamp, repoPath)
}

// TimestampListURL returns the upstream URL that lists every known
// timestamp for archive.
func (l Layout) TimestampListURL(archive string) string {
	return l.UpstreamRoot + "/" + path.Join("mr", "timestamp", archive)
}

// OnDiskPath returns the canonical on-disk path for an archive-relative
// repoPath at a given (archive, timestamp). This is the path metadata
// files live at, and the path pool files are hard-linked to from by-hash.
func (l Layout) OnDiskPath(archive, timestamp, repoPath string) string {
	return path.Join(l.Root, "archive", archive, timestamp, repoPath)
}

// ByHashPath returns the single physical location of the content with the
// given sha256, shared across every timestamp that observed it.
func (l Layout) ByHashPath(sha256 string) string {
	return path.Join(l.Root, "by-hash", sha256[0:2], sha256)
}

// LockPath returns the advisory lock file path for an archive.
func (l Layout) LockPath(archive string) string {
	return path.Join(l.Root, ".locks", archive+".lock")
}

// ReleasePath returns the archive-relative path of the Release (or
// InRelease) file for a suite.
func ReleasePath(suite string, inRelease bool) string {
	name := "Release"
	if inRelease {
		name = "InRelease"
	}
	return path.Join("dists", suite, name)
}

// IndexPath returns the archive-relative path of the Packages or Sources
// index for (suite, component, arch).
//
//	arch == "source"  -> dists/{suite}/{component}/source/Sources{.ext}
//	otherwise         -> dists/{suite}/{component}/binary-{arch}/Packages{.ext}
func IndexPath(suite, component, arch, ext string) string {
	if arch == "source" {
		return path.Join("dists", suite, component, "source", "Sources"+ext)
	}
	return path.Join("dists", suite, component, "binary-"+arch, "Packages"+ext)
}

// InstallerSHA256SUMSPath returns the archive-relative path of the
// installer checksums file for an arch.
func InstallerSHA256SUMSPath(suite, arch string) string {
	return path.Join("dists", suite, "main", "installer-"+arch, "current", "images", "SHA256SUMS")
}

// PoolPath returns the archive-relative pool path for a source package's
// files, mirroring the teacher's poolPrefix (first letter of the source
// name, or "lib"+4th letter for "lib*" sources per Debian convention).
func PoolPath(component, sourceName, filename string) string {
	return path.Join("pool", component, poolPrefix(sourceName), sourceName, filename)
}

func poolPrefix(source string) string {
	if strings.HasPrefix(source, "lib") && len(source) > 3 {
		return source[0:4]
	}
	if len(source) == 0 {
		return source
	}
	return source[0:1]
}
