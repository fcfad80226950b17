package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpstreamAndOnDiskPaths(t *testing.T) {
	l := New("https://snapshot.debian.org", "/srv/mirror")

	assert.Equal(t,
		"https://snapshot.debian.org/archive/debian/20210221T150011Z/dists/bullseye/Release",
		l.UpstreamURL("debian", "20210221T150011Z", "dists/bullseye/Release"))

	assert.Equal(t,
		"/srv/mirror/archive/debian/20210221T150011Z/dists/bullseye/Release",
		l.OnDiskPath("debian", "20210221T150011Z", "dists/bullseye/Release"))
}

func TestByHashPath(t *testing.T) {
	l := New("https://snapshot.debian.org", "/srv/mirror")
	got := l.ByHashPath("aaaabbbbcccc")
	assert.Equal(t, "/srv/mirror/by-hash/aa/aaaabbbbcccc", got)
}

func TestIndexPath(t *testing.T) {
	assert.Equal(t, "dists/bullseye/main/binary-all/Packages.xz", IndexPath("bullseye", "main", "all", ".xz"))
	assert.Equal(t, "dists/bullseye/main/source/Sources.xz", IndexPath("bullseye", "main", "source", ".xz"))
}

func TestPoolPrefix(t *testing.T) {
	assert.Equal(t, "pool/main/h/hello/hello_2.10-2_all.deb", PoolPath("main", "hello", "hello_2.10-2_all.deb"))
	assert.Equal(t, "pool/main/libc/libc6/libc6_2.31-13_amd64.deb", PoolPath("main", "libc6", "libc6_2.31-13_amd64.deb"))
}

func TestIsFlat(t *testing.T) {
	assert.True(t, IsFlat(SentinelTimestamp))
	assert.False(t, IsFlat("20210221T150011Z"))
}
