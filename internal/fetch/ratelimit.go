package fetch

import (
	"io"
	"net/url"
	"time"
)

// rateLimiter throttles reads to a target bytes/sec. Adapted from the
// shape of google-oss-rebuild's httpx.RateLimitedClient (a BasicClient
// decorator gating on a time.Ticker), applied to response bodies instead
// of whole requests so a single large pool-file download can be
// throttled mid-stream.
type rateLimiter struct {
	bytesPerSec int64
}

func newRateLimiter(bytesPerSec int64) *rateLimiter {
	return &rateLimiter{bytesPerSec: bytesPerSec}
}

// Wrap returns an io.Reader over r that sleeps proportionally to bytes
// read once per chunk, bounding the effective transfer rate.
func (l *rateLimiter) Wrap(r io.Reader) io.Reader {
	return &throttledReader{r: r, bytesPerSec: l.bytesPerSec}
}

type throttledReader struct {
	r           io.Reader
	bytesPerSec int64
}

func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 && t.bytesPerSec > 0 {
		wait := time.Duration(n) * time.Second / time.Duration(t.bytesPerSec)
		time.Sleep(wait)
	}
	return n, err
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
