// Package fetch implements the HTTP fetcher: capped exponential backoff
// with jitter, redirect handling, concurrency and byte-rate caps, and an
// in-memory LRU for small index bodies. Every request is a plain GET; no
// conditional (If-None-Match / If-Modified-Since) requests are sent.
//
// The retry shape is adapted from the teacher's downloader.go
// (transientError + retry loop around Downloader.open), generalized from
// "retry N times with no backoff" to capped exponential backoff via
// github.com/cenkalti/backoff/v4, the retry library the rest of the
// retrieval pack (e.g. kalbasit-ncps, quay-claircore) reaches for.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fepitre/debian-snapshot/internal/hashio"
)

// Status-independent classification of an attempt's outcome.
type classification int

const (
	ok classification = iota
	retryable
	fatal
)

// Options configures a single Fetch call.
type Options struct {
	// ExpectedSHA256 and ExpectedSize, if set, are verified against the
	// downloaded body when Destination is set; mismatch is fatal for this
	// URL. A body buffered in memory is not checked against them.
	ExpectedSHA256 string
	ExpectedSize   int64
	// Destination, if set, streams the body through hashio.Place rather
	// than buffering it in memory.
	Destination string
	// RetainPartOnFailure keeps the ".part" file for post-mortem
	// inspection instead of deleting it when verification fails.
	RetainPartOnFailure bool
	// Cache allows this GET to be served from / stored into the
	// in-memory LRU. Only small metadata bodies should set this.
	Cache bool
}

// Result is the outcome of a successful Fetch.
type Result struct {
	Status   int
	Body     []byte // set when Destination was empty
	Path     string // set when Destination was set
	FinalURL string
	SHA256   string
	Size     int64
}

// Client fetches archive files over HTTP with retries, a concurrency cap,
// an optional byte-rate cap, and small-body caching.
type Client struct {
	HTTP *http.Client

	// PerRequestTimeout bounds a single HTTP round trip (including
	// redirects). Zero means no per-request timeout.
	PerRequestTimeout time.Duration
	// MaxElapsed bounds the total time spent retrying one URL. Zero
	// means backoff.DefaultMaxElapsedTime.
	MaxElapsed time.Duration

	sem      chan struct{}            // global concurrency cap
	hostSems map[string]chan struct{} // per-host concurrency cap
	hostCap  int

	limiter *rateLimiter
	cache   *indexCache
}

// NewClient constructs a Client. concurrency <= 0 means unlimited global
// concurrency; perHost <= 0 means unlimited per-host concurrency;
// bytesPerSec <= 0 disables the byte-rate cap; cacheSize <= 0 disables the
// small-body LRU.
func NewClient(httpClient *http.Client, concurrency, perHost int, bytesPerSec int64, cacheSize int) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		HTTP:     httpClient,
		hostSems: map[string]chan struct{}{},
		hostCap:  perHost,
	}
	if concurrency > 0 {
		c.sem = make(chan struct{}, concurrency)
	}
	if bytesPerSec > 0 {
		c.limiter = newRateLimiter(bytesPerSec)
	}
	if cacheSize > 0 {
		c.cache = newIndexCache(cacheSize)
	}
	return c
}

func (c *Client) acquire(host string) func() {
	var hostSem chan struct{}
	if c.hostCap > 0 {
		hostSem = c.hostSems[host]
		if hostSem == nil {
			hostSem = make(chan struct{}, c.hostCap)
			c.hostSems[host] = hostSem
		}
	}
	if c.sem != nil {
		c.sem <- struct{}{}
	}
	if hostSem != nil {
		hostSem <- struct{}{}
	}
	return func() {
		if hostSem != nil {
			<-hostSem
		}
		if c.sem != nil {
			<-c.sem
		}
	}
}

// Fetch retrieves url, retrying retryable failures with capped exponential
// backoff and jitter. Non-retryable failures (404, 410, 401/403, hash
// mismatch after a full read) are returned immediately.
func (c *Client) Fetch(ctx context.Context, url string, opts Options) (Result, error) {
	if opts.Cache && c.cache != nil {
		if cached, ok := c.cache.Get(url); ok {
			return Result{Status: http.StatusOK, Body: cached, FinalURL: url}, nil
		}
	}

	release := c.acquire(hostOf(url))
	defer release()

	bo := backoff.NewExponentialBackOff()
	if c.MaxElapsed > 0 {
		bo.MaxElapsedTime = c.MaxElapsed
	}
	bctx := backoff.WithContext(bo, ctx)

	var result Result
	op := func() error {
		res, class, err := c.attempt(ctx, url, opts)
		if err != nil {
			if class == retryable {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	if err := backoff.Retry(op, bctx); err != nil {
		return Result{}, err
	}

	if opts.Cache && c.cache != nil && result.Body != nil {
		c.cache.Set(url, result.Body)
	}
	return result, nil
}

func (c *Client) attempt(ctx context.Context, url string, opts Options) (Result, classification, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if c.PerRequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fatal, fmt.Errorf("fetch: new request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{}, retryable, fmt.Errorf("fetch: %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{}, fatal, fmt.Errorf("fetch: %s: http %d", url, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return Result{}, retryable, fmt.Errorf("fetch: %s: http %d", url, resp.StatusCode)
	default:
		return Result{}, fatal, fmt.Errorf("fetch: %s: unexpected http %d", url, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if c.limiter != nil {
		body = c.limiter.Wrap(body)
	}

	if opts.Destination != "" {
		res, err := hashio.Place(opts.Destination, body, hashio.PlaceOptions{
			ExpectedSHA256: opts.ExpectedSHA256,
			ExpectedSize:   opts.ExpectedSize,
			Retain:         opts.RetainPartOnFailure,
		})
		if err != nil {
			class := retryable
			if isHashOrSizeErr(err) {
				class = fatal
			}
			return Result{}, class, err
		}
		return Result{
			Status:   resp.StatusCode,
			Path:     opts.Destination,
			FinalURL: resp.Request.URL.String(),
			SHA256:   res.SHA256,
			Size:     res.Size,
		}, ok, nil
	}

	buf, err := io.ReadAll(body)
	if err != nil {
		return Result{}, retryable, fmt.Errorf("fetch: read body: %w", err)
	}
	return Result{
		Status:   resp.StatusCode,
		Body:     buf,
		FinalURL: resp.Request.URL.String(),
	}, ok, nil
}

func isHashOrSizeErr(err error) bool {
	return errors.Is(err, hashio.ErrHashMismatch) || errors.Is(err, hashio.ErrSizeMismatch)
}
