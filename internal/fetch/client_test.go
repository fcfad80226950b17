package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchBuffersSmallBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Package: hello\n"))
	}))
	defer srv.Close()

	c := NewClient(nil, 4, 2, 0, 16)
	res, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Package: hello\n", string(res.Body))
}

func TestFetchStreamsToDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "payload")

	c := NewClient(nil, 4, 2, 0, 0)
	res, err := c.Fetch(context.Background(), srv.URL, Options{Destination: dst, ExpectedSize: 11})
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Size)
}

func TestFetch404IsFatalNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(nil, 4, 2, 0, 0)
	_, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestFetch500RetriesThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(nil, 4, 2, 0, 0)
	c.MaxElapsed = 0
	res, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.Body))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestFetchCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("cacheme"))
	}))
	defer srv.Close()

	c := NewClient(nil, 4, 2, 0, 16)
	_, err := c.Fetch(context.Background(), srv.URL, Options{Cache: true})
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), srv.URL, Options{Cache: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
