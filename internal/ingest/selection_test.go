package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fepitre/debian-snapshot/internal/fetch"
	"github.com/fepitre/debian-snapshot/internal/layout"
)

func TestResolveTimestampsLiteralsOnly(t *testing.T) {
	out, err := ResolveTimestamps(context.Background(), nil, layout.Layout{}, "debian",
		[]string{"20210223T150011Z", "20210221T150011Z"})
	require.NoError(t, err)
	require.Equal(t, []string{"20210221T150011Z", "20210223T150011Z"}, out)
}

func TestResolveTimestampsRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]string{
				{"timestamp": "20210101T000000Z"},
				{"timestamp": "20210102T000000Z"},
				{"timestamp": "20210103T000000Z"},
				{"timestamp": "20210104T000000Z"},
			},
		})
	}))
	defer srv.Close()

	lay := layout.New(srv.URL, t.TempDir())
	fc := fetch.NewClient(nil, 0, 0, 0, 0)

	out, err := ResolveTimestamps(context.Background(), fc, lay, "debian", []string{"20210102T000000Z:20210103T000000Z"})
	require.NoError(t, err)
	require.Equal(t, []string{"20210102T000000Z", "20210103T000000Z"}, out)
}

func TestSplitRange(t *testing.T) {
	lo, hi, isRange := splitRange("20210101T000000Z:20210102T000000Z")
	require.True(t, isRange)
	require.Equal(t, "20210101T000000Z", lo)
	require.Equal(t, "20210102T000000Z", hi)

	_, _, isRange = splitRange("20210101T000000Z")
	require.False(t, isRange)
}

func TestDirAndBaseOf(t *testing.T) {
	require.Equal(t, "pool/main/h/hello", dirOf("pool/main/h/hello/hello_2.10-2_all.deb"))
	require.Equal(t, "hello_2.10-2_all.deb", baseOf("pool/main/h/hello/hello_2.10-2_all.deb"))
}
