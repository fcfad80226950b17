// Package ingest implements the ingestion pipeline: the
// per-(archive, timestamp, suite, component, arch) worker that
// orchestrates the fetcher, the index parser, the layout, and the store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fepitre/debian-snapshot/internal/fetch"
	"github.com/fepitre/debian-snapshot/internal/ingesterr"
	"github.com/fepitre/debian-snapshot/internal/layout"
)

// Selection is the user's chosen scope for one ingest run.
type Selection struct {
	Archives      []string
	Suites        []string
	Components    []string
	Architectures []string
	// Timestamps holds literal timestamp values or "lo:hi" range
	// expressions; either side of a range may be empty.
	Timestamps []string
}

// Options are the per-run ingestion flags.
type Options struct {
	CheckOnly          bool
	ProvisionDBOnly    bool
	IgnoreProvisioned  bool
	SkipInstallerFiles bool
	NoCleanPartFile    bool
	Workers            int

	// OnFileDone, if set, is called once per record after the download
	// fan-out finishes with it (fetched, skipped, or failed), letting a
	// caller drive a progress bar without the pipeline depending on one.
	OnFileDone func()
}

type timestampListResponse struct {
	Result []struct {
		Timestamp string `json:"timestamp"`
	} `json:"result"`
}

// listUpstreamTimestamps fetches and parses the upstream's known timestamp
// list for archive, {upstream_root}/mr/timestamp/{archive}.
func listUpstreamTimestamps(ctx context.Context, fc *fetch.Client, lay layout.Layout, archive string) ([]string, error) {
	res, err := fc.Fetch(ctx, lay.TimestampListURL(archive), fetch.Options{Cache: true})
	if err != nil {
		return nil, ingesterr.New(ingesterr.NetworkTransient, archive, err)
	}
	var parsed timestampListResponse
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return nil, ingesterr.New(ingesterr.ParseError, archive, fmt.Errorf("decode timestamp list: %w", err))
	}
	out := make([]string, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		out = append(out, r.Timestamp)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveTimestamps expands entries (literals and "lo:hi" ranges) into a
// sorted, deduplicated list of concrete timestamps to ingest. The upstream
// timestamp list is fetched at most once, only if a range entry is
// present.
func ResolveTimestamps(ctx context.Context, fc *fetch.Client, lay layout.Layout, archive string, entries []string) ([]string, error) {
	var literals []string
	var ranges [][2]string
	for _, e := range entries {
		if lo, hi, isRange := splitRange(e); isRange {
			ranges = append(ranges, [2]string{lo, hi})
		} else {
			literals = append(literals, e)
		}
	}

	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range literals {
		add(v)
	}

	if len(ranges) > 0 {
		all, err := listUpstreamTimestamps(ctx, fc, lay, archive)
		if err != nil {
			return nil, err
		}
		for _, r := range ranges {
			lo, hi := r[0], r[1]
			for _, v := range all {
				if lo != "" && v < lo {
					continue
				}
				if hi != "" && v > hi {
					continue
				}
				add(v)
			}
		}
	}

	sort.Strings(out)
	return out, nil
}

func splitRange(entry string) (lo, hi string, isRange bool) {
	idx := strings.IndexByte(entry, ':')
	if idx < 0 {
		return "", "", false
	}
	return entry[:idx], entry[idx+1:], true
}
