// Package solver implements the buildinfo minimal timestamp cover: a
// greedy hitting-set over the timestamps at which a build's
// Installed-Build-Depends were observed.
package solver

import (
	"sort"

	"github.com/fepitre/debian-snapshot/internal/store"
)

// LocationResult is one (suite, component) location's cover result.
type LocationResult struct {
	Suite      string
	Component  string
	Timestamps []string              // chosen cover, sorted chronologically
	Covered    []store.Requirement
	Missing    []store.Requirement
}

// Solve resolves each requirement's coverage against st, then computes a
// greedy minimal cover per candidate location. suiteFilter, if non-empty,
// restricts the locations considered. Results are grouped per location,
// one entry per (suite, component) at which at least one requirement's
// package was observed, even if that location covers none of them.
func Solve(st *store.Store, archive string, reqs []store.Requirement, suiteFilter string) ([]LocationResult, error) {
	coverageByLocation := map[store.LocationKey]map[int][]string{}

	for i, req := range reqs {
		cov, err := st.ResolveCoverage(archive, req)
		if err != nil && err != store.ErrNotFound {
			return nil, err
		}
		for loc, timestamps := range cov {
			if suiteFilter != "" && loc.Suite != suiteFilter {
				continue
			}
			if coverageByLocation[loc] == nil {
				coverageByLocation[loc] = map[int][]string{}
			}
			coverageByLocation[loc][i] = timestamps
		}
	}

	locations := make([]store.LocationKey, 0, len(coverageByLocation))
	for loc := range coverageByLocation {
		locations = append(locations, loc)
	}
	sort.Slice(locations, func(i, j int) bool {
		if locations[i].Suite != locations[j].Suite {
			return locations[i].Suite < locations[j].Suite
		}
		return locations[i].Component < locations[j].Component
	})

	results := make([]LocationResult, 0, len(locations))
	for _, loc := range locations {
		results = append(results, solveOne(loc, reqs, coverageByLocation[loc]))
	}
	return results, nil
}

// solveOne runs the greedy hitting-set algorithm for a single location:
// repeatedly pick the timestamp covering the largest number of
// still-uncovered requirements, tie-breaking on the most recent timestamp.
// Terminates when every requirement is covered or no remaining timestamp
// covers anything left. A requirement present in perReq with an empty
// timestamp set (the package was observed at this location, just never
// under the requested architecture) stays uncovered forever and is
// reported missing, same as one absent from perReq altogether.
func solveOne(loc store.LocationKey, reqs []store.Requirement, perReq map[int][]string) LocationResult {
	remaining := map[int]map[string]bool{}
	for i, timestamps := range perReq {
		set := make(map[string]bool, len(timestamps))
		for _, ts := range timestamps {
			set[ts] = true
		}
		remaining[i] = set
	}

	var chosen []string
	for len(remaining) > 0 {
		counts := map[string]int{}
		for _, set := range remaining {
			for ts := range set {
				counts[ts]++
			}
		}
		if len(counts) == 0 {
			break
		}

		best, bestCount := "", -1
		for ts, c := range counts {
			if c > bestCount || (c == bestCount && ts > best) {
				best, bestCount = ts, c
			}
		}
		chosen = append(chosen, best)

		for i, set := range remaining {
			if set[best] {
				delete(remaining, i)
			}
		}
	}
	sort.Strings(chosen)

	var covered, missing []store.Requirement
	for i, req := range reqs {
		if _, ok := perReq[i]; !ok {
			missing = append(missing, req) // never observed at this location at all
			continue
		}
		if _, stillMissing := remaining[i]; stillMissing {
			missing = append(missing, req)
		} else {
			covered = append(covered, req)
		}
	}

	return LocationResult{
		Suite:      loc.Suite,
		Component:  loc.Component,
		Timestamps: chosen,
		Covered:    covered,
		Missing:    missing,
	}
}
