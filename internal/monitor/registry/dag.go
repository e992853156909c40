package registry

import "github.com/watchvane/sentinel/internal/monitor/model"

// depsLookup resolves an id's direct dependency list, as recorded in the
// registry at validation time (the candidate entry's own patched
// dependencies are passed in separately by the caller for the id being
// validated, since it may not be in store yet in the final form).
type depsLookup func(id string) []string

// CreatesCycle reports whether adding/updating candidateID with
// candidateDeps would introduce a cycle anywhere in the transitive
// closure reachable from candidateID.
//
// Implements the corpus-wide caution of spec.md §9: a single visited set
// is shared across the ENTIRE call, not reset per branch — resetting it
// between sibling dependency edges can miss a cycle formed through a
// shared ancestor that a per-branch visited set would re-walk as if
// fresh and never flag.
func CreatesCycle(candidateID string, candidateDeps []string, lookup depsLookup) bool {
	visited := make(map[string]bool)
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == candidateID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, next := range lookup(id) {
			if walk(next) {
				return true
			}
		}
		return false
	}

	for _, d := range candidateDeps {
		if walk(d) {
			return true
		}
	}
	return false
}

// lookupFromEntries builds a depsLookup closure over a snapshot of
// entries, substituting overrideID's deps with overrideDeps (the patch
// being validated, which may not be persisted yet).
func lookupFromEntries(entries []*model.Entry, overrideID string, overrideDeps []string) depsLookup {
	byID := make(map[string][]string, len(entries))
	for _, e := range entries {
		byID[e.ID] = e.Dependencies
	}
	if overrideID != "" {
		byID[overrideID] = overrideDeps
	}
	return func(id string) []string { return byID[id] }
}
