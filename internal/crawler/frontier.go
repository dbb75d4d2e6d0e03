package crawler

import (
	"slices"
	"sync"
)

// URLSet is a set of normalized URLs.
type URLSet map[string]struct{}

// NewURLSet returns a set holding urls.
func NewURLSet(urls ...string) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s[u] = struct{}{}
	}
	return s
}

// Add inserts u.
func (s URLSet) Add(u string) { s[u] = struct{}{} }

// Has reports whether u is in the set.
func (s URLSet) Has(u string) bool {
	_, ok := s[u]
	return ok
}

// Len returns the number of URLs.
func (s URLSet) Len() int { return len(s) }

// Union adds every URL of other.
func (s URLSet) Union(other URLSet) {
	for u := range other {
		s[u] = struct{}{}
	}
}

// Sorted returns the URLs in lexical order. Waves are scheduled in this
// order so bundles are deterministic for a given frontier.
func (s URLSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// Frontier owns the visited and invalid sets of a crawl and derives the
// unvisited part of a candidate set. It is safe for concurrent use.
type Frontier struct {
	mu      sync.RWMutex
	visited URLSet
	invalid URLSet
}

// NewFrontier returns an empty Frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		visited: make(URLSet),
		invalid: make(URLSet),
	}
}

// Unvisited returns candidates minus the visited and invalid URLs.
// It has no side effects.
func (f *Frontier) Unvisited(candidates URLSet) URLSet {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(URLSet)
	for u := range candidates {
		if f.visited.Has(u) || f.invalid.Has(u) {
			continue
		}
		out.Add(u)
	}
	return out
}

// MarkVisited records u as visited and returns the visit count afterwards.
func (f *Frontier) MarkVisited(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.visited.Add(u)
	return len(f.visited) + len(f.invalid)
}

// Reinstate undoes MarkVisited so u can appear in a later frontier.
func (f *Frontier) Reinstate(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.visited, u)
}

// MarkInvalid moves u into the invalid set. The URL keeps counting
// toward the visit limit.
func (f *Frontier) MarkInvalid(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.visited, u)
	f.invalid.Add(u)
}

// Visits returns the number of URLs whose fetch has been consumed.
func (f *Frontier) Visits() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.visited) + len(f.invalid)
}

// Snapshot returns sorted copies of the visited and invalid sets.
func (f *Frontier) Snapshot() (visited, invalid []string) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.visited.Sorted(), f.invalid.Sorted()
}
