package model

import (
	"sort"
	"time"
)

// StopReason explains why a crawl ended.
type StopReason string

const (
	// StopExhausted means no unvisited in-scope URL was left.
	StopExhausted StopReason = "exhausted"

	// StopVisitLimit means the visit limit was reached.
	StopVisitLimit StopReason = "visit_limit"

	// StopCancelled means the crawl was interrupted; the result is partial.
	StopCancelled StopReason = "cancelled"

	// StopFailed means the crawl could not start (unresolvable seed).
	StopFailed StopReason = "failed"
)

// CrawlResult is the frozen state of a finished crawl, handed to exporters
// and the results database.
type CrawlResult struct {
	// ID is assigned by the results database when the crawl is saved.
	ID string `json:"id,omitempty"`

	// Domain is the seed domain as given by the user.
	Domain string `json:"domain"`

	// Seed is the normalized seed URL.
	Seed string `json:"seed"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Visited holds every successfully resolved URL, sorted.
	Visited []string `json:"visited"`

	// Invalid holds every URL that failed non-retryably, sorted.
	Invalid []string `json:"invalid"`

	// TargetPages and OtherPages partition the visited pages by the predicate.
	TargetPages map[string]*Page `json:"-"`
	OtherPages  map[string]*Page `json:"-"`

	// Waves is the number of waves started.
	Waves int `json:"waves"`

	// Timeouts counts retryable failures that triggered a cooldown.
	Timeouts int `json:"timeouts"`

	StopReason StopReason `json:"stop_reason"`

	// Error holds the message of the error that ended a failed crawl.
	Error string `json:"error,omitempty"`
}

// NewCrawlResult returns an empty result for domain.
func NewCrawlResult(domain string) *CrawlResult {
	return &CrawlResult{
		Domain:      domain,
		Visited:     make([]string, 0),
		Invalid:     make([]string, 0),
		TargetPages: make(map[string]*Page),
		OtherPages:  make(map[string]*Page),
	}
}

// Targets returns the target pages sorted by URL.
func (r *CrawlResult) Targets() []*Page {
	return sortedPages(r.TargetPages)
}

// Others returns the non-target pages sorted by URL.
func (r *CrawlResult) Others() []*Page {
	return sortedPages(r.OtherPages)
}

// Pages returns the target pages, followed by the other pages when
// includeOthers is set.
func (r *CrawlResult) Pages(includeOthers bool) []*Page {
	pages := r.Targets()
	if includeOthers {
		pages = append(pages, r.Others()...)
	}
	return pages
}

// Duration returns the wall-clock time of the crawl.
func (r *CrawlResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Partial reports whether the crawl was interrupted before finishing.
func (r *CrawlResult) Partial() bool {
	return r.StopReason == StopCancelled
}

func sortedPages(m map[string]*Page) []*Page {
	pages := make([]*Page, 0, len(m))
	for _, p := range m {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].URL() < pages[j].URL()
	})
	return pages
}
