package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/wavecrawl/internal/model"
)

// Defaults of the crawl configuration.
const (
	DefaultVisitLimit = 10000
	DefaultWorkers    = 10
	DefaultCooldown   = 60 * time.Second
)

// State is the state of the wave loop.
type State int32

const (
	// StateRunning means waves are being scheduled.
	StateRunning State = iota

	// StateStopping means the visit limit was exceeded; the current wave
	// winds down and no new wave starts.
	StateStopping

	// StateDone means the loop has ended.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// WaveInfo is passed to the wave observer before each wave starts.
type WaveInfo struct {
	// Number is the 1-based wave number.
	Number int

	// Frontier lists the URLs scheduled in this wave, sorted.
	Frontier []string

	// Visits is the visit count before the wave.
	Visits int
}

// Crawler crawls one domain breadth-first, one wave at a time.
// A Crawler holds configuration only and can run several crawls, even
// concurrently.
type Crawler struct {
	resolver   PageResolver
	predicate  Predicate
	scope      Scope
	visitLimit int
	workers    int
	retention  model.Retention
	cooldown   time.Duration
	maxRetries int
	logger     *slog.Logger
	observer   func(WaveInfo)
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithVisitLimit sets how many URLs may be visited before the crawl stops.
func WithVisitLimit(limit int) Option {
	return func(c *Crawler) {
		if limit > 0 {
			c.visitLimit = limit
		}
	}
}

// WithWorkers sets the number of concurrent workers per wave.
func WithWorkers(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithRetention selects how much of each page is kept after classification.
func WithRetention(r model.Retention) Option {
	return func(c *Crawler) {
		c.retention = r
	}
}

// WithGreedy keeps the full document of every page when greedy is true.
func WithGreedy(greedy bool) Option {
	return WithRetention(model.RetentionFor(greedy))
}

// WithCooldown sets the pause that follows a timeout.
func WithCooldown(d time.Duration) Option {
	return func(c *Crawler) {
		if d >= 0 {
			c.cooldown = d
		}
	}
}

// WithMaxRetries caps how many times one URL is reinstated after a
// timeout before it is marked invalid. Zero means no cap.
func WithMaxRetries(n int) Option {
	return func(c *Crawler) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithPredicate sets the target classification predicate.
func WithPredicate(p Predicate) Option {
	return func(c *Crawler) {
		if p != nil {
			c.predicate = p
		}
	}
}

// WithScope restricts the followed URLs with path globs.
func WithScope(s Scope) Option {
	return func(c *Crawler) {
		c.scope = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWaveObserver registers fn, called before every wave.
func WithWaveObserver(fn func(WaveInfo)) Option {
	return func(c *Crawler) {
		c.observer = fn
	}
}

// New returns a Crawler that resolves pages with resolver.
func New(resolver PageResolver, opts ...Option) *Crawler {
	c := &Crawler{
		resolver:   resolver,
		predicate:  MatchAll,
		visitLimit: DefaultVisitLimit,
		workers:    DefaultWorkers,
		retention:  model.RetentionFree,
		cooldown:   DefaultCooldown,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// crawlState is the mutable state of one crawl. Every shared container
// has its own lock.
type crawlState struct {
	frontier *Frontier

	pagesMu sync.Mutex
	targets map[string]*model.Page
	others  map[string]*model.Page

	discoveredMu sync.Mutex
	discovered   URLSet

	retriesMu sync.Mutex
	retries   map[string]int

	timeouts atomic.Int64
	state    atomic.Int32
}

func newCrawlState() *crawlState {
	return &crawlState{
		frontier:   NewFrontier(),
		targets:    make(map[string]*model.Page),
		others:     make(map[string]*model.Page),
		discovered: make(URLSet),
		retries:    make(map[string]int),
	}
}

func (s *crawlState) setState(st State) { s.state.Store(int32(st)) }

func (s *crawlState) currentState() State { return State(s.state.Load()) }

func (s *crawlState) addDiscovered(urls ...string) {
	s.discoveredMu.Lock()
	defer s.discoveredMu.Unlock()

	for _, u := range urls {
		s.discovered.Add(u)
	}
}

// takeDiscovered returns the accumulator and replaces it with an empty set.
func (s *crawlState) takeDiscovered() URLSet {
	s.discoveredMu.Lock()
	defer s.discoveredMu.Unlock()

	out := s.discovered
	s.discovered = make(URLSet)
	return out
}

func (s *crawlState) record(page *model.Page) {
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()

	if page.IsTarget() {
		s.targets[page.URL()] = page
		return
	}
	s.others[page.URL()] = page
}

// retry counts one more retry of u and returns the new count.
func (s *crawlState) retry(u string) int {
	s.retriesMu.Lock()
	defer s.retriesMu.Unlock()

	s.retries[u]++
	return s.retries[u]
}

// Crawl crawls the domain of seed and returns the frozen result.
//
// The seed page is resolved first and its children form the first wave.
// Crawl returns an error only when the seed is malformed or cannot be
// resolved. When ctx is cancelled the partial result is returned with
// StopReason set to model.StopCancelled and a nil error.
func (c *Crawler) Crawl(ctx context.Context, seed string) (*model.CrawlResult, error) {
	result := model.NewCrawlResult(strings.TrimSpace(seed))
	result.StartedAt = time.Now()

	seedURL, err := model.NormalizeURL(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSeedUnresolvable, err)
	}
	result.Seed = seedURL

	logger := c.logger.With(slog.String("seed", seedURL))
	logger.Info("crawl started",
		slog.Int("visit_limit", c.visitLimit),
		slog.Int("workers", c.workers),
		slog.String("retention", c.retention.String()))

	st := newCrawlState()

	doc, err := c.resolver.Resolve(ctx, seedURL)
	if err != nil {
		if ctx.Err() != nil {
			return c.finish(result, st, model.StopCancelled), nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSeedUnresolvable, seedURL, err)
	}
	candidates := NewURLSet(c.inScope(doc.ChildURLs)...)

	reason := model.StopExhausted
	for {
		if ctx.Err() != nil {
			reason = model.StopCancelled
			break
		}

		unvisited := st.frontier.Unvisited(candidates)
		if unvisited.Len() == 0 {
			reason = model.StopExhausted
			break
		}
		visits := st.frontier.Visits()
		if visits >= c.visitLimit {
			reason = model.StopVisitLimit
			break
		}

		result.Waves++
		items := unvisited.Sorted()
		logger.Debug("wave started",
			slog.Int("wave", result.Waves),
			slog.Int("frontier", len(items)),
			slog.Int("visits", visits))
		if c.observer != nil {
			c.observer(WaveInfo{Number: result.Waves, Frontier: items, Visits: visits})
		}

		st.takeDiscovered()
		pool := NewWorkerPool(c.workers)
		pool.Run(ctx, items, func(ctx context.Context, u string) {
			c.visitOne(ctx, st, pool, logger, u)
		})
		candidates = st.takeDiscovered()

		if ctx.Err() != nil {
			reason = model.StopCancelled
			break
		}
		if st.currentState() == StateStopping {
			reason = model.StopVisitLimit
			break
		}
	}

	res := c.finish(result, st, reason)
	logger.Info("crawl finished",
		slog.String("reason", string(reason)),
		slog.Int("visited", len(res.Visited)),
		slog.Int("invalid", len(res.Invalid)),
		slog.Int("targets", len(res.TargetPages)),
		slog.Int("waves", res.Waves),
		slog.Duration("elapsed", res.Duration()))
	return res, nil
}

// finish freezes the crawl state into result.
func (c *Crawler) finish(result *model.CrawlResult, st *crawlState, reason model.StopReason) *model.CrawlResult {
	st.setState(StateDone)

	result.Visited, result.Invalid = st.frontier.Snapshot()
	st.pagesMu.Lock()
	result.TargetPages = st.targets
	result.OtherPages = st.others
	st.pagesMu.Unlock()
	result.Timeouts = int(st.timeouts.Load())
	result.StopReason = reason
	result.FinishedAt = time.Now()
	return result
}

// visitOne resolves a single URL and applies the outcome to the crawl state.
func (c *Crawler) visitOne(ctx context.Context, st *crawlState, pool *WorkerPool, logger *slog.Logger, u string) {
	if visits := st.frontier.MarkVisited(u); visits > c.visitLimit {
		if st.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
			logger.Info("visit limit reached", slog.Int("visits", visits))
		}
		pool.Stop()
	}

	doc, err := c.resolver.Resolve(ctx, u)
	switch {
	case err == nil:
		if doc.URL != u {
			requested := *doc
			requested.URL = u
			doc = &requested
		}
		page := model.NewPage(doc, c.predicate(doc), c.retention)
		st.record(page)
		st.addDiscovered(c.inScope(doc.ChildURLs)...)
		logger.Debug("page visited",
			slog.String("url", u),
			slog.String("class", page.Classification()),
			slog.Int("children", len(doc.ChildURLs)))

	case ctx.Err() != nil:
		// Interrupted mid-fetch: the page was never consumed.
		st.frontier.Reinstate(u)

	case isRetryable(err):
		c.backoff(ctx, st, logger, u, err)

	default:
		st.frontier.MarkInvalid(u)
		logger.Debug("invalid URL", slog.String("url", u), slog.String("error", err.Error()))
	}
}

// backoff reinstates u so it shows up in the next frontier, then blocks
// this worker for the cooldown. Every retryable failure triggers the same
// fixed pause.
func (c *Crawler) backoff(ctx context.Context, st *crawlState, logger *slog.Logger, u string, err error) {
	st.timeouts.Add(1)

	if n := st.retry(u); c.maxRetries > 0 && n > c.maxRetries {
		st.frontier.MarkInvalid(u)
		logger.Warn("retries exhausted", slog.String("url", u), slog.Int("retries", n-1))
		return
	}

	st.frontier.Reinstate(u)
	st.addDiscovered(u)

	logger.Warn("retryable failure, cooling down",
		slog.String("url", u),
		slog.String("error", errorText(err)),
		slog.Duration("cooldown", c.cooldown))

	if c.cooldown <= 0 {
		return
	}
	timer := time.NewTimer(c.cooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// inScope filters urls through the configured scope.
func (c *Crawler) inScope(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if c.scope.Allows(u) {
			out = append(out, u)
		}
	}
	return out
}

func errorText(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("HTTP %d", statusErr.StatusCode)
	}
	return err.Error()
}
