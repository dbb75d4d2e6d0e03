package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/wavecrawl/internal/model"
)

const shop = "https://shop.example"

// fakeSite is an in-memory PageResolver. links maps a URL to its children;
// failures holds errors returned, one per request, before the URL succeeds.
type fakeSite struct {
	mu       sync.Mutex
	links    map[string][]string
	failures map[string][]error
	calls    map[string]int
	delay    time.Duration
	onVisit  func(url string)
}

func newFakeSite(links map[string][]string) *fakeSite {
	return &fakeSite{
		links:    links,
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeSite) Resolve(ctx context.Context, u string) (*model.Document, error) {
	f.mu.Lock()
	f.calls[u]++
	var failure error
	if errs := f.failures[u]; len(errs) > 0 {
		failure = errs[0]
		f.failures[u] = errs[1:]
	}
	children, ok := f.links[u]
	onVisit := f.onVisit
	f.mu.Unlock()

	if onVisit != nil {
		onVisit(u)
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, &StatusError{URL: u, StatusCode: http.StatusNotFound}
	}
	return &model.Document{
		URL:         u,
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Title:       "Title of " + u,
		Body:        []byte(u),
		ChildURLs:   slices.Clone(children),
	}, nil
}

func (f *fakeSite) callCount(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

// assertConsistent checks the invariants every finished crawl must hold.
func assertConsistent(t *testing.T, result *model.CrawlResult) {
	t.Helper()

	for _, u := range result.Invalid {
		if slices.Contains(result.Visited, u) {
			t.Errorf("%s is both visited and invalid", u)
		}
	}
	for _, pages := range []map[string]*model.Page{result.TargetPages, result.OtherPages} {
		for u := range pages {
			if !slices.Contains(result.Visited, u) {
				t.Errorf("classified page %s is not visited", u)
			}
		}
	}
	for u := range result.TargetPages {
		if _, ok := result.OtherPages[u]; ok {
			t.Errorf("%s is both target and other", u)
		}
	}
}

func TestCrawl(t *testing.T) {
	t.Parallel()

	t.Run("five page domain", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string][]string{
			shop + "/":        {shop + "/p/1", shop + "/p/2", shop + "/about", shop + "/contact"},
			shop + "/p/1":     {shop + "/", shop + "/p/2"},
			shop + "/p/2":     {shop + "/", shop + "/p/1"},
			shop + "/about":   {shop + "/"},
			shop + "/contact": {shop + "/", shop + "/about"},
		})
		c := New(site, WithWorkers(3), WithPredicate(PathPredicate("/p/*")), WithCooldown(0))

		result, err := c.Crawl(context.Background(), "shop.example")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Visited) != 5 {
			t.Errorf("expected 5 visited URLs, got %d: %v", len(result.Visited), result.Visited)
		}
		if len(result.TargetPages) != 2 {
			t.Errorf("expected 2 targets, got %d", len(result.TargetPages))
		}
		if len(result.OtherPages) != 3 {
			t.Errorf("expected 3 others, got %d", len(result.OtherPages))
		}
		if len(result.Invalid) != 0 {
			t.Errorf("expected no invalid URLs, got %v", result.Invalid)
		}
		if result.StopReason != model.StopExhausted {
			t.Errorf("expected exhausted, got %s", result.StopReason)
		}
		if result.Seed != shop+"/" || result.Domain != "shop.example" {
			t.Errorf("unexpected seed/domain: %q %q", result.Seed, result.Domain)
		}
		for u := range site.links {
			// The seed is fetched once up front and once when linked back.
			want := 1
			if u == shop+"/" {
				want = 2
			}
			if got := site.callCount(u); got != want {
				t.Errorf("%s resolved %d times, want %d", u, got, want)
			}
		}
		assertConsistent(t, result)
	})

	t.Run("free retention drops documents", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string][]string{
			shop + "/":  {shop + "/a"},
			shop + "/a": nil,
		})
		result, err := New(site).Crawl(context.Background(), shop)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		page := result.TargetPages[shop+"/a"]
		if page == nil || page.Retained() || page.Title() != "Title of "+shop+"/a" {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("greedy retention keeps documents", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string][]string{
			shop + "/":  {shop + "/a"},
			shop + "/a": {shop + "/"},
		})
		result, err := New(site, WithGreedy(true)).Crawl(context.Background(), shop)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		page := result.TargetPages[shop+"/a"]
		if page == nil || !page.Retained() || len(page.ChildURLs()) != 1 {
			t.Errorf("expected retained document, got %+v", page)
		}
	})

	t.Run("non-retryable failures become invalid", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string][]string{
			shop + "/":   {shop + "/ok", shop + "/gone", shop + "/down"},
			shop + "/ok": {shop + "/gone"},
		})
		site.failures[shop+"/down"] = []error{fmt.Errorf("%w: refused", ErrUnreachable)}

		result, err := New(site, WithCooldown(0)).Crawl(context.Background(), shop)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !slices.Equal(result.Invalid, []string{shop + "/down", shop + "/gone"}) {
			t.Errorf("unexpected invalid URLs: %v", result.Invalid)
		}
		if !slices.Equal(result.Visited, []string{shop + "/ok"}) {
			t.Errorf("unexpected visited URLs: %v", result.Visited)
		}
		if site.callCount(shop+"/gone") != 1 {
			t.Error("invalid URL must not be requested again")
		}
		assertConsistent(t, result)
	})

	t.Run("scope filters children", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string][]string{
			shop + "/":         {shop + "/p/1", shop + "/cart/add"},
			shop + "/p/1":      nil,
			shop + "/cart/add": nil,
		})
		result, err := New(site, WithScope(Scope{Ignore: []string{"/cart/*"}})).Crawl(context.Background(), shop)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(result.Visited, []string{shop + "/p/1"}) {
			t.Errorf("unexpected visited URLs: %v", result.Visited)
		}
	})
}

func TestCrawlTimeoutReinstatesURL(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string][]string{
		shop + "/":     {shop + "/a", shop + "/b", shop + "/slow"},
		shop + "/a":    nil,
		shop + "/b":    nil,
		shop + "/slow": nil,
	})
	site.failures[shop+"/slow"] = []error{fmt.Errorf("%w: %s", ErrTimeout, shop+"/slow")}

	var mu sync.Mutex
	var waves []WaveInfo
	const cooldown = 30 * time.Millisecond
	c := New(site,
		WithWorkers(3),
		WithCooldown(cooldown),
		WithWaveObserver(func(w WaveInfo) {
			mu.Lock()
			defer mu.Unlock()
			waves = append(waves, w)
		}))

	start := time.Now()
	result, err := c.Crawl(context.Background(), shop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < cooldown {
		t.Error("the wave must wait for the cooldown")
	}

	if len(waves) != 2 {
		t.Fatalf("expected 2 waves, got %d: %+v", len(waves), waves)
	}
	if !slices.Equal(waves[1].Frontier, []string{shop + "/slow"}) {
		t.Errorf("timed-out URL must be in the next frontier, got %v", waves[1].Frontier)
	}
	if waves[1].Visits != len(waves[0].Frontier)-1 {
		t.Errorf("expected %d visits after reinstatement, got %d", len(waves[0].Frontier)-1, waves[1].Visits)
	}

	if len(result.Visited) != 4-1 || !slices.Contains(result.Visited, shop+"/slow") {
		t.Errorf("timed-out URL must be visited on retry, got %v", result.Visited)
	}
	if result.Timeouts != 1 {
		t.Errorf("expected 1 timeout, got %d", result.Timeouts)
	}
	assertConsistent(t, result)
}

func TestCrawlRetryableStatus(t *testing.T) {
	t.Parallel()

	site := newFakeSite(map[string][]string{
		shop + "/":  {shop + "/a"},
		shop + "/a": nil,
	})
	site.failures[shop+"/a"] = []error{&StatusError{URL: shop + "/a", StatusCode: http.StatusTooManyRequests}}

	result, err := New(site, WithCooldown(time.Millisecond)).Crawl(context.Background(), shop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(result.Visited, []string{shop + "/a"}) || result.Timeouts != 1 {
		t.Errorf("expected retry after 429, got visited=%v timeouts=%d", result.Visited, result.Timeouts)
	}
}

func TestCrawlRecordsRequestedURL(t *testing.T) {
	t.Parallel()

	// Every page reports the URL its redirects ended on.
	resolver := ResolverFunc(func(_ context.Context, u string) (*model.Document, error) {
		switch u {
		case shop + "/old":
			return &model.Document{URL: shop + "/new", StatusCode: http.StatusOK, ContentType: "text/html"}, nil
		default:
			return &model.Document{
				URL:         shop + "/home",
				StatusCode:  http.StatusOK,
				ContentType: "text/html",
				ChildURLs:   []string{shop + "/old"},
			}, nil
		}
	})

	result, err := New(resolver, WithCooldown(0)).Crawl(context.Background(), shop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.TargetPages[shop+"/old"]; !ok {
		t.Errorf("page must be recorded under the requested URL, got %v", result.TargetPages)
	}
	if _, ok := result.TargetPages[shop+"/new"]; ok {
		t.Error("page recorded under the redirect target")
	}
	if page := result.TargetPages[shop+"/old"]; page != nil && page.URL() != shop+"/old" {
		t.Errorf("page.URL() = %q, want the requested URL", page.URL())
	}
	assertConsistent(t, result)
}

func TestCrawlMaxRetries(t *testing.T) {
	t.Parallel()

	timeout := fmt.Errorf("%w: stuck", ErrTimeout)
	site := newFakeSite(map[string][]string{
		shop + "/":      {shop + "/stuck"},
		shop + "/stuck": nil,
	})
	site.failures[shop+"/stuck"] = []error{timeout, timeout, timeout, timeout}

	result, err := New(site, WithCooldown(0), WithMaxRetries(2)).Crawl(context.Background(), shop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := site.callCount(shop + "/stuck"); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if !slices.Equal(result.Invalid, []string{shop + "/stuck"}) {
		t.Errorf("exhausted URL must be invalid, got %v", result.Invalid)
	}
	if result.Timeouts != 3 {
		t.Errorf("expected 3 timeouts, got %d", result.Timeouts)
	}
	assertConsistent(t, result)
}

func TestCrawlVisitLimit(t *testing.T) {
	t.Parallel()

	links := map[string][]string{shop + "/": nil}
	for i := range 10 {
		u := fmt.Sprintf("%s/page/%d", shop, i)
		links[shop+"/"] = append(links[shop+"/"], u)
		links[u] = []string{shop + "/"}
	}

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			t.Parallel()

			site := newFakeSite(links)
			result, err := New(site, WithVisitLimit(3), WithWorkers(workers)).Crawl(context.Background(), shop)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if n := len(result.Visited); n < 3 || n > 3+workers {
				t.Errorf("expected between 3 and %d visited URLs, got %d", 3+workers, n)
			}
			if len(result.TargetPages)+len(result.OtherPages) != len(result.Visited) {
				t.Error("pages beyond the limit must not be classified")
			}
			if len(result.Invalid) != 0 {
				t.Errorf("unexpected invalid URLs: %v", result.Invalid)
			}
			if result.StopReason != model.StopVisitLimit {
				t.Errorf("expected visit_limit, got %s", result.StopReason)
			}
			assertConsistent(t, result)
		})
	}
}

func TestCrawlCancellation(t *testing.T) {
	t.Parallel()

	links := map[string][]string{shop + "/": nil}
	for i := range 20 {
		u := fmt.Sprintf("%s/page/%d", shop, i)
		links[shop+"/"] = append(links[shop+"/"], u)
		links[u] = nil
	}
	site := newFakeSite(links)
	site.delay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site.onVisit = func(u string) {
		if u == shop+"/page/3" {
			cancel()
		}
	}

	result, err := New(site, WithWorkers(2)).Crawl(ctx, shop)
	if err != nil {
		t.Fatalf("cancellation must not be an error, got %v", err)
	}
	if result.StopReason != model.StopCancelled || !result.Partial() {
		t.Errorf("expected cancelled partial result, got %s", result.StopReason)
	}
	if len(result.Visited) >= 20 {
		t.Errorf("expected a partial crawl, visited %d", len(result.Visited))
	}
	if len(result.TargetPages) != len(result.Visited) {
		t.Error("interrupted URLs must not stay visited")
	}
	assertConsistent(t, result)
}

func TestCrawlSeedErrors(t *testing.T) {
	t.Parallel()

	t.Run("malformed seed", func(t *testing.T) {
		t.Parallel()

		_, err := New(newFakeSite(nil)).Crawl(context.Background(), "ftp://shop.example")
		if !errors.Is(err, ErrSeedUnresolvable) || !errors.Is(err, model.ErrMalformedURL) {
			t.Errorf("expected seed error, got %v", err)
		}
	})

	t.Run("unreachable seed", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(nil)
		site.failures[shop+"/"] = []error{ErrUnreachable}
		_, err := New(site).Crawl(context.Background(), shop)
		if !errors.Is(err, ErrSeedUnresolvable) || !errors.Is(err, ErrUnreachable) {
			t.Errorf("expected seed error, got %v", err)
		}
	})

	t.Run("seed without links", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string][]string{shop + "/": nil})
		result, err := New(site).Crawl(context.Background(), shop)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Waves != 0 || result.StopReason != model.StopExhausted {
			t.Errorf("expected no waves, got %d (%s)", result.Waves, result.StopReason)
		}
	})
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := map[State]string{
		StateRunning:  "RUNNING",
		StateStopping: "STOPPING",
		StateDone:     "DONE",
		State(9):      "UNKNOWN",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
