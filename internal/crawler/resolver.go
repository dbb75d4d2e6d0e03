package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/wavecrawl/internal/model"
)

// DefaultUserAgent identifies the crawler to the sites it visits.
const DefaultUserAgent = "wavecrawl/1.0 (+https://github.com/nao1215/wavecrawl)"

// DefaultRequestTimeout is the per-request timeout used when none is set.
const DefaultRequestTimeout = 10 * time.Second

// PageResolver fetches and parses a single URL.
//
// Implementations return a *model.Document on success. Failures must wrap
// ErrTimeout, ErrInvalidURL or ErrUnreachable, or be a *StatusError; when
// ctx itself ends, ctx.Err() is returned. The crawler records the page
// under the requested URL whatever Document.URL says, so a resolver may
// report where redirects ended up.
type PageResolver interface {
	Resolve(ctx context.Context, url string) (*model.Document, error)
}

// ResolverFunc adapts a function to the PageResolver interface.
type ResolverFunc func(ctx context.Context, url string) (*model.Document, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, url string) (*model.Document, error) {
	return f(ctx, url)
}

// HTTPResolver is the PageResolver used by the CLI. It performs a GET
// request, reads a bounded body and extracts the title and the
// same-domain links of HTML responses.
type HTTPResolver struct {
	client      *http.Client
	timeout     time.Duration
	userAgent   string
	maxBodySize int64
	limiter     *rate.Limiter
}

// ResolverOption configures an HTTPResolver.
type ResolverOption func(*HTTPResolver)

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) ResolverOption {
	return func(r *HTTPResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ResolverOption {
	return func(r *HTTPResolver) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithMaxBodySize limits how many bytes of each response are read.
func WithMaxBodySize(size int64) ResolverOption {
	return func(r *HTTPResolver) {
		if size > 0 {
			r.maxBodySize = size
		}
	}
}

// WithRateLimit caps the request rate shared by all workers.
// A non-positive perSecond disables the limit.
func WithRateLimit(perSecond float64, burst int) ResolverOption {
	return func(r *HTTPResolver) {
		if perSecond <= 0 {
			r.limiter = nil
			return
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// NewHTTPResolver returns a resolver that sends requests with client.
// A nil client means http.DefaultClient.
func NewHTTPResolver(client *http.Client, opts ...ResolverOption) *HTTPResolver {
	if client == nil {
		client = http.DefaultClient
	}
	r := &HTTPResolver{
		client:      client,
		timeout:     DefaultRequestTimeout,
		userAgent:   DefaultUserAgent,
		maxBodySize: model.MaxBodySize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches pageURL and returns its Document.
func (r *HTTPResolver) Resolve(ctx context.Context, pageURL string) (*model.Document, error) {
	// Waiting for the limiter does not count against the request timeout.
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, classifyError(ctx, pageURL, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidURL, pageURL, err) //nolint:errorlint // only the class is matched
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classifyError(ctx, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096) //nolint:errcheck // best effort
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodySize))
	if err != nil {
		return nil, classifyError(ctx, pageURL, err)
	}

	doc := &model.Document{
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		ChildURLs:   make([]string, 0),
	}
	if !doc.IsHTML() {
		return doc, nil
	}

	// Relative links resolve against the final URL after redirects.
	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL.String()
	}
	parser, err := NewParser(base)
	if err != nil {
		return doc, nil //nolint:nilerr // the page itself was fetched
	}
	parsed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return doc, nil //nolint:nilerr // unparsable HTML has no links
	}

	doc.Title = parsed.Title
	doc.Root = parsed.Root
	for _, link := range parsed.InternalLinks {
		if link != pageURL && model.SameDomain(link, pageURL) {
			doc.ChildURLs = append(doc.ChildURLs, link)
		}
	}
	return doc, nil
}

// classifyError maps a transport error onto the resolution error classes.
// The caller's own cancellation is passed through unchanged.
func classifyError(ctx context.Context, pageURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, pageURL)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, pageURL)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme") {
		return fmt.Errorf("%w: %s", ErrInvalidURL, pageURL)
	}

	return fmt.Errorf("%w: %s: %v", ErrUnreachable, pageURL, err) //nolint:errorlint // only the class is matched
}
