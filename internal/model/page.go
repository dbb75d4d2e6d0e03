package model

import (
	"encoding/hex"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/html"
)

// Classification labels used in exports and the results database.
const (
	// ClassTarget marks a page that satisfied the target predicate.
	ClassTarget = "target"

	// ClassOther marks every other successfully resolved page.
	ClassOther = "other"
)

// MaxBodySize is the largest response body kept in a Document.
const MaxBodySize = 5 * 1024 * 1024 // 5 MB

// Document is the result of resolving a URL: the fetched response and its
// parsed form. It is the input of the target predicate.
type Document struct {
	// URL is the normalized URL that was requested.
	URL string

	// StatusCode is the HTTP response status code.
	StatusCode int

	// ContentType is the Content-Type response header.
	ContentType string

	// Title is the text of the first <title> element, empty for non-HTML content.
	Title string

	// Body is the raw response body, truncated to MaxBodySize.
	Body []byte

	// Root is the parsed HTML tree. Nil for non-HTML content.
	Root *html.Node

	// ChildURLs are the normalized same-domain links found on the page,
	// without duplicates and without the page's own URL.
	ChildURLs []string
}

// IsHTML reports whether the content type indicates an HTML document.
func (d *Document) IsHTML() bool {
	ct := strings.ToLower(d.ContentType)
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// Hash returns the hex BLAKE2b-256 of the body, or an empty string for an
// empty body.
func (d *Document) Hash() string {
	if len(d.Body) == 0 {
		return ""
	}
	sum := blake2b.Sum256(d.Body)
	return hex.EncodeToString(sum[:])
}

// Retention selects how much of a resolved Document a Page keeps.
type Retention int

const (
	// RetentionFree keeps only the URL, title, classification and hash.
	RetentionFree Retention = iota

	// RetentionGreedy keeps the full Document and the child URLs.
	RetentionGreedy
)

// RetentionFor maps the greedy flag of the configuration to a Retention.
func RetentionFor(greedy bool) Retention {
	if greedy {
		return RetentionGreedy
	}
	return RetentionFree
}

// String returns the retention name.
func (r Retention) String() string {
	switch r {
	case RetentionGreedy:
		return "greedy"
	case RetentionFree:
		return "free"
	default:
		return "unknown"
	}
}

// Page is a classified page. It is immutable once constructed; the fields
// are reachable through accessors only.
type Page struct {
	url       string
	title     string
	target    bool
	hash      string
	childURLs []string
	document  *Document
	retention Retention
}

// NewPage builds a Page from a resolved Document and its classification.
// With RetentionFree the Document and the child URLs are not referenced by
// the Page and can be collected as soon as the caller drops them.
func NewPage(doc *Document, target bool, retention Retention) *Page {
	p := &Page{
		url:       doc.URL,
		title:     doc.Title,
		target:    target,
		hash:      doc.Hash(),
		retention: retention,
	}
	if retention == RetentionGreedy {
		p.document = doc
		p.childURLs = slices.Clone(doc.ChildURLs)
	}
	return p
}

// RestorePage rebuilds a content-less Page from stored metadata, e.g. a row
// of the results database.
func RestorePage(url, title string, target bool, hash string) *Page {
	return &Page{
		url:       url,
		title:     title,
		target:    target,
		hash:      hash,
		retention: RetentionFree,
	}
}

// URL returns the page URL.
func (p *Page) URL() string { return p.url }

// Title returns the page title.
func (p *Page) Title() string { return p.title }

// IsTarget reports whether the page satisfied the target predicate.
func (p *Page) IsTarget() bool { return p.target }

// Hash returns the BLAKE2b-256 of the page body at fetch time.
func (p *Page) Hash() string { return p.hash }

// Retention returns the strategy the page was built with.
func (p *Page) Retention() Retention { return p.retention }

// Retained reports whether the full Document is still available.
func (p *Page) Retained() bool { return p.document != nil }

// Document returns the retained Document, or nil under RetentionFree.
func (p *Page) Document() *Document { return p.document }

// ChildURLs returns a copy of the retained child URLs (nil under RetentionFree).
func (p *Page) ChildURLs() []string { return slices.Clone(p.childURLs) }

// Classification returns ClassTarget or ClassOther.
func (p *Page) Classification() string {
	if p.target {
		return ClassTarget
	}
	return ClassOther
}
