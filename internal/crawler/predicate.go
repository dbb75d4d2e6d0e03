package crawler

import (
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/nao1215/wavecrawl/internal/model"
)

// Predicate decides whether a resolved document is a target page.
// It must be pure; the Crawler evaluates it exactly once per page.
type Predicate func(doc *model.Document) bool

// MatchAll classifies every page as a target.
func MatchAll(*model.Document) bool { return true }

// SelectorPredicate returns a predicate that matches HTML documents
// containing at least one element selected by the CSS selector css,
// e.g. "div.productName".
func SelectorPredicate(css string) (Predicate, error) {
	sel, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("invalid target selector %q: %w", css, err)
	}

	return func(doc *model.Document) bool {
		if doc == nil || doc.Root == nil {
			return false
		}
		return goquery.NewDocumentFromNode(doc.Root).FindMatcher(sel).Length() > 0
	}, nil
}

// PathPredicate returns a predicate that matches documents whose URL path
// matches one of the globs (same syntax as Scope patterns).
func PathPredicate(globs ...string) Predicate {
	return func(doc *model.Document) bool {
		if doc == nil {
			return false
		}
		u, err := url.Parse(doc.URL)
		if err != nil {
			return false
		}
		for _, g := range globs {
			if matchPattern(g, u.Path) {
				return true
			}
		}
		return false
	}
}

// AnyOf matches when at least one of preds matches. With no predicates it
// matches nothing.
func AnyOf(preds ...Predicate) Predicate {
	return func(doc *model.Document) bool {
		for _, p := range preds {
			if p(doc) {
				return true
			}
		}
		return false
	}
}
