package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/wavecrawl/internal/model"
)

// skippedSchemes are href prefixes that never lead to a crawlable page.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:", "ftp:"}

// Parser extracts the title and the links of an HTML page.
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL

	// self is the normalized form of baseURL, excluded from the child links.
	self string
}

// ParseResult contains the information the crawler needs from a page.
type ParseResult struct {
	// Title is the text of the first <title> element.
	Title string

	// Root is the parsed document, kept for the target predicate.
	Root *html.Node

	// InternalLinks are normalized, de-duplicated links to the same domain,
	// in document order, without the page's own URL.
	InternalLinks []string
}

// NewParser creates a parser that resolves relative links against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	self, err := model.NormalizeURL(baseURL)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(self)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u, self: self}, nil
}

// Parse parses HTML content and extracts the title and the links.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Root:          doc,
		InternalLinks: make([]string, 0),
	}
	seen := make(map[string]struct{})
	base := p.baseURL

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					result.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "base":
				if href := getAttr(n, "href"); href != "" {
					if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
						base = p.baseURL.ResolveReference(u)
					}
				}
			case "a", "area":
				p.addLink(base, getAttr(n, "href"), seen, result)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

// addLink resolves href, normalizes it and keeps it when it stays on the
// page's domain.
func (p *Parser) addLink(base *url.URL, href string, seen map[string]struct{}, result *ParseResult) {
	resolved := resolveURL(base, href)
	if resolved == "" {
		return
	}
	link, err := model.NormalizeURL(resolved)
	if err != nil || link == p.self {
		return
	}
	if _, ok := seen[link]; ok || !model.SameDomain(link, p.self) {
		return
	}
	seen[link] = struct{}{}
	result.InternalLinks = append(result.InternalLinks, link)
}

// resolveURL resolves href against base. It returns an empty string for
// fragment-only and non-navigational links.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range skippedSchemes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
