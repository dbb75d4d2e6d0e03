package model

import (
	"testing"
)

func testDocument() *Document {
	return &Document{
		URL:         "https://example.com/p/1",
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Title:       "Product 1",
		Body:        []byte("Hello, World!"),
		ChildURLs:   []string{"https://example.com/", "https://example.com/p/2"},
	}
}

func TestDocument(t *testing.T) {
	t.Parallel()

	t.Run("Hash is BLAKE2b-256 of body", func(t *testing.T) {
		t.Parallel()

		want := "511bc81dde11180838c562c82bb35f3223f46061ebde4a955c27b3f489cf1e03"
		if got := testDocument().Hash(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("empty body has empty hash", func(t *testing.T) {
		t.Parallel()

		doc := &Document{}
		if doc.Hash() != "" {
			t.Errorf("expected empty hash, got %q", doc.Hash())
		}
	})

	t.Run("IsHTML", func(t *testing.T) {
		t.Parallel()

		tests := map[string]bool{
			"text/html":                true,
			"text/html; charset=utf-8": true,
			"TEXT/HTML":                true,
			"application/xhtml+xml":    true,
			"application/json":         false,
			"image/png":                false,
			"":                         false,
		}
		for ct, want := range tests {
			doc := &Document{ContentType: ct}
			if got := doc.IsHTML(); got != want {
				t.Errorf("IsHTML(%q) = %v, want %v", ct, got, want)
			}
		}
	})
}

func TestNewPage(t *testing.T) {
	t.Parallel()

	t.Run("greedy retention keeps the document", func(t *testing.T) {
		t.Parallel()

		doc := testDocument()
		page := NewPage(doc, true, RetentionGreedy)

		if !page.Retained() {
			t.Fatal("expected document to be retained")
		}
		if page.Document() != doc {
			t.Error("expected the same document")
		}
		if len(page.ChildURLs()) != 2 {
			t.Errorf("expected 2 child URLs, got %d", len(page.ChildURLs()))
		}
		if page.Classification() != ClassTarget {
			t.Errorf("expected %q, got %q", ClassTarget, page.Classification())
		}
	})

	t.Run("free retention keeps metadata only", func(t *testing.T) {
		t.Parallel()

		page := NewPage(testDocument(), false, RetentionFree)

		if page.Retained() || page.Document() != nil {
			t.Error("expected document to be released")
		}
		if page.ChildURLs() != nil {
			t.Errorf("expected no child URLs, got %v", page.ChildURLs())
		}
		if page.URL() != "https://example.com/p/1" || page.Title() != "Product 1" {
			t.Errorf("metadata lost: %q %q", page.URL(), page.Title())
		}
		if page.Hash() == "" {
			t.Error("expected hash to survive")
		}
		if page.Classification() != ClassOther {
			t.Errorf("expected %q, got %q", ClassOther, page.Classification())
		}
	})

	t.Run("child URLs are copied", func(t *testing.T) {
		t.Parallel()

		doc := testDocument()
		page := NewPage(doc, false, RetentionGreedy)
		doc.ChildURLs[0] = "mutated"

		if page.ChildURLs()[0] == "mutated" {
			t.Error("page shares the document's slice")
		}
	})
}

func TestRetention(t *testing.T) {
	t.Parallel()

	if RetentionFor(true) != RetentionGreedy {
		t.Error("greedy flag must select RetentionGreedy")
	}
	if RetentionFor(false) != RetentionFree {
		t.Error("cleared flag must select RetentionFree")
	}
	if RetentionGreedy.String() != "greedy" || RetentionFree.String() != "free" {
		t.Error("unexpected retention names")
	}
	if Retention(42).String() != "unknown" {
		t.Error("expected unknown for out-of-range value")
	}
}

func TestRestorePage(t *testing.T) {
	t.Parallel()

	page := RestorePage("https://example.com/", "Home", true, "abc")
	if !page.IsTarget() || page.Retained() || page.Hash() != "abc" {
		t.Errorf("unexpected restored page: %+v", page)
	}
}
