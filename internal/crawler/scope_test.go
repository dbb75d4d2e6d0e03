package crawler

import "testing"

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/admin/*", "/admin", true},
		{"/admin/*", "/admin/dashboard", true},
		{"/admin/*", "/admin/users/1", true},
		{"/admin/*", "/administrator", false},
		{"*.pdf", "/docs/file.pdf", true},
		{"*.pdf", "/docs/file.html", false},
		{"/api/v?", "/api/v1", true},
		{"/api/v?", "/api/v10", false},
		{"/logout", "/logout", true},
		{"logout*", "/account/logout-now", true},
		{"[", "/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestScopeAllows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		scope Scope
		url   string
		want  bool
	}{
		{"empty scope allows everything", Scope{}, "https://shop.example/any", true},
		{"ignored path", Scope{Ignore: []string{"/cart/*"}}, "https://shop.example/cart/add", false},
		{"not ignored path", Scope{Ignore: []string{"/cart/*"}}, "https://shop.example/p/1", true},
		{"followed path", Scope{Follow: []string{"/p/*"}}, "https://shop.example/p/1", true},
		{"not followed path", Scope{Follow: []string{"/p/*"}}, "https://shop.example/blog", false},
		{"ignore wins over follow", Scope{Ignore: []string{"*.pdf"}, Follow: []string{"/p/*"}}, "https://shop.example/p/manual.pdf", false},
		{"root path", Scope{Follow: []string{"/"}}, "https://shop.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.scope.Allows(tt.url); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
