package log

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// redactedPart replaces secrets inside URLs, where MaskValue would be escaped.
const redactedPart = "REDACTED"

// secretKeys are attribute keys and request header names whose values are
// always masked. Keys are compared after normalizeKey.
var secretKeys = map[string]bool{
	"authorization":       true,
	"proxy_authorization": true,
	"cookie":              true,
	"set_cookie":          true,
	"x_api_key":           true,
	"x_auth_token":        true,
	"x_csrf_token":        true,
	"api_key":             true,
	"apikey":              true,
	"session":             true,
	"session_id":          true,
	"sessionid":           true,
	"sid":                 true,
	"jsessionid":          true,
	"proxy_auth":          true,
}

// secretKeywords mask any key that contains them ("db_password",
// "refresh_token"). The bare "key" is deliberately absent: "cache_key" and
// "sort_key" are not secrets.
var secretKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "private", "cookie",
}

// secretQueryParams are query parameters redacted inside logged URLs.
var secretQueryParams = map[string]bool{
	"token":        true,
	"access_token": true,
	"api_key":      true,
	"apikey":       true,
	"key":          true,
	"sid":          true,
	"session":      true,
	"sessionid":    true,
	"password":     true,
	"signature":    true,
}

// secretValuePatterns match values that are secrets whatever their key.
var secretValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`), // opaque API keys
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`), // AWS access key IDs
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// SecureHandler wraps an slog.Handler and sanitizes every attribute before
// it reaches the wrapped handler:
//   - attributes named like a secret are masked entirely
//   - string values that look like secrets are masked
//   - URLs keep their shape with user info and secret query parameters redacted
//   - header maps (map[string]string, map[string][]string) mask secret headers only
//   - string slices, such as lists of URLs, are sanitized element by element
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a SecureHandler wrapping handler. A nil handler
// means slog.Default().Handler().
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a handler with the sanitized attrs added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitized)}
}

// WithGroup returns a handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		group := v.Group()
		sanitized := make([]slog.Attr, len(group))
		for i, ga := range group {
			sanitized[i] = sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitized...)}
	}

	if isSecretKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, sanitizeString(v.String()))
	case slog.KindAny:
		return slog.Any(a.Key, sanitizeAny(v.Any()))
	default:
		return slog.Attr{Key: a.Key, Value: v}
	}
}

// sanitizeAny sanitizes the composite values the crawler logs. Other types
// are returned unchanged.
func sanitizeAny(v any) any {
	switch val := v.(type) {
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = sanitizeString(s)
		}
		return out
	case map[string]string:
		out := maps.Clone(val)
		for name, value := range out {
			if isSecretKey(name) {
				out[name] = MaskValue
			} else {
				out[name] = sanitizeString(value)
			}
		}
		return out
	case map[string][]string:
		out := make(map[string][]string, len(val))
		for name, values := range val {
			if isSecretKey(name) {
				out[name] = []string{MaskValue}
			} else {
				out[name] = sanitizeAny(slices.Clone(values)).([]string)
			}
		}
		return out
	default:
		return v
	}
}

func sanitizeString(s string) string {
	if isSecretValue(s) {
		return MaskValue
	}
	if redacted, ok := redactURL(s); ok {
		return redacted
	}
	return s
}

// normalizeKey lower-cases key and folds header-style dashes into underscores
// so "X-Api-Key", "x_api_key" and "X_API_KEY" compare equal.
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

// isSecretKey reports whether an attribute key or header name carries a secret.
func isSecretKey(key string) bool {
	k := normalizeKey(key)
	if secretKeys[k] {
		return true
	}
	for _, kw := range secretKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

// isSecretValue reports whether value looks like a secret.
func isSecretValue(value string) bool {
	for _, p := range secretValuePatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// redactURL masks the user info and secret query parameters of an
// absolute http(s) URL. It reports false when nothing was changed.
func redactURL(value string) (string, bool) {
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return "", false
	}
	u, err := url.Parse(value)
	if err != nil {
		return "", false
	}

	changed := false
	if u.User != nil {
		u.User = url.User(redactedPart)
		changed = true
	}
	if u.RawQuery != "" {
		q := u.Query()
		redactedQuery := false
		for name := range q {
			if secretQueryParams[strings.ToLower(name)] {
				q.Set(name, redactedPart)
				redactedQuery = true
			}
		}
		if redactedQuery {
			u.RawQuery = q.Encode()
			changed = true
		}
	}
	if !changed {
		return "", false
	}
	return u.String(), true
}

// levelFor returns Debug for verbose output, Warn otherwise.
func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewSecureLogger returns a text logger writing to w through a
// SecureHandler. verbose selects the Debug level, otherwise Warn.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelFor(verbose)})))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFor(verbose)})))
}
