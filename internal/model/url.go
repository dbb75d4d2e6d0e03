package model

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrMalformedURL is returned when a string cannot be turned into an
// absolute http(s) URL.
var ErrMalformedURL = errors.New("malformed URL")

// defaultPorts maps a scheme to the port that is dropped during normalization.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeURL returns the canonical string form of raw. The result is used
// as a set key by the crawler, so two calls with the same input always
// produce byte-identical output.
//
// Normalization:
//   - "https://" is prepended when no http(s) scheme is present
//   - scheme and host are lower-cased, the host is converted to its
//     IDNA ASCII form and default ports are dropped
//   - the path is re-escaped from its decoded form, an empty path becomes "/"
//   - the fragment is removed
//
// Semantically equal but syntactically different URLs (reordered query
// parameters, for example) are still distinct after normalization.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMalformedURL
	}

	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(lower, "://") {
			return "", fmt.Errorf("%w: unsupported scheme in %q", ErrMalformedURL, raw)
		}
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err) //nolint:errorlint // url errors are flattened into the message
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrMalformedURL, raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host, err := asciiHost(u.Hostname())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err) //nolint:errorlint // idna errors are flattened into the message
	}

	port := u.Port()
	if port == defaultPorts[u.Scheme] {
		port = ""
	}
	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}

	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	u.RawPath = ""
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = strings.ReplaceAll(u.RawQuery, " ", "%20")

	return u.String(), nil
}

// asciiHost lower-cases host and converts internationalized names to
// punycode. Hosts that fail the strict lookup profile (underscores, for
// example) fall back to plain punycode conversion.
func asciiHost(host string) (string, error) {
	host = strings.ToLower(host)
	ascii, err := idna.Lookup.ToASCII(host)
	if err == nil {
		return ascii, nil
	}
	return idna.Punycode.ToASCII(host)
}

// Domain returns the normalized host (with a non-default port) of raw,
// or an empty string when raw is malformed.
func Domain(raw string) string {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return ""
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return u.Host
}

// SameDomain reports whether a and b normalize to the same host.
func SameDomain(a, b string) bool {
	da := Domain(a)
	return da != "" && da == Domain(b)
}
