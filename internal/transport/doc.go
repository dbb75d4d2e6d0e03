// Package transport builds the HTTP clients used by the crawler.
//
// A client can dial directly or through a SOCKS5 proxy, optionally one
// provided by an embedded Tor daemon (tornago). Site configurations may
// attach a cookie and extra headers that are injected into every request,
// redirects included.
package transport
