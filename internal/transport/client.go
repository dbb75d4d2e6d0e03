package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// MaxRedirects is the number of redirects a client follows before it
// returns the last response.
const MaxRedirects = 10

// checkProxyTimeout bounds the SOCKS5 probe in CheckProxy.
const checkProxyTimeout = 2 * time.Second

// config collects the settings applied by NewHTTPClient.
type config struct {
	proxyAddress string
	timeout      time.Duration
	cookie       string
	headers      map[string]string
	insecureTLS  bool
}

// Option configures NewHTTPClient.
type Option func(*config)

// WithProxy routes every connection through the SOCKS5 proxy at address
// ("host:port"). An empty address dials directly.
func WithProxy(address string) Option {
	return func(c *config) {
		c.proxyAddress = address
	}
}

// WithTimeout sets the overall client timeout. Zero leaves per-request
// timeouts to the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithCookie injects a raw cookie string ("name=value; other=value") into
// every request.
func WithCookie(cookie string) Option {
	return func(c *config) {
		c.cookie = cookie
	}
}

// WithHeaders injects the given headers into every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *config) {
		c.headers = headers
	}
}

// WithInsecureTLS disables certificate verification.
func WithInsecureTLS(insecure bool) Option {
	return func(c *config) {
		c.insecureTLS = insecure
	}
}

// NewHTTPClient returns an HTTP client with a cookie jar and a redirect
// limit of MaxRedirects, dialing through a SOCKS5 proxy when one is set.
// The proxy is not contacted here; use CheckProxy to verify it.
func NewHTTPClient(opts ...Option) (*http.Client, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("unexpected default transport type")
	}
	transport = transport.Clone()
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 30 * time.Second

	if cfg.insecureTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // opted in by the user
		}
	}

	if cfg.proxyAddress != "" {
		if !isValidProxyAddress(cfg.proxyAddress) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, cfg.proxyAddress)
		}
		dialer, err := proxy.SOCKS5("tcp", cfg.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = dialContext(dialer)
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	var rt http.RoundTripper = transport
	if cfg.cookie != "" || len(cfg.headers) > 0 {
		rt = &headerInjectingTransport{
			base:    transport,
			cookie:  cfg.cookie,
			headers: cfg.headers,
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   cfg.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// dialContext adapts a proxy dialer to http.Transport.DialContext,
// preferring the context-aware dialer when the proxy provides one.
func dialContext(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		ch := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			ch <- dialResult{conn, err}
		}()
		select {
		case r := <-ch:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// isValidProxyAddress checks for "host:port" with a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// SOCKS5 protocol constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5CmdConnect   = 0x01
	socks5AddrTypeName = 0x03

	// socks5ProbeHost is the reserved name used in the probe CONNECT request.
	// The proxy only has to answer; the connection itself may fail.
	socks5ProbeHost = "probe.invalid"
)

// CheckProxy probes address with a SOCKS5 handshake and a CONNECT request.
func CheckProxy(ctx context.Context, address string) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, no authentication.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	const probePort = 80
	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeName, byte(len(socks5ProbeHost))}
	req = append(req, socks5ProbeHost...)
	req = append(req, byte(probePort>>8), byte(probePort&0xFF))
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	// Any reply code means the proxy processed the request.
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// a cookie and custom headers into every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
