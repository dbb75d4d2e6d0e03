package transport

import "errors"

// Proxy errors.
var (
	// ErrProxyNotSOCKS5 is returned when the proxy address responds but does
	// not speak unauthenticated SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrInvalidProxyAddress is returned when the proxy address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrTorNotRunning is returned when a client is requested from an
	// embedded Tor daemon that has not been started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus is the result of probing a SOCKS5 proxy.
type ProxyStatus int

const (
	// ProxyStatusOK indicates a working SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the address answered with something
	// other than unauthenticated SOCKS5.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates no connection could be established.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the probe timed out.
	ProxyStatusTimeout
)

var proxyStatuses = map[ProxyStatus]struct {
	text string
	err  error
}{
	ProxyStatusOK:            {text: "OK"},
	ProxyStatusWrongType:     {text: "wrong type (not SOCKS5)", err: ErrProxyNotSOCKS5},
	ProxyStatusCannotConnect: {text: "cannot connect", err: ErrProxyCannotConnect},
	ProxyStatusTimeout:       {text: "timeout", err: ErrProxyTimeout},
}

// errUnknownProxyStatus is returned by Error for out-of-range statuses.
var errUnknownProxyStatus = errors.New("unknown proxy status")

func (s ProxyStatus) String() string {
	if info, ok := proxyStatuses[s]; ok {
		return info.text
	}
	return "unknown"
}

// Error returns the sentinel error for s, or nil for ProxyStatusOK.
func (s ProxyStatus) Error() error {
	if info, ok := proxyStatuses[s]; ok {
		return info.err
	}
	return errUnknownProxyStatus
}
