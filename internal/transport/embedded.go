package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout bounds the bootstrap of the embedded daemon.
const DefaultTorStartupTimeout = 3 * time.Minute

// torDaemon is the part of *tornago.TorProcess the crawler needs.
type torDaemon interface {
	SocksAddr() string
	Stop() error
}

// daemonStarter launches a daemon and blocks until it has bootstrapped.
type daemonStarter func(startupTimeout time.Duration) (torDaemon, error)

// EmbeddedTor runs a private Tor daemon so crawls can go through Tor without
// a system-wide installation being configured. Bootstrapping takes one to
// three minutes.
type EmbeddedTor struct {
	daemon         torDaemon
	startupTimeout time.Duration
	start          daemonStarter
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets how long Start waits for bootstrap. Non-positive
// values keep DefaultTorStartupTimeout.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.startupTimeout = timeout
		}
	}
}

// NewEmbeddedTor returns a stopped daemon manager.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: DefaultTorStartupTimeout,
		start:          startTornago,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func startTornago(startupTimeout time.Duration) (torDaemon, error) {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(startupTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tor launch config: %w", err)
	}
	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}
	return process, nil
}

type startResult struct {
	daemon torDaemon
	err    error
}

// Start launches the daemon on OS-assigned ports. It returns once the daemon
// has bootstrapped, the startup timeout expires, or ctx is done. A daemon
// that finishes bootstrapping after ctx was cancelled is stopped.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	if e.daemon != nil {
		return nil
	}

	done := make(chan startResult, 1)
	go func() {
		d, err := e.start(e.startupTimeout)
		done <- startResult{daemon: d, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.daemon.Stop() //nolint:errcheck // nobody is waiting for it
			}
		}()
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		e.daemon = r.daemon
		return nil
	}
}

// Stop shuts the daemon down. Stopping a stopped daemon is a no-op.
func (e *EmbeddedTor) Stop() error {
	if e.daemon == nil {
		return nil
	}
	err := e.daemon.Stop()
	e.daemon = nil
	return err
}

// SocksAddr returns the daemon's SOCKS5 address, or "" when stopped.
func (e *EmbeddedTor) SocksAddr() string {
	if e.daemon == nil {
		return ""
	}
	return e.daemon.SocksAddr()
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (e *EmbeddedTor) IsRunning() bool {
	return e.daemon != nil
}

// HTTPClient returns a client dialing through the daemon. It overrides any
// WithProxy among opts.
func (e *EmbeddedTor) HTTPClient(opts ...Option) (*http.Client, error) {
	if !e.IsRunning() {
		return nil, ErrTorNotRunning
	}
	return NewHTTPClient(append(opts, WithProxy(e.SocksAddr()))...)
}
