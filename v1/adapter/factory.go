package adapter

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charcoal-dev/cache-redis-client/v1/transport"
)

const defaultPort = transport.DefaultPort

// Backend selects the Adapter implementation.
type Backend string

const (
	// BackendSocket speaks RESP over a transport.Conn.
	BackendSocket Backend = "socket"
	// BackendNative delegates to go-redis.
	BackendNative Backend = "native"
)

// ParseBackend accepts "socket" or "native", case-insensitively. An empty
// string selects the socket backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendSocket, nil
	case BackendSocket, BackendNative:
		return b, nil
	default:
		return "", fmt.Errorf("adapter: unknown backend %q", s)
	}
}

type options struct {
	timeout        time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger
	observer       transport.Observer
	tracing        bool
}

// Option configures an adapter built by New, NewNative or NewNativeClient.
type Option func(*options)

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithConnectTimeout sets the dial timeout. It defaults to the command
// timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers a connection lifecycle observer.
func WithObserver(obs transport.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithTracing enables a span per command.
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

func newOptions(opts []Option) options {
	o := options{timeout: transport.DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = transport.DefaultTimeout
	}
	if o.connectTimeout <= 0 {
		o.connectTimeout = o.timeout
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o options) transport() []transport.Option {
	opts := []transport.Option{
		transport.WithTimeout(o.timeout),
		transport.WithConnectTimeout(o.connectTimeout),
		transport.WithLogger(o.logger),
	}
	if o.observer != nil {
		opts = append(opts, transport.WithObserver(o.observer))
	}
	if o.tracing {
		opts = append(opts, transport.WithTracing())
	}
	return opts
}

// New builds the adapter for backend. The backend is fixed for the life of
// the returned value.
func New(backend Backend, host string, port int, opts ...Option) (Adapter, error) {
	switch backend {
	case BackendSocket, "":
		return NewSocket(host, port, newOptions(opts).transport()...), nil
	case BackendNative:
		return NewNative(host, port, opts...), nil
	default:
		return nil, fmt.Errorf("adapter: unknown backend %q", backend)
	}
}
