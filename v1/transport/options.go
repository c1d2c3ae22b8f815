package transport

import (
	"context"
	"log/slog"
	"net"
	"time"
)

const (
	// DefaultPort is the standard Redis port.
	DefaultPort = 6379
	// DefaultTimeout applies to connecting and to every read and write.
	DefaultTimeout = time.Second
)

// Observer is notified when a connection opens or drops its socket. id is
// the connection id and addr its host:port. Callbacks run while the Conn is
// locked and must not call back into it.
type Observer interface {
	Connected(id, addr string)
	Disconnected(id, addr string)
}

type options struct {
	connectTimeout time.Duration
	timeout        time.Duration
	logger         *slog.Logger
	observer       Observer
	traceEnabled   bool
	dial           func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Option configures a Conn.
type Option func(*options)

// WithTimeout sets the read/write deadline applied to each command. It is
// also the connect timeout unless WithConnectTimeout overrides it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithConnectTimeout sets the dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers the connection lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithTracing enables an OpenTelemetry span per command.
func WithTracing() Option {
	return func(o *options) {
		o.traceEnabled = true
	}
}

// withDialer replaces the TCP dialer used by connect.
func withDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(o *options) {
		o.dial = dial
	}
}

func defaultOptions() options {
	return options{timeout: DefaultTimeout}
}

func (o *options) normalize() {
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.connectTimeout <= 0 {
		o.connectTimeout = o.timeout
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.dial == nil {
		d := &net.Dialer{Timeout: o.connectTimeout}
		o.dial = d.DialContext
	}
}
