package lock

import (
	"io"
	"log/slog"
	"time"
)

// DefaultTTL is how long a lock key lives unless refreshed or released.
const DefaultTTL = 30 * time.Second

type options struct {
	namespace    string
	pollInterval time.Duration
	timeout      time.Duration
	ttl          time.Duration
	clock        Clock
	logger       *slog.Logger
	tracing      bool
	entropy      io.Reader
}

// Option configures a Semaphore or a single Obtain call.
type Option func(*options)

// WithNamespace prefixes lock keys with ns. It must be a word.
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithPollInterval makes Obtain retry a held key every d. Without it Obtain
// fails on the first contended attempt.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithTimeout bounds how long Obtain keeps polling. Zero polls forever.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithTTL sets the lock key TTL.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		o.ttl = d
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracing records a span for each Obtain.
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

func defaultOptions() options {
	return options{ttl: DefaultTTL}
}

func (o *options) apply(opts []Option) {
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
}
