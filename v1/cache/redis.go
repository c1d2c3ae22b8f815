package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/charcoal-dev/cache-redis-client/v1/metrics"
)

const (
	// DefaultNearEntries is the near tier capacity when none is given.
	DefaultNearEntries = 10_000
	// DefaultNearTTL bounds how long a value read from Redis stays in the
	// near tier.
	DefaultNearTTL = 5 * time.Second
	// DefaultLoadTimeout bounds a shared Remember load.
	DefaultLoadTimeout = 30 * time.Second
)

// Store is the part of an adapter that Redis needs. adapter.Adapter and
// both of its backends satisfy it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}

type options struct {
	codec       Codec
	prefix      string
	near        bool
	nearEntries int64
	nearTTL     time.Duration
	loadTimeout time.Duration
	logger      *slog.Logger
	tracing     bool
}

// Option configures a Redis cache.
type Option func(*options)

// WithCodec sets the value codec. The default is JSONCodec.
func WithCodec(c Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithPrefix prepends prefix to every key sent to Redis.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithNearCache keeps up to entries values in process for at most ttl.
// Non-positive arguments fall back to DefaultNearEntries and
// DefaultNearTTL. Writes through this cache update the tier; writes by
// other clients are seen once the entry expires.
func WithNearCache(entries int64, ttl time.Duration) Option {
	return func(o *options) {
		o.near = true
		o.nearEntries = entries
		o.nearTTL = ttl
	}
}

// WithLoadTimeout bounds each shared Remember load. The default is
// DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.loadTimeout = d
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracing records a span for each cache operation.
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

// Redis implements Cache on top of a Store.
type Redis[T any] struct {
	store   Store
	codec   Codec
	prefix  string
	near    *RistrettoCache[T]
	nearTTL time.Duration
	timeout time.Duration
	logger  *slog.Logger
	tracing bool
	group   singleflight.Group
}

// NewRedis returns a typed cache over store.
func NewRedis[T any](store Store, opts ...Option) (*Redis[T], error) {
	o := options{codec: JSONCodec{}, logger: slog.Default(), loadTimeout: DefaultLoadTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loadTimeout <= 0 {
		o.loadTimeout = DefaultLoadTimeout
	}
	c := &Redis[T]{
		store:   store,
		codec:   o.codec,
		prefix:  o.prefix,
		timeout: o.loadTimeout,
		logger:  o.logger,
		tracing: o.tracing,
	}
	if o.near {
		near, err := NewRistretto[T](o.nearEntries)
		if err != nil {
			return nil, fmt.Errorf("cache: near tier: %w", err)
		}
		c.near = near
		c.nearTTL = o.nearTTL
		if c.nearTTL <= 0 {
			c.nearTTL = DefaultNearTTL
		}
	}
	return c, nil
}

// Get implements Cache.Get. It consults the near tier first when enabled.
func (c *Redis[T]) Get(ctx context.Context, key string) (T, bool, error) {
	ctx, span := c.start(ctx, "cache.get", key)
	v, ok, tier, err := c.get(ctx, key)
	if span != nil {
		if ok {
			span.SetAttributes(attribute.String("cache.result", "hit"), attribute.String("cache.tier", tier))
		} else {
			span.SetAttributes(attribute.String("cache.result", "miss"))
		}
		end(span, err)
	}
	return v, ok, err
}

func (c *Redis[T]) get(ctx context.Context, key string) (T, bool, string, error) {
	var zero T
	if c.near != nil {
		if v, ok, _ := c.near.Get(ctx, key); ok {
			metrics.CacheHits.WithLabelValues("local").Inc()
			return v, true, "local", nil
		}
	}
	raw, ok, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		return zero, false, "", err
	}
	if !ok {
		metrics.CacheMisses.Inc()
		return zero, false, "", nil
	}
	var v T
	if err := c.codec.Unmarshal([]byte(raw), &v); err != nil {
		return zero, false, "", fmt.Errorf("cache: decode %q: %w", key, err)
	}
	metrics.CacheHits.WithLabelValues("remote").Inc()
	if c.near != nil {
		_ = c.near.Set(ctx, key, v, c.nearTTL)
	}
	return v, true, "remote", nil
}

// Set implements Cache.Set. Redis rounds a sub-second ttl up to one second.
func (c *Redis[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	ctx, span := c.start(ctx, "cache.set", key)
	err := c.set(ctx, key, value, ttl)
	if span != nil {
		end(span, err)
	}
	return err
}

func (c *Redis[T]) set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := c.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	if err := c.store.Set(ctx, c.prefix+key, string(data), ttl); err != nil {
		if c.near != nil {
			_ = c.near.Invalidate(ctx, key)
		}
		return err
	}
	if c.near != nil {
		nearTTL := c.nearTTL
		if ttl > 0 && ttl < nearTTL {
			nearTTL = ttl
		}
		_ = c.near.Set(ctx, key, value, nearTTL)
	}
	return nil
}

// Invalidate implements Cache.Invalidate. Deleting a missing key is not an
// error.
func (c *Redis[T]) Invalidate(ctx context.Context, key string) error {
	ctx, span := c.start(ctx, "cache.invalidate", key)
	if c.near != nil {
		_ = c.near.Invalidate(ctx, key)
	}
	_, err := c.store.Delete(ctx, c.prefix+key)
	if span != nil {
		end(span, err)
	}
	return err
}

// Remember returns the cached value for key, or calls load, stores its
// result for ttl and returns it. Concurrent callers missing the same key
// share one load, which runs detached from the first caller's
// cancellation and is bounded by the load timeout. A failed load is
// returned and nothing is stored.
func (c *Redis[T]) Remember(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok, err := c.Get(ctx, key); err != nil {
		return zero, err
	} else if ok {
		return v, nil
	}

	res, err, shared := c.group.Do(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(lctx, key, v, ttl); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	if shared {
		c.logger.Debug("cache: shared load", "key", key)
	}
	v, _ := res.(T)
	return v, nil
}

// Close releases the near tier.
func (c *Redis[T]) Close() {
	if c.near != nil {
		c.near.Close()
	}
}

func (c *Redis[T]) start(ctx context.Context, name, key string) (context.Context, trace.Span) {
	if !c.tracing {
		return ctx, nil
	}
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("cache.key", key))
	return ctx, span
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
