package lock

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/charcoal-dev/cache-redis-client/v1/adapter"
	"github.com/charcoal-dev/cache-redis-client/v1/metrics"
)

const (
	keyPrefix  = "sem:"
	prevSuffix = ":prev"
	tokenBytes = 16
)

var (
	wordPattern = regexp.MustCompile(`^\w+$`)
	tracer      = otel.Tracer("github.com/charcoal-dev/cache-redis-client/v1/lock")
)

// Store is what a Semaphore needs from an adapter: the token-guarded lock
// primitives plus plain reads and writes for the previous-holder key.
// adapter.Adapter satisfies it.
type Store interface {
	adapter.Locker
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Semaphore obtains locks against one Store.
type Semaphore struct {
	store Store
	opts  []Option
}

// NewSemaphore returns a Semaphore whose locks default to opts.
func NewSemaphore(store Store, opts ...Option) *Semaphore {
	return &Semaphore{store: store, opts: opts}
}

// Key returns the Redis key guarding id in namespace ns.
func Key(ns, id string) string {
	if ns != "" {
		return keyPrefix + ns + ":" + id
	}
	return keyPrefix + id
}

// Obtain acquires the lock named id, polling while another holder has it
// if a poll interval is set. It returns only a held Lock or an error. opts
// override the Semaphore defaults for this call.
func (s *Semaphore) Obtain(ctx context.Context, id string, opts ...Option) (*Lock, error) {
	o := defaultOptions()
	o.apply(append(append([]Option(nil), s.opts...), opts...))

	if !wordPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if o.namespace != "" && !wordPattern.MatchString(o.namespace) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, o.namespace)
	}
	if o.ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	token, err := newToken(o)
	if err != nil {
		return nil, err
	}

	key := Key(o.namespace, id)
	l := &Lock{
		store:     s.store,
		id:        id,
		namespace: o.namespace,
		key:       key,
		prevKey:   key + prevSuffix,
		token:     token,
		ttl:       o.ttl,
		clock:     o.clock,
		logger:    o.logger,
	}

	var span trace.Span
	if o.tracing {
		ctx, span = tracer.Start(ctx, "lock.obtain")
		defer span.End()
		span.SetAttributes(attribute.String("lock.key", key))
	}

	attempts, err := l.acquire(ctx, o)
	if span != nil {
		span.SetAttributes(attribute.Int("lock.attempts", attempts))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func newToken(o options) (string, error) {
	var (
		b   []byte
		err error
	)
	if o.entropy != nil {
		b, err = uuid.GenerateRandomBytesWithReader(tokenBytes, o.entropy)
	} else {
		b, err = uuid.GenerateRandomBytes(tokenBytes)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenGeneration, err)
	}
	return hex.EncodeToString(b), nil
}

// acquire tries the key, then sleeps the poll interval and checks the
// timeout, until it gets the key or gives up. It returns the number of
// attempts made.
func (l *Lock) acquire(ctx context.Context, o options) (int, error) {
	start := l.clock.Now()
	attempts := 0
	for {
		attempts++
		metrics.LockAttempts.Inc()
		ok, err := l.store.Acquire(ctx, l.key, l.token, l.ttl)
		if err != nil {
			metrics.LockAcquisitions.WithLabelValues("error").Inc()
			l.logger.Debug("lock: obtain failed", "key", l.key, "error", err)
			return attempts, &ObtainError{Key: l.key, Err: err}
		}
		if ok {
			l.mu.Lock()
			l.locked = true
			l.acquiredAt = l.clock.Now()
			l.mu.Unlock()
			metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
			l.logger.Debug("lock: acquired", "key", l.key, "attempts", attempts)
			return attempts, nil
		}

		if o.pollInterval <= 0 {
			metrics.LockAcquisitions.WithLabelValues("blocked").Inc()
			return attempts, &ContentionError{Key: l.key, Reason: Blocked, Attempts: attempts}
		}
		l.logger.Debug("lock: contended", "key", l.key, "attempt", attempts, "retry_in", o.pollInterval)
		if err := l.clock.Sleep(ctx, o.pollInterval); err != nil {
			metrics.LockAcquisitions.WithLabelValues("cancelled").Inc()
			return attempts, &ObtainError{Key: l.key, Err: err}
		}
		if elapsed := l.clock.Now().Sub(start); o.timeout > 0 && elapsed >= o.timeout {
			metrics.LockAcquisitions.WithLabelValues("timeout").Inc()
			return attempts, &ContentionError{Key: l.key, Reason: TimedOut, Attempts: attempts, Elapsed: elapsed}
		}
	}
}
