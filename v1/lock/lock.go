package lock

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/charcoal-dev/cache-redis-client/v1/metrics"
)

// Registrar runs registered hooks when the process shuts down.
// shutdown.Handler implements it.
type Registrar interface {
	OnShutdown(fn func(ctx context.Context) error)
}

// Lock is a held, or formerly held, distributed lock. It is obtained only
// through Semaphore.Obtain and cannot be acquired again once released.
type Lock struct {
	store     Store
	id        string
	namespace string
	key       string
	prevKey   string
	token     string
	ttl       time.Duration
	clock     Clock
	logger    *slog.Logger

	mu          sync.Mutex
	locked      bool
	released    bool
	acquiredAt  time.Time
	autoRelease bool

	prevOnce sync.Once
	prev     time.Time
	hasPrev  bool
}

// ID returns the lock id passed to Obtain.
func (l *Lock) ID() string { return l.id }

// Namespace returns the namespace, empty when none was set.
func (l *Lock) Namespace() string { return l.namespace }

// Key returns the Redis key holding the token.
func (l *Lock) Key() string { return l.key }

// PrevKey returns the key that stores the previous acquisition time.
func (l *Lock) PrevKey() string { return l.prevKey }

// TTL returns the key lifetime used by Obtain and Refresh.
func (l *Lock) TTL() time.Duration { return l.ttl }

// IsLocked reports whether this lock still considers itself held.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// AcquiredAt returns when the key was obtained.
func (l *Lock) AcquiredAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquiredAt
}

// Release deletes the key if it still holds this lock's token and records
// the acquisition time under PrevKey. It is a no-op on an unlocked Lock.
// The lock is marked unlocked before the server is contacted, so a failed
// release is reported once and never retried.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	if !l.locked {
		l.mu.Unlock()
		return nil
	}
	l.locked = false
	l.released = true
	acquiredAt := l.acquiredAt
	l.mu.Unlock()

	metrics.LockHeld.Observe(l.clock.Now().Sub(acquiredAt).Seconds())

	ok, err := l.store.Release(ctx, l.key, l.token)
	if err != nil {
		metrics.LockReleases.WithLabelValues("error").Inc()
		return &ReleaseError{Key: l.key, Err: err}
	}
	if !ok {
		metrics.LockReleases.WithLabelValues("mismatch").Inc()
		l.logger.Debug("lock: release found foreign or missing key", "key", l.key)
		return &ReleaseError{Key: l.key, Err: ErrTokenMismatch}
	}
	if err := l.store.Set(ctx, l.prevKey, formatTimestamp(acquiredAt), 0); err != nil {
		metrics.LockReleases.WithLabelValues("error").Inc()
		return &ReleaseError{Key: l.key, Err: err}
	}
	metrics.LockReleases.WithLabelValues("released").Inc()
	l.logger.Debug("lock: released", "key", l.key)
	return nil
}

// Refresh extends the key TTL back to the lock TTL. If the key no longer
// holds this lock's token the lock is marked unlocked and ErrNotHeld is
// returned.
func (l *Lock) Refresh(ctx context.Context) error {
	if !l.IsLocked() {
		return ErrNotHeld
	}
	ok, err := l.store.Refresh(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		l.mu.Lock()
		l.locked = false
		l.mu.Unlock()
		return ErrNotHeld
	}
	return nil
}

// wasReleased reports whether Release was called while the lock was held.
func (l *Lock) wasReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

// SetAutoRelease registers a best-effort release with r. Repeated calls
// register once. Release errors during shutdown are dropped.
func (l *Lock) SetAutoRelease(r Registrar) {
	l.mu.Lock()
	if l.autoRelease {
		l.mu.Unlock()
		return
	}
	l.autoRelease = true
	l.mu.Unlock()

	r.OnShutdown(func(ctx context.Context) error {
		if err := l.Release(ctx); err != nil {
			l.logger.Debug("lock: auto release failed", "key", l.key, "error", err)
		}
		return nil
	})
}

// PreviousTimestamp returns when the previous holder acquired the lock. The
// value is read once per Lock; a missing key or a read failure reports
// false.
func (l *Lock) PreviousTimestamp(ctx context.Context) (time.Time, bool) {
	l.prevOnce.Do(func() {
		v, ok, err := l.store.Get(ctx, l.prevKey)
		if err != nil || !ok {
			return
		}
		t, err := parseTimestamp(v)
		if err != nil {
			return
		}
		l.prev, l.hasPrev = t, true
	})
	return l.prev, l.hasPrev
}

// CheckElapsedTime reports whether at least d has passed since the previous
// holder acquired the lock. It is true when there is no previous holder.
func (l *Lock) CheckElapsedTime(ctx context.Context, d time.Duration) bool {
	prev, ok := l.PreviousTimestamp(ctx)
	if !ok {
		return true
	}
	return l.clock.Now().Sub(prev) >= d
}

// Timestamps are stored as Unix seconds with microsecond fraction.
func formatTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

func parseTimestamp(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(int64(math.Round(f * 1e6))), nil
}
