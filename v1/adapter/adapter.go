// Package adapter maps cache and lock operations onto Redis commands.
//
// Two backends implement Adapter: Socket, which speaks RESP over its own
// transport.Conn, and Native, which delegates to go-redis. Pick one with New.
package adapter

import (
	"context"
	"time"

	"github.com/charcoal-dev/cache-redis-client/v1/resp"
)

// Doer sends one command and returns its reply. *transport.Conn implements
// it.
type Doer interface {
	Do(ctx context.Context, args ...string) (resp.Reply, error)
}

// KV is the plain key/value surface.
type KV interface {
	// Get returns the value for key. The boolean is false when the key does
	// not exist.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value. A positive ttl makes the key expire.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	// Truncate removes every key on the server.
	Truncate(ctx context.Context) (bool, error)
}

// Counter is the atomic counter surface.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	DecrBy(ctx context.Context, key string, n int64) (int64, error)
	GetSet(ctx context.Context, key, value string) (string, bool, error)
}

// Expirer manages key expiry.
type Expirer interface {
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ExpireMs(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (Expiration, error)
	TTLMs(ctx context.Context, key string) (Expiration, error)
	Persist(ctx context.Context, key string) (bool, error)
}

// Locker holds the token-guarded lock primitives.
type Locker interface {
	// Acquire sets key to token only if key does not exist.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release deletes key only if it still holds token.
	Release(ctx context.Context, key, token string) (bool, error)
	// Refresh resets the expiry of key only if it still holds token.
	Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

// Adapter is the full capability set shared by every backend.
type Adapter interface {
	KV
	Counter
	Expirer
	Locker

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	Ping(ctx context.Context) error
}

// ExpiryState tells whether a key exists and whether it expires.
type ExpiryState int

const (
	// Missing means the key does not exist.
	Missing ExpiryState = iota
	// Persistent means the key exists without an expiry.
	Persistent
	// Expiring means the key exists and expires after Remaining.
	Expiring
)

func (s ExpiryState) String() string {
	switch s {
	case Missing:
		return "missing"
	case Persistent:
		return "persistent"
	case Expiring:
		return "expiring"
	default:
		return "unknown"
	}
}

// Expiration is the result of TTL and TTLMs.
type Expiration struct {
	State     ExpiryState
	Remaining time.Duration
}

// Exists reports whether the key was present.
func (e Expiration) Exists() bool { return e.State != Missing }

// expiration maps a TTL/PTTL integer reply: -2 missing, -1 no expiry.
func expiration(n int64, unit time.Duration) Expiration {
	switch {
	case n == -2:
		return Expiration{State: Missing}
	case n < 0:
		return Expiration{State: Persistent}
	default:
		return Expiration{State: Expiring, Remaining: time.Duration(n) * unit}
	}
}

// seconds rounds d up to whole seconds, with a minimum of one.
func seconds(d time.Duration) int64 {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// millis rounds d up to whole milliseconds, with a minimum of one.
func millis(d time.Duration) int64 {
	ms := int64((d + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return ms
}
