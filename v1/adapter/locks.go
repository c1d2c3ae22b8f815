package adapter

import (
	"context"
	"strconv"
	"time"

	rerrors "github.com/charcoal-dev/cache-redis-client/v1/errors"
	"github.com/charcoal-dev/cache-redis-client/v1/resp"
)

// The scripts compare the stored value with the caller's token and act only
// on a match, in a single server-side step.
const (
	ReleaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	RefreshScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

// Locks implements Locker over any Doer.
type Locks struct {
	d Doer
}

// NewLocks returns the lock primitives bound to d.
func NewLocks(d Doer) Locks { return Locks{d: d} }

// Acquire runs SET key token NX PX ttl. It returns false when the key is
// already held.
func (l Locks) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	r, err := l.d.Do(ctx, "SET", key, token, "NX", "PX", strconv.FormatInt(millis(ttl), 10))
	if err != nil {
		return false, err
	}
	switch {
	case r.IsOK():
		return true, nil
	case r.IsNull():
		return false, nil
	default:
		return false, rerrors.Unexpected("SET", "expected OK or null, got "+r.String())
	}
}

// Release deletes key if it still holds token.
func (l Locks) Release(ctx context.Context, key, token string) (bool, error) {
	return l.eval(ctx, ReleaseScript, key, token)
}

// Refresh resets the expiry of key to ttl if it still holds token.
func (l Locks) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return l.eval(ctx, RefreshScript, key, token, strconv.FormatInt(millis(ttl), 10))
}

func (l Locks) eval(ctx context.Context, script, key string, argv ...string) (bool, error) {
	args := append([]string{"EVAL", script, "1", key}, argv...)
	r, err := l.d.Do(ctx, args...)
	if err != nil {
		return false, err
	}
	return evalResult(r)
}

// evalResult accepts the integer a script returns. Some servers hand a nil
// script result back as null, which counts as a miss.
func evalResult(r resp.Reply) (bool, error) {
	if r.IsNull() {
		return false, nil
	}
	return flagReply("EVAL", r)
}
