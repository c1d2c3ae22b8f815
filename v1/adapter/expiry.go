package adapter

import (
	"context"
	"strconv"
	"time"
)

// Expiry implements Expirer over any Doer.
type Expiry struct {
	d Doer
}

// NewExpiry returns the expiry commands bound to d.
func NewExpiry(d Doer) Expiry { return Expiry{d: d} }

// Expire sets a TTL in whole seconds, rounding ttl up.
func (e Expiry) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return e.flag(ctx, "EXPIRE", key, strconv.FormatInt(seconds(ttl), 10))
}

// ExpireMs sets a TTL in milliseconds.
func (e Expiry) ExpireMs(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return e.flag(ctx, "PEXPIRE", key, strconv.FormatInt(millis(ttl), 10))
}

// TTL reports the remaining time to live with second precision.
func (e Expiry) TTL(ctx context.Context, key string) (Expiration, error) {
	return e.ttl(ctx, "TTL", key, time.Second)
}

// TTLMs reports the remaining time to live with millisecond precision.
func (e Expiry) TTLMs(ctx context.Context, key string) (Expiration, error) {
	return e.ttl(ctx, "PTTL", key, time.Millisecond)
}

// Persist removes the expiry from key.
func (e Expiry) Persist(ctx context.Context, key string) (bool, error) {
	return e.flag(ctx, "PERSIST", key)
}

func (e Expiry) ttl(ctx context.Context, cmd, key string, unit time.Duration) (Expiration, error) {
	r, err := e.d.Do(ctx, cmd, key)
	if err != nil {
		return Expiration{}, err
	}
	n, err := integerReply(cmd, r)
	if err != nil {
		return Expiration{}, err
	}
	return expiration(n, unit), nil
}

func (e Expiry) flag(ctx context.Context, cmd string, args ...string) (bool, error) {
	r, err := e.d.Do(ctx, append([]string{cmd}, args...)...)
	if err != nil {
		return false, err
	}
	return flagReply(cmd, r)
}
