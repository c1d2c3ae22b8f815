package adapter

import (
	"context"
	"strconv"
)

// Counters implements Counter over any Doer.
type Counters struct {
	d Doer
}

// NewCounters returns the counter commands bound to d.
func NewCounters(d Doer) Counters { return Counters{d: d} }

func (c Counters) Incr(ctx context.Context, key string) (int64, error) {
	return c.integer(ctx, "INCR", key)
}

func (c Counters) Decr(ctx context.Context, key string) (int64, error) {
	return c.integer(ctx, "DECR", key)
}

func (c Counters) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return c.integer(ctx, "INCRBY", key, strconv.FormatInt(n, 10))
}

func (c Counters) DecrBy(ctx context.Context, key string, n int64) (int64, error) {
	return c.integer(ctx, "DECRBY", key, strconv.FormatInt(n, 10))
}

// GetSet stores value and returns the previous one, if any.
func (c Counters) GetSet(ctx context.Context, key, value string) (string, bool, error) {
	r, err := c.d.Do(ctx, "GETSET", key, value)
	if err != nil {
		return "", false, err
	}
	return bulkReply("GETSET", r)
}

func (c Counters) integer(ctx context.Context, cmd string, args ...string) (int64, error) {
	r, err := c.d.Do(ctx, append([]string{cmd}, args...)...)
	if err != nil {
		return 0, err
	}
	return integerReply(cmd, r)
}
