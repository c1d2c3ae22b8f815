package adapter

import (
	"context"
	stdErrors "errors"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	rerrors "github.com/charcoal-dev/cache-redis-client/v1/errors"
)

var (
	releaseScript = redis.NewScript(ReleaseScript)
	refreshScript = redis.NewScript(RefreshScript)
)

// Native implements Adapter on top of a go-redis client. Liveness is the
// client's own: IsConnected is true after a successful Connect until
// Disconnect, as long as the pool still holds a connection.
type Native struct {
	client *redis.Client
	addr   string
	open   atomic.Bool
	closed atomic.Bool
}

// NewNative builds a go-redis client for host:port with the given options.
func NewNative(host string, port int, opts ...Option) *Native {
	o := newOptions(opts)
	if port <= 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  o.connectTimeout,
		ReadTimeout:  o.timeout,
		WriteTimeout: o.timeout,
	})
	return NewNativeClient(client, opts...)
}

// NewNativeClient wraps an existing client. Metrics, tracing and the
// observer are installed as a client hook.
func NewNativeClient(client *redis.Client, opts ...Option) *Native {
	o := newOptions(opts)
	client.AddHook(newHook(client.Options().Addr, o))
	return &Native{client: client, addr: client.Options().Addr}
}

// Client exposes the underlying go-redis client.
func (n *Native) Client() *redis.Client { return n.client }

func (n *Native) Connect(ctx context.Context) error {
	if n.closed.Load() {
		return rerrors.Op("PING", "", rerrors.ErrConnectionClosed)
	}
	if err := n.client.Ping(ctx).Err(); err != nil {
		if isDialError(err) {
			return &rerrors.ConnectionError{Addr: n.addr, Err: err}
		}
		return mapError("PING", err)
	}
	n.open.Store(true)
	return nil
}

// Disconnect closes the client. A closed Native cannot be reconnected.
func (n *Native) Disconnect(ctx context.Context) error {
	n.open.Store(false)
	if n.closed.Swap(true) {
		return nil
	}
	return n.client.Close()
}

func (n *Native) IsConnected() bool {
	return n.open.Load() && n.client.PoolStats().TotalConns > 0
}

func (n *Native) Ping(ctx context.Context) error {
	return mapError("PING", n.client.Ping(ctx).Err())
}

func (n *Native) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := n.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError("GET", err)
	}
	return v, true, nil
}

// Set rounds a fractional ttl up to whole seconds, like Socket.Set.
func (n *Native) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl > 0 {
		ttl = time.Duration(seconds(ttl)) * time.Second
		return mapError("SETEX", n.client.SetEx(ctx, key, value, ttl).Err())
	}
	return mapError("SET", n.client.Set(ctx, key, value, 0).Err())
}

func (n *Native) Has(ctx context.Context, key string) (bool, error) {
	c, err := n.client.Exists(ctx, key).Result()
	return c == 1, mapError("EXISTS", err)
}

func (n *Native) Delete(ctx context.Context, key string) (bool, error) {
	c, err := n.client.Del(ctx, key).Result()
	return c == 1, mapError("DEL", err)
}

func (n *Native) Truncate(ctx context.Context) (bool, error) {
	s, err := n.client.FlushAll(ctx).Result()
	return s == "OK", mapError("FLUSHALL", err)
}

func (n *Native) Incr(ctx context.Context, key string) (int64, error) {
	v, err := n.client.Incr(ctx, key).Result()
	return v, mapError("INCR", err)
}

func (n *Native) Decr(ctx context.Context, key string) (int64, error) {
	v, err := n.client.Decr(ctx, key).Result()
	return v, mapError("DECR", err)
}

func (n *Native) IncrBy(ctx context.Context, key string, by int64) (int64, error) {
	v, err := n.client.IncrBy(ctx, key, by).Result()
	return v, mapError("INCRBY", err)
}

func (n *Native) DecrBy(ctx context.Context, key string, by int64) (int64, error) {
	v, err := n.client.DecrBy(ctx, key, by).Result()
	return v, mapError("DECRBY", err)
}

func (n *Native) GetSet(ctx context.Context, key, value string) (string, bool, error) {
	v, err := n.client.GetSet(ctx, key, value).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError("GETSET", err)
	}
	return v, true, nil
}

func (n *Native) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := n.client.Expire(ctx, key, time.Duration(seconds(ttl))*time.Second).Result()
	return ok, mapError("EXPIRE", err)
}

func (n *Native) ExpireMs(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := n.client.PExpire(ctx, key, time.Duration(millis(ttl))*time.Millisecond).Result()
	return ok, mapError("PEXPIRE", err)
}

func (n *Native) TTL(ctx context.Context, key string) (Expiration, error) {
	d, err := n.client.TTL(ctx, key).Result()
	if err != nil {
		return Expiration{}, mapError("TTL", err)
	}
	return nativeExpiration(d), nil
}

func (n *Native) TTLMs(ctx context.Context, key string) (Expiration, error) {
	d, err := n.client.PTTL(ctx, key).Result()
	if err != nil {
		return Expiration{}, mapError("PTTL", err)
	}
	return nativeExpiration(d), nil
}

func (n *Native) Persist(ctx context.Context, key string) (bool, error) {
	ok, err := n.client.Persist(ctx, key).Result()
	return ok, mapError("PERSIST", err)
}

func (n *Native) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := n.client.SetNX(ctx, key, token, time.Duration(millis(ttl))*time.Millisecond).Result()
	return ok, mapError("SET", err)
}

func (n *Native) Release(ctx context.Context, key, token string) (bool, error) {
	return n.run(ctx, releaseScript, key, token)
}

func (n *Native) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return n.run(ctx, refreshScript, key, token, millis(ttl))
}

func (n *Native) run(ctx context.Context, s *redis.Script, key string, args ...any) (bool, error) {
	v, err := s.Run(ctx, n.client, []string{key}, args...).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, mapError("EVAL", err)
	}
	return v == 1, nil
}

// nativeExpiration maps go-redis TTL results, which keep -1 and -2 as raw
// nanosecond values.
func nativeExpiration(d time.Duration) Expiration {
	switch d {
	case -2:
		return Expiration{State: Missing}
	case -1:
		return Expiration{State: Persistent}
	default:
		return Expiration{State: Expiring, Remaining: d}
	}
}

// mapError translates go-redis failures into the package error taxonomy.
func mapError(cmd string, err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	switch {
	case stdErrors.Is(err, context.DeadlineExceeded), stdErrors.As(err, &ne) && ne.Timeout():
		return rerrors.Op(cmd, "", rerrors.ErrTimeout)
	case stdErrors.Is(err, redis.ErrClosed):
		return rerrors.Op(cmd, "", rerrors.ErrConnectionClosed)
	case stdErrors.Is(err, context.Canceled):
		return err
	}
	var re redis.Error
	if stdErrors.As(err, &re) {
		return rerrors.Op(cmd, re.Error(), rerrors.ErrServer)
	}
	if isDialError(err) {
		return rerrors.Op(cmd, "connect", err)
	}
	return rerrors.Op(cmd, "", err)
}

func isDialError(err error) bool {
	var oe *net.OpError
	return stdErrors.As(err, &oe) && oe.Op == "dial"
}

var _ Adapter = (*Native)(nil)
