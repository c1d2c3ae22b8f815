package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/charcoal-dev/cache-redis-client/v1/transport"
)

// Socket is the Adapter that speaks RESP over its own transport.Conn. It is
// not safe for concurrent logical operations beyond what the Conn
// serializes; use one Socket per goroutine that needs independent ordering.
type Socket struct {
	Counters
	Expiry
	Locks

	conn *transport.Conn
}

// NewSocket returns a disconnected Socket for host:port.
func NewSocket(host string, port int, opts ...transport.Option) *Socket {
	return NewSocketConn(transport.New(host, port, opts...))
}

// NewSocketConn wraps an existing Conn.
func NewSocketConn(c *transport.Conn) *Socket {
	return &Socket{
		Counters: NewCounters(c),
		Expiry:   NewExpiry(c),
		Locks:    NewLocks(c),
		conn:     c,
	}
}

// Conn returns the underlying connection.
func (s *Socket) Conn() *transport.Conn { return s.conn }

// Clone returns a Socket with the same settings and its own, disconnected
// connection.
func (s *Socket) Clone() *Socket { return NewSocketConn(s.conn.Clone()) }

func (s *Socket) Connect(ctx context.Context) error { return s.conn.Connect(ctx) }

// Disconnect sends QUIT and closes the socket. It never fails.
func (s *Socket) Disconnect(ctx context.Context) error {
	s.conn.Disconnect(ctx)
	return nil
}

func (s *Socket) IsConnected() bool { return s.conn.IsConnected() }

func (s *Socket) Ping(ctx context.Context) error {
	r, err := s.conn.Do(ctx, "PING")
	if err != nil {
		return err
	}
	return pongReply(r)
}

func (s *Socket) Get(ctx context.Context, key string) (string, bool, error) {
	r, err := s.conn.Do(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	return bulkReply("GET", r)
}

// Set uses SETEX when ttl is positive. SETEX only takes whole seconds, so a
// fractional ttl is rounded up.
func (s *Socket) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	cmd := []string{"SET", key, value}
	if ttl > 0 {
		cmd = []string{"SETEX", key, strconv.FormatInt(seconds(ttl), 10), value}
	}
	r, err := s.conn.Do(ctx, cmd...)
	if err != nil {
		return err
	}
	return okReply(cmd[0], r)
}

func (s *Socket) Has(ctx context.Context, key string) (bool, error) {
	r, err := s.conn.Do(ctx, "EXISTS", key)
	if err != nil {
		return false, err
	}
	return flagReply("EXISTS", r)
}

func (s *Socket) Delete(ctx context.Context, key string) (bool, error) {
	r, err := s.conn.Do(ctx, "DEL", key)
	if err != nil {
		return false, err
	}
	return flagReply("DEL", r)
}

func (s *Socket) Truncate(ctx context.Context) (bool, error) {
	r, err := s.conn.Do(ctx, "FLUSHALL")
	if err != nil {
		return false, err
	}
	return r.IsOK(), nil
}

var _ Adapter = (*Socket)(nil)
