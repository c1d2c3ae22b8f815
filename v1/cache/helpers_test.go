package cache

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/charcoal-dev/cache-redis-client/v1/adapter"
	"github.com/charcoal-dev/cache-redis-client/v1/transport"
)

// newSocket starts miniredis and returns a socket adapter pointed at it.
func newSocket(t *testing.T, opts ...transport.Option) (*adapter.Socket, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	host, p, _ := net.SplitHostPort(mr.Addr())
	port, _ := strconv.Atoi(p)
	s := adapter.NewSocket(host, port, opts...)
	t.Cleanup(func() {
		_ = s.Disconnect(context.Background())
		mr.Close()
	})
	return s, mr
}

func newTyped[T any](t *testing.T, store Store, opts ...Option) *Redis[T] {
	t.Helper()
	c, err := NewRedis[T](store, opts...)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}
