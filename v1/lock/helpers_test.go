package lock

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/charcoal-dev/cache-redis-client/v1/adapter"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

// stubStore scripts Acquire results and keeps other keys in a map.
type stubStore struct {
	mu         sync.Mutex
	acquire    []bool // consumed in order; the last value repeats
	acquireErr error
	releaseOK  bool
	releaseErr error
	refreshOK  bool
	refreshErr error
	refreshes  int
	getErr     error
	attempts   int
	gets       int
	values     map[string]string
}

func newStubStore(acquire ...bool) *stubStore {
	return &stubStore{acquire: acquire, releaseOK: true, refreshOK: true, values: map[string]string{}}
}

func (s *stubStore) Acquire(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.acquireErr != nil {
		return false, s.acquireErr
	}
	ok := s.acquire[0]
	if len(s.acquire) > 1 {
		s.acquire = s.acquire[1:]
	}
	if ok {
		s.values[key] = token
	}
	return ok, nil
}

func (s *stubStore) Release(_ context.Context, key, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releaseErr != nil {
		return false, s.releaseErr
	}
	if s.releaseOK {
		delete(s.values, key)
	}
	return s.releaseOK, nil
}

func (s *stubStore) Refresh(context.Context, string, string, time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.refreshErr != nil {
		return false, s.refreshErr
	}
	return s.refreshOK, nil
}

func (s *stubStore) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *stubStore) setRefresh(ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshOK, s.refreshErr = ok, err
}

func (s *stubStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *stubStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *stubStore) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// newRedis starts miniredis and returns a factory for independent socket
// adapters pointed at it.
func newRedis(t *testing.T) (*miniredis.Miniredis, func() *adapter.Socket) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	host, p, _ := net.SplitHostPort(mr.Addr())
	port, _ := strconv.Atoi(p)

	var (
		mu      sync.Mutex
		sockets []*adapter.Socket
	)
	t.Cleanup(func() {
		mu.Lock()
		for _, s := range sockets {
			_ = s.Disconnect(context.Background())
		}
		mu.Unlock()
		mr.Close()
	})
	return mr, func() *adapter.Socket {
		s := adapter.NewSocket(host, port)
		mu.Lock()
		sockets = append(sockets, s)
		mu.Unlock()
		return s
	}
}

type hookRegistry struct {
	hooks []func(context.Context) error
}

func (r *hookRegistry) OnShutdown(fn func(context.Context) error) {
	r.hooks = append(r.hooks, fn)
}

func (r *hookRegistry) run(ctx context.Context) {
	for i := len(r.hooks) - 1; i >= 0; i-- {
		_ = r.hooks[i](ctx)
	}
}
