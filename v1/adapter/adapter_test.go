package adapter_test

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/charcoal-dev/cache-redis-client/v1/adapter"
	rerrors "github.com/charcoal-dev/cache-redis-client/v1/errors"
)

// newBackends returns one adapter per backend, both talking to the same
// miniredis server.
func newBackends(t *testing.T) (map[adapter.Backend]adapter.Adapter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	host, p, _ := net.SplitHostPort(mr.Addr())
	port, _ := strconv.Atoi(p)

	out := make(map[adapter.Backend]adapter.Adapter)
	for _, b := range []adapter.Backend{adapter.BackendSocket, adapter.BackendNative} {
		a, err := adapter.New(b, host, port, adapter.WithTimeout(time.Second))
		if err != nil {
			t.Fatalf("New(%s): %v", b, err)
		}
		out[b] = a
	}
	t.Cleanup(func() {
		for _, a := range out {
			_ = a.Disconnect(context.Background())
		}
		mr.Close()
	})
	return out, mr
}

// forEachBackend runs fn once per backend against a freshly flushed server.
func forEachBackend(t *testing.T, fn func(t *testing.T, a adapter.Adapter, mr *miniredis.Miniredis)) {
	backends, mr := newBackends(t)
	for _, b := range []adapter.Backend{adapter.BackendSocket, adapter.BackendNative} {
		t.Run(string(b), func(t *testing.T) {
			mr.FlushAll()
			fn(t, backends[b], mr)
		})
	}
}

func TestSetGetHasDeleteScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, _ *miniredis.Miniredis) {
		ctx := context.Background()
		if err := a.Set(ctx, "k", "v", 60*time.Second); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if v, ok, err := a.Get(ctx, "k"); err != nil || !ok || v != "v" {
			t.Fatalf("Get: got %q ok=%v err=%v", v, ok, err)
		}
		if ok, err := a.Has(ctx, "k"); err != nil || !ok {
			t.Fatalf("Has: ok=%v err=%v", ok, err)
		}
		if ok, err := a.Delete(ctx, "k"); err != nil || !ok {
			t.Fatalf("Delete: ok=%v err=%v", ok, err)
		}
		if _, ok, err := a.Get(ctx, "k"); err != nil || ok {
			t.Fatalf("Get after delete: ok=%v err=%v", ok, err)
		}
		if ok, err := a.Delete(ctx, "k"); err != nil || ok {
			t.Fatalf("second Delete should report false, ok=%v err=%v", ok, err)
		}
		if ok, err := a.Has(ctx, "k"); err != nil || ok {
			t.Fatalf("Has after delete: ok=%v err=%v", ok, err)
		}
	})
}

func TestSetEmptyValue(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, _ *miniredis.Miniredis) {
		ctx := context.Background()
		if err := a.Set(ctx, "e", "", 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := a.Get(ctx, "e")
		if err != nil || !ok || v != "" {
			t.Fatalf("empty value must be present: %q ok=%v err=%v", v, ok, err)
		}
	})
}

func TestSetTTLRoundsUpToSeconds(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, mr *miniredis.Miniredis) {
		ctx := context.Background()
		if err := a.Set(ctx, "k", "v", 1500*time.Millisecond); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if got := mr.TTL("k"); got != 2*time.Second {
			t.Fatalf("ttl = %v, want 2s", got)
		}
	})
}

func TestTTLMapping(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, mr *miniredis.Miniredis) {
		ctx := context.Background()

		e, err := a.TTL(ctx, "missing")
		if err != nil || e.State != adapter.Missing || e.Exists() {
			t.Fatalf("missing key: %+v err=%v", e, err)
		}

		if err := a.Set(ctx, "plain", "v", 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		e, err = a.TTL(ctx, "plain")
		if err != nil || e.State != adapter.Persistent {
			t.Fatalf("persistent key: %+v err=%v", e, err)
		}
		e, err = a.TTLMs(ctx, "plain")
		if err != nil || e.State != adapter.Persistent {
			t.Fatalf("persistent key ms: %+v err=%v", e, err)
		}

		if err := a.Set(ctx, "exp", "v", 60*time.Second); err != nil {
			t.Fatalf("Set: %v", err)
		}
		e, err = a.TTL(ctx, "exp")
		if err != nil || e.State != adapter.Expiring || e.Remaining != 60*time.Second {
			t.Fatalf("expiring key: %+v err=%v", e, err)
		}
		e, err = a.TTLMs(ctx, "exp")
		if err != nil || e.State != adapter.Expiring || e.Remaining != 60*time.Second {
			t.Fatalf("expiring key ms: %+v err=%v", e, err)
		}
	})
}

func TestExpireAndPersist(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, mr *miniredis.Miniredis) {
		ctx := context.Background()
		if ok, err := a.Expire(ctx, "nope", time.Second); err != nil || ok {
			t.Fatalf("Expire missing: ok=%v err=%v", ok, err)
		}
		if err := a.Set(ctx, "k", "v", 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if ok, err := a.Expire(ctx, "k", 10*time.Second); err != nil || !ok {
			t.Fatalf("Expire: ok=%v err=%v", ok, err)
		}
		if got := mr.TTL("k"); got != 10*time.Second {
			t.Fatalf("ttl = %v", got)
		}
		if ok, err := a.ExpireMs(ctx, "k", 2500*time.Millisecond); err != nil || !ok {
			t.Fatalf("ExpireMs: ok=%v err=%v", ok, err)
		}
		if got := mr.TTL("k"); got != 2500*time.Millisecond {
			t.Fatalf("pttl = %v", got)
		}
		if ok, err := a.Persist(ctx, "k"); err != nil || !ok {
			t.Fatalf("Persist: ok=%v err=%v", ok, err)
		}
		if ok, err := a.Persist(ctx, "k"); err != nil || ok {
			t.Fatalf("second Persist: ok=%v err=%v", ok, err)
		}
		mr.FastForward(time.Hour)
		if ok, err := a.Has(ctx, "k"); err != nil || !ok {
			t.Fatalf("persisted key expired: ok=%v err=%v", ok, err)
		}
	})
}

func TestCounters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, _ *miniredis.Miniredis) {
		ctx := context.Background()
		steps := []struct {
			name string
			op   func() (int64, error)
			want int64
		}{
			{"incr", func() (int64, error) { return a.Incr(ctx, "n") }, 1},
			{"incrby", func() (int64, error) { return a.IncrBy(ctx, "n", 10) }, 11},
			{"decr", func() (int64, error) { return a.Decr(ctx, "n") }, 10},
			{"decrby", func() (int64, error) { return a.DecrBy(ctx, "n", 15) }, -5},
		}
		for _, s := range steps {
			got, err := s.op()
			if err != nil {
				t.Fatalf("%s: %v", s.name, err)
			}
			if got != s.want {
				t.Fatalf("%s = %d, want %d", s.name, got, s.want)
			}
		}

		if err := a.Set(ctx, "text", "abc", 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		_, err := a.Incr(ctx, "text")
		if !rerrors.IsOperation(err) || !errors.Is(err, rerrors.ErrServer) {
			t.Fatalf("Incr on text: expected server OperationError, got %v", err)
		}
	})
}

func TestGetSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, _ *miniredis.Miniredis) {
		ctx := context.Background()
		if _, ok, err := a.GetSet(ctx, "g", "one"); err != nil || ok {
			t.Fatalf("first GetSet: ok=%v err=%v", ok, err)
		}
		old, ok, err := a.GetSet(ctx, "g", "two")
		if err != nil || !ok || old != "one" {
			t.Fatalf("second GetSet: %q ok=%v err=%v", old, ok, err)
		}
		if v, _, _ := a.Get(ctx, "g"); v != "two" {
			t.Fatalf("Get = %q", v)
		}
	})
}

func TestTruncateAndPing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, mr *miniredis.Miniredis) {
		ctx := context.Background()
		if err := a.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
		_ = a.Set(ctx, "a", "1", 0)
		_ = a.Set(ctx, "b", "2", 0)
		if ok, err := a.Truncate(ctx); err != nil || !ok {
			t.Fatalf("Truncate: ok=%v err=%v", ok, err)
		}
		if keys := mr.Keys(); len(keys) != 0 {
			t.Fatalf("keys left after truncate: %v", keys)
		}
	})
}

func TestAcquireContendReleaseScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, _ *miniredis.Miniredis) {
		ctx := context.Background()
		if ok, err := a.Acquire(ctx, "L", "tok1", time.Second); err != nil || !ok {
			t.Fatalf("first Acquire: ok=%v err=%v", ok, err)
		}
		if ok, err := a.Acquire(ctx, "L", "tok2", time.Second); err != nil || ok {
			t.Fatalf("contending Acquire: ok=%v err=%v", ok, err)
		}
		if ok, err := a.Release(ctx, "L", "tok1"); err != nil || !ok {
			t.Fatalf("Release: ok=%v err=%v", ok, err)
		}
		if ok, err := a.Acquire(ctx, "L", "tok2", time.Second); err != nil || !ok {
			t.Fatalf("re-Acquire: ok=%v err=%v", ok, err)
		}
	})
}

func TestAcquireExpiresWithTTL(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, mr *miniredis.Miniredis) {
		ctx := context.Background()
		if ok, _ := a.Acquire(ctx, "L", "tok1", 500*time.Millisecond); !ok {
			t.Fatal("Acquire failed")
		}
		if got := mr.TTL("L"); got != 500*time.Millisecond {
			t.Fatalf("lock ttl = %v", got)
		}
		mr.FastForward(time.Second)
		if ok, err := a.Acquire(ctx, "L", "tok2", time.Second); err != nil || !ok {
			t.Fatalf("Acquire after expiry: ok=%v err=%v", ok, err)
		}
	})
}

func TestTokenOwnership(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, mr *miniredis.Miniredis) {
		ctx := context.Background()
		if ok, _ := a.Acquire(ctx, "L", "mine", 10*time.Second); !ok {
			t.Fatal("Acquire failed")
		}

		if ok, err := a.Release(ctx, "L", "theirs"); err != nil || ok {
			t.Fatalf("foreign Release: ok=%v err=%v", ok, err)
		}
		if ok, err := a.Refresh(ctx, "L", "theirs", time.Minute); err != nil || ok {
			t.Fatalf("foreign Refresh: ok=%v err=%v", ok, err)
		}
		if v, _ := mr.Get("L"); v != "mine" {
			t.Fatalf("lock value changed to %q", v)
		}
		if got := mr.TTL("L"); got != 10*time.Second {
			t.Fatalf("lock ttl changed to %v", got)
		}

		if ok, err := a.Refresh(ctx, "L", "mine", time.Minute); err != nil || !ok {
			t.Fatalf("own Refresh: ok=%v err=%v", ok, err)
		}
		if got := mr.TTL("L"); got != time.Minute {
			t.Fatalf("refreshed ttl = %v", got)
		}

		if ok, err := a.Release(ctx, "missing", "mine"); err != nil || ok {
			t.Fatalf("Release of missing key: ok=%v err=%v", ok, err)
		}
	})
}

func TestServerErrorIsOperationError(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, mr *miniredis.Miniredis) {
		ctx := context.Background()
		if err := a.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
		mr.SetError("ERR injected")
		defer mr.SetError("")
		_, _, err := a.Get(ctx, "k")
		var oe *rerrors.OperationError
		if !errors.As(err, &oe) {
			t.Fatalf("expected OperationError, got %v", err)
		}
		if oe.Cmd != "GET" || oe.Msg != "ERR injected" {
			t.Fatalf("unexpected error %+v", oe)
		}
	})
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, p, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(p)
	_ = ln.Close()

	for _, b := range []adapter.Backend{adapter.BackendSocket, adapter.BackendNative} {
		t.Run(string(b), func(t *testing.T) {
			a, err := adapter.New(b, host, port, adapter.WithTimeout(200*time.Millisecond))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer a.Disconnect(context.Background())
			if err := a.Connect(context.Background()); !rerrors.IsConnection(err) {
				t.Fatalf("expected ConnectionError, got %v", err)
			}
			if a.IsConnected() {
				t.Fatal("adapter must not report connected")
			}
		})
	}
}

func TestConnectDisconnect(t *testing.T) {
	forEachBackend(t, func(t *testing.T, a adapter.Adapter, _ *miniredis.Miniredis) {
		ctx := context.Background()
		if err := a.Connect(ctx); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if !a.IsConnected() {
			t.Fatal("expected connected")
		}
		if err := a.Disconnect(ctx); err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
		if a.IsConnected() {
			t.Fatal("expected disconnected")
		}
		if err := a.Disconnect(ctx); err != nil {
			t.Fatalf("second Disconnect: %v", err)
		}
	})
}
