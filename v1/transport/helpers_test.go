package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/charcoal-dev/cache-redis-client/v1/resp"
)

var errHangup = errors.New("hang up")

// fakeServer is a minimal RESP server whose replies are scripted by the
// test. A handler returning an error makes the server drop the client.
type fakeServer struct {
	ln     net.Listener
	handle func(args []string, w *resp.Writer) error
	done   chan struct{}

	mu    sync.Mutex
	cmds  [][]string
	conns []net.Conn
	wg    sync.WaitGroup
	dials int
}

func newFakeServer(t *testing.T, handle func(args []string, w *resp.Writer) error) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, handle: handle, done: make(chan struct{})}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) serve() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, nc)
		s.dials++
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serveConn(nc)
	}
}

func (s *fakeServer) serveConn(nc net.Conn) {
	defer s.wg.Done()
	defer nc.Close()
	rd := resp.NewReader(bufio.NewReader(nc))
	w := resp.NewWriter(nc)
	for {
		args, err := rd.ReadCommand()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.cmds = append(s.cmds, args)
		s.mu.Unlock()
		if err := s.handle(args, w); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *fakeServer) close() {
	close(s.done)
	_ = s.ln.Close()
	s.mu.Lock()
	for _, nc := range s.conns {
		_ = nc.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *fakeServer) hostPort(t *testing.T) (string, int) {
	return splitAddr(t, s.ln.Addr().String())
}

func (s *fakeServer) commands() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.cmds...)
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("port %q: %v", p, err)
	}
	return host, port
}

func newMiniredisConn(t *testing.T, opts ...Option) (*Conn, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	host, port := splitAddr(t, mr.Addr())
	c := New(host, port, opts...)
	t.Cleanup(func() {
		c.Disconnect(context.Background())
		mr.Close()
	})
	return c, mr
}

type recordingObserver struct {
	mu           sync.Mutex
	connected    int
	disconnected int
}

func (o *recordingObserver) Connected(id, addr string) {
	o.mu.Lock()
	o.connected++
	o.mu.Unlock()
}

func (o *recordingObserver) Disconnected(id, addr string) {
	o.mu.Lock()
	o.disconnected++
	o.mu.Unlock()
}

func (o *recordingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected, o.disconnected
}

// tricklingConn writes at most one byte per call.
type tricklingConn struct {
	net.Conn
	writes int
}

func (c *tricklingConn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c.writes++
	return c.Conn.Write(p[:1])
}

// stalledConn accepts no bytes and reports no error.
type stalledConn struct {
	net.Conn
}

func (stalledConn) Write([]byte) (int, error) { return 0, nil }

// dialWrapped dials addr over TCP and hands the socket to wrap.
func dialWrapped(wrap func(net.Conn) net.Conn) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		nc, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return wrap(nc), nil
	}
}
