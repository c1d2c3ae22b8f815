// Package transport owns the TCP socket to a Redis server and drives one
// request/response exchange at a time over it.
package transport

import (
	"context"
	stdErrors "errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rerrors "github.com/charcoal-dev/cache-redis-client/v1/errors"
	"github.com/charcoal-dev/cache-redis-client/v1/metrics"
	"github.com/charcoal-dev/cache-redis-client/v1/resp"
)

var tracer = otel.Tracer("github.com/charcoal-dev/cache-redis-client/v1/transport")

// Conn is a single Redis connection. It connects lazily on the first
// command and reconnects lazily after the socket was dropped. Calls are
// serialized, so each reply is always paired with its command.
type Conn struct {
	id   string
	host string
	port int
	opts options

	mu       sync.Mutex
	nc       net.Conn
	rd       *resp.Reader
	timedOut bool
	buf      []byte
}

// New returns a disconnected Conn for host:port.
func New(host string, port int, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()
	if port <= 0 {
		port = DefaultPort
	}
	return &Conn{
		id:   uuid.NewString(),
		host: host,
		port: port,
		opts: o,
	}
}

// ID identifies this connection in logs and spans.
func (c *Conn) ID() string { return c.id }

// Addr returns host:port.
func (c *Conn) Addr() string { return net.JoinHostPort(c.host, strconv.Itoa(c.port)) }

// Timeout returns the per-command deadline.
func (c *Conn) Timeout() time.Duration { return c.opts.timeout }

// Clone returns a new Conn with the same settings. The clone never shares
// the socket; it starts disconnected.
func (c *Conn) Clone() *Conn {
	return &Conn{
		id:   uuid.NewString(),
		host: c.host,
		port: c.port,
		opts: c.opts,
	}
}

// Connect opens the socket if it is not already open.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// IsConnected reports whether a socket is held and the last I/O on it did
// not time out.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nc != nil && !c.timedOut
}

// Do sends one command and reads its reply. An error reply from the server
// is returned as an OperationError carrying the server message verbatim.
func (c *Conn) Do(ctx context.Context, args ...string) (resp.Reply, error) {
	if len(args) == 0 {
		return resp.Reply{}, rerrors.Op("", "empty command", nil)
	}
	cmd := strings.ToUpper(args[0])

	var span trace.Span
	if c.opts.traceEnabled {
		ctx, span = tracer.Start(ctx, "redis."+cmd, trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", cmd),
			attribute.String("net.peer.name", c.host),
			attribute.Int("net.peer.port", c.port),
			attribute.String("charcoal.redis.conn", c.id),
		)
	}

	start := time.Now()
	c.mu.Lock()
	reply, err := c.exchangeLocked(ctx, cmd, args)
	c.mu.Unlock()
	metrics.CommandLatency.WithLabelValues(cmd).Observe(time.Since(start).Seconds())

	if err == nil && reply.Kind == resp.Error {
		err = rerrors.Op(cmd, reply.Str, rerrors.ErrServer)
	}
	switch {
	case err == nil:
		metrics.CommandCounter.WithLabelValues(cmd, "ok").Inc()
	case rerrors.IsTimeout(err):
		metrics.CommandCounter.WithLabelValues(cmd, "timeout").Inc()
	default:
		metrics.CommandCounter.WithLabelValues(cmd, "error").Inc()
	}
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return resp.Reply{}, err
	}
	return reply, nil
}

// Disconnect sends QUIT on a live socket, ignoring any failure, and then
// releases the socket unconditionally.
func (c *Conn) Disconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc != nil && !c.timedOut {
		_, _ = c.roundTripLocked(ctx, "QUIT", []string{"QUIT"})
	}
	c.closeLocked()
}

func (c *Conn) exchangeLocked(ctx context.Context, cmd string, args []string) (resp.Reply, error) {
	if c.nc == nil || c.timedOut {
		c.closeLocked()
		if err := c.connectLocked(ctx); err != nil {
			return resp.Reply{}, err
		}
	}
	return c.roundTripLocked(ctx, cmd, args)
}

func (c *Conn) connectLocked(ctx context.Context) error {
	if c.nc != nil && !c.timedOut {
		return nil
	}
	c.closeLocked()

	addr := c.Addr()
	nc, err := c.opts.dial(ctx, "tcp", addr)
	if err != nil {
		c.opts.logger.Warn("redis: connect failed", "conn", c.id, "addr", addr, "error", err)
		return &rerrors.ConnectionError{Addr: addr, Err: err}
	}

	c.nc = nc
	c.rd = resp.NewReader(nc)
	c.timedOut = false
	metrics.ConnectionEvents.WithLabelValues("connect").Inc()
	metrics.ConnectedGauge.Inc()
	c.opts.logger.Debug("redis: connected", "conn", c.id, "addr", addr)
	if c.opts.observer != nil {
		c.opts.observer.Connected(c.id, addr)
	}
	return nil
}

func (c *Conn) roundTripLocked(ctx context.Context, cmd string, args []string) (resp.Reply, error) {
	deadline := time.Now().Add(c.opts.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.nc.SetDeadline(deadline); err != nil {
		return resp.Reply{}, c.failLocked(cmd, "set deadline", err)
	}

	c.buf = resp.AppendCommand(c.buf[:0], args...)
	for written := 0; written < len(c.buf); {
		n, err := c.nc.Write(c.buf[written:])
		if err != nil {
			return resp.Reply{}, c.failLocked(cmd, "write", err)
		}
		if n == 0 {
			return resp.Reply{}, c.failLocked(cmd, "write", io.ErrShortWrite)
		}
		written += n
	}

	reply, err := c.rd.ReadReply()
	if err != nil {
		return resp.Reply{}, c.failLocked(cmd, "read reply", err)
	}
	return reply, nil
}

// failLocked classifies an I/O or framing failure and drops the socket:
// after any of them the stream can no longer be trusted to pair replies
// with commands.
func (c *Conn) failLocked(cmd, msg string, err error) error {
	var ne net.Error
	switch {
	case stdErrors.As(err, &ne) && ne.Timeout():
		c.timedOut = true
		c.opts.logger.Warn("redis: command timed out", "conn", c.id, "cmd", cmd, "timeout", c.opts.timeout)
		err = rerrors.ErrTimeout
	case stdErrors.Is(err, io.EOF), stdErrors.Is(err, io.ErrUnexpectedEOF), stdErrors.Is(err, net.ErrClosed):
		err = rerrors.ErrConnectionClosed
	}
	c.closeLocked()
	return rerrors.Op(cmd, msg, err)
}

func (c *Conn) closeLocked() {
	if c.nc == nil {
		return
	}
	_ = c.nc.Close()
	c.nc = nil
	c.rd = nil
	metrics.ConnectionEvents.WithLabelValues("disconnect").Inc()
	metrics.ConnectedGauge.Dec()
	c.opts.logger.Debug("redis: disconnected", "conn", c.id, "addr", c.Addr())
	if c.opts.observer != nil {
		c.opts.observer.Disconnected(c.id, c.Addr())
	}
}
