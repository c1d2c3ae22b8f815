package adapter

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rerrors "github.com/charcoal-dev/cache-redis-client/v1/errors"
	"github.com/charcoal-dev/cache-redis-client/v1/metrics"
	"github.com/charcoal-dev/cache-redis-client/v1/transport"
)

var tracer = otel.Tracer("github.com/charcoal-dev/cache-redis-client/v1/adapter")

// hook gives the go-redis backend the same metrics, spans, logs and
// observer callbacks the socket transport produces.
type hook struct {
	addr     string
	logger   *slog.Logger
	observer transport.Observer
	tracing  bool
}

func newHook(addr string, o options) *hook {
	return &hook{addr: addr, logger: o.logger, observer: o.observer, tracing: o.tracing}
}

func (h *hook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		nc, err := next(ctx, network, addr)
		if err != nil {
			h.logger.Warn("redis: connect failed", "addr", addr, "error", err)
			return nil, err
		}
		id := uuid.NewString()
		metrics.ConnectionEvents.WithLabelValues("connect").Inc()
		metrics.ConnectedGauge.Inc()
		h.logger.Debug("redis: connected", "conn", id, "addr", addr)
		if h.observer != nil {
			h.observer.Connected(id, addr)
		}
		return &observedConn{Conn: nc, onClose: func() {
			metrics.ConnectionEvents.WithLabelValues("disconnect").Inc()
			metrics.ConnectedGauge.Dec()
			h.logger.Debug("redis: disconnected", "conn", id, "addr", addr)
			if h.observer != nil {
				h.observer.Disconnected(id, addr)
			}
		}}, nil
	}
}

func (h *hook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		name := strings.ToUpper(cmd.Name())
		var span trace.Span
		if h.tracing {
			ctx, span = tracer.Start(ctx, "redis."+name, trace.WithSpanKind(trace.SpanKindClient))
			defer span.End()
			span.SetAttributes(
				attribute.String("db.system", "redis"),
				attribute.String("db.operation", name),
				attribute.String("net.peer.name", h.addr),
			)
		}

		start := time.Now()
		err := next(ctx, cmd)
		metrics.CommandLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

		status := "ok"
		switch mapped := mapError(name, err); {
		case err == nil || err == redis.Nil:
		case rerrors.IsTimeout(mapped):
			status = "timeout"
		default:
			status = "error"
		}
		metrics.CommandCounter.WithLabelValues(name, status).Inc()
		if status != "ok" && span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

func (h *hook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

type observedConn struct {
	net.Conn
	once    sync.Once
	onClose func()
}

func (c *observedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.onClose)
	return err
}
