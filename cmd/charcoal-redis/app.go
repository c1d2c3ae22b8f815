package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/charcoal-dev/cache-redis-client/v1/adapter"
	"github.com/charcoal-dev/cache-redis-client/v1/cache"
	"github.com/charcoal-dev/cache-redis-client/v1/config"
	"github.com/charcoal-dev/cache-redis-client/v1/metrics"
)

// Build information, set via ldflags.
var Version = "dev"

const runtimeKey = "runtime"

// runtime holds what Before sets up for a command and After tears down.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	events  *cache.Events
	adapter adapter.Adapter
	tracing bool

	tp      *sdktrace.TracerProvider
	metrics *http.Server
}

// App builds the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "charcoal-redis",
		Usage:   "Redis cache and lock client",
		Version: Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			pingCommand(),
			getCommand(),
			setCommand(),
			delCommand(),
			hasCommand(),
			incrCommand(),
			ttlCommand(),
			expireCommand(),
			persistCommand(),
			flushCommand(),
			lockCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
		},
		&cli.StringFlag{Name: "host", Usage: "Redis host"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Redis port"},
		&cli.DurationFlag{Name: "timeout", Usage: "Per-command timeout"},
		&cli.StringFlag{Name: "backend", Usage: "Adapter backend: socket or native"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: text or json"},
		&cli.BoolFlag{Name: "trace", Usage: "Print OpenTelemetry spans to stderr"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address"},
	}
}

// overrides maps the global flags that were set to config keys.
func overrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"host":       "redis.host",
		"port":       "redis.port",
		"timeout":    "redis.timeout",
		"backend":    "redis.backend",
		"log-level":  "log.level",
		"log-format": "log.format",
	}
	out := make(map[string]any)
	for flag, key := range keys {
		if c.IsSet(flag) {
			out[key] = c.Value(flag)
		}
	}
	return out
}

func setup(c *cli.Context) error {
	cfg, err := config.Load(
		config.WithConfigFile(c.String("config")),
		config.WithOverrides(overrides(c)),
	)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return err
	}

	rt := &runtime{cfg: cfg, logger: logger, events: cache.NewEvents(logger)}
	c.App.Metadata[runtimeKey] = rt
	if c.Bool("trace") {
		if err := rt.startTracing(c.App.ErrWriter); err != nil {
			return err
		}
	}
	if addr := c.String("metrics-addr"); addr != "" {
		if err := rt.serveMetrics(addr); err != nil {
			return err
		}
	}

	opts := append(cfg.AdapterOptions(logger), adapter.WithObserver(rt.events))
	if rt.tracing {
		opts = append(opts, adapter.WithTracing())
	}
	rt.adapter, err = cfg.NewAdapter(opts...)
	return err
}

func teardown(c *cli.Context) error {
	rt, ok := c.App.Metadata[runtimeKey].(*runtime)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if rt.adapter != nil {
		errs = append(errs, rt.adapter.Disconnect(ctx))
	}
	if rt.tp != nil {
		errs = append(errs, rt.tp.Shutdown(ctx))
	}
	if rt.metrics != nil {
		errs = append(errs, rt.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func fromContext(c *cli.Context) *runtime {
	return c.App.Metadata[runtimeKey].(*runtime)
}

func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}

func (rt *runtime) startTracing(w io.Writer) error {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}
	rt.tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(rt.tp)
	rt.tracing = true
	return nil
}

func (rt *runtime) serveMetrics(addr string) error {
	reg := metrics.NewRegistry()
	metrics.Register(reg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	rt.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := rt.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server stopped", "error", err)
		}
	}()
	rt.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}
