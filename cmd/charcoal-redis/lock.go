package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/charcoal-dev/cache-redis-client/v1/lock"
	"github.com/charcoal-dev/cache-redis-client/v1/shutdown"
)

func lockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "Obtain a semaphore, hold it, then release it",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "namespace", Usage: "Lock namespace"},
			&cli.DurationFlag{Name: "poll", Usage: "Retry a held lock at this interval"},
			&cli.DurationFlag{Name: "wait", Usage: "Give up polling after this long"},
			&cli.DurationFlag{Name: "ttl", Usage: "Lock key time to live"},
			&cli.DurationFlag{Name: "hold", Usage: "Hold the lock this long; SIGINT or SIGTERM release it early"},
		},
		Action: runLock,
	}
}

func lockOptions(c *cli.Context, rt *runtime) []lock.Option {
	opts := rt.cfg.LockOptions(rt.logger)
	if c.IsSet("namespace") {
		opts = append(opts, lock.WithNamespace(c.String("namespace")))
	}
	if c.IsSet("poll") {
		opts = append(opts, lock.WithPollInterval(c.Duration("poll")))
	}
	if c.IsSet("wait") {
		opts = append(opts, lock.WithTimeout(c.Duration("wait")))
	}
	if c.IsSet("ttl") {
		opts = append(opts, lock.WithTTL(c.Duration("ttl")))
	}
	if rt.tracing {
		opts = append(opts, lock.WithTracing())
	}
	return opts
}

func runLock(c *cli.Context) error {
	in, err := args(c, 1)
	if err != nil {
		return err
	}
	rt := fromContext(c)
	w := c.App.Writer

	l, err := lock.NewSemaphore(rt.adapter, lockOptions(c, rt)...).Obtain(c.Context, in[0])
	if err != nil {
		return err
	}
	start := time.Now()
	if prev, ok := l.PreviousTimestamp(c.Context); ok {
		fmt.Fprintf(w, "acquired %s; previous holder acquired it %s ago\n", l.Key(), time.Since(prev).Round(time.Millisecond))
	} else {
		fmt.Fprintf(w, "acquired %s; no previous holder\n", l.Key())
	}

	sigCtx, stopSignals := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	stop := l.KeepAlive(sigCtx)

	// Hooks run newest first: the refresher stops before the release.
	timeout := 4 * rt.cfg.Redis.Timeout
	h := shutdown.NewHandler(timeout)
	l.SetAutoRelease(h)
	h.OnShutdown(func(context.Context) error {
		stop()
		return nil
	})

	hold := time.NewTimer(c.Duration("hold"))
	defer hold.Stop()
	var interrupted bool
	select {
	case <-sigCtx.Done():
		interrupted = true
	case <-hold.C:
	}

	if timeout <= 0 {
		timeout = shutdown.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), timeout)
	defer cancel()
	if interrupted {
		return h.Run(ctx)
	}

	stop()
	if !l.IsLocked() {
		return fmt.Errorf("%s: %w", l.Key(), lock.ErrNotHeld)
	}
	if err := l.Release(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "released %s after %s\n", l.Key(), time.Since(start).Round(time.Millisecond))
	return nil
}
