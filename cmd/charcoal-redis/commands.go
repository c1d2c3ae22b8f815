package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/charcoal-dev/cache-redis-client/v1/adapter"
)

// args returns the n positional arguments of c or a usage error.
func args(c *cli.Context, n int) ([]string, error) {
	if c.NArg() != n {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", c.Command.Name, n, c.NArg())
	}
	return c.Args().Slice(), nil
}

// withAdapter runs fn with the configured adapter and a context bounded by
// the command timeout.
func withAdapter(fn func(ctx context.Context, c *cli.Context, a adapter.Adapter) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt := fromContext(c)
		ctx, cancel := context.WithTimeout(c.Context, 4*rt.cfg.Redis.Timeout)
		defer cancel()
		return fn(ctx, c, rt.adapter)
	}
}

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check the server answers",
		Action: withAdapter(func(ctx context.Context, c *cli.Context, a adapter.Adapter) error {
			if err := a.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "PONG")
			return nil
		}),
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the value of a key",
		ArgsUsage: "<key>",
		Action: withAdapter(func(ctx context.Context, c *cli.Context, a adapter.Adapter) error {
			in, err := args(c, 1)
			if err != nil {
				return err
			}
			v, ok, err := a.Get(ctx, in[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(c.App.Writer, "(nil)")
				return nil
			}
			fmt.Fprintln(c.App.Writer, v)
			return nil
		}),
	}
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Store a value",
		ArgsUsage: "<key> <value>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "ttl", Usage: "Expire the key after this long, rounded up to seconds"},
		},
		Action: withAdapter(func(ctx context.Context, c *cli.Context, a adapter.Adapter) error {
			in, err := args(c, 2)
			if err != nil {
				return err
			}
			if err := a.Set(ctx, in[0], in[1], c.Duration("ttl")); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "OK")
			return nil
		}),
	}
}

// boolCommand builds a command that takes one key and prints a boolean.
func boolCommand(name, usage string, fn func(a adapter.Adapter) func(context.Context, string) (bool, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<key>",
		Action: withAdapter(func(ctx context.Context, c *cli.Context, a adapter.Adapter) error {
			in, err := args(c, 1)
			if err != nil {
				return err
			}
			ok, err := fn(a)(ctx, in[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, ok)
			return nil
		}),
	}
}

func delCommand() *cli.Command {
	return boolCommand("del", "Delete a key", func(a adapter.Adapter) func(context.Context, string) (bool, error) {
		return a.Delete
	})
}

func hasCommand() *cli.Command {
	return boolCommand("has", "Report whether a key exists", func(a adapter.Adapter) func(context.Context, string) (bool, error) {
		return a.Has
	})
}

func persistCommand() *cli.Command {
	return boolCommand("persist", "Remove the expiry of a key", func(a adapter.Adapter) func(context.Context, string) (bool, error) {
		return a.Persist
	})
}

func incrCommand() *cli.Command {
	return &cli.Command{
		Name:      "incr",
		Usage:     "Increment a counter and print the new value",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "by", Value: 1, Usage: "Step; negative values decrement"},
		},
		Action: withAdapter(func(ctx context.Context, c *cli.Context, a adapter.Adapter) error {
			in, err := args(c, 1)
			if err != nil {
				return err
			}
			var n int64
			switch by := c.Int64("by"); {
			case by == 1:
				n, err = a.Incr(ctx, in[0])
			case by == -1:
				n, err = a.Decr(ctx, in[0])
			case by < 0:
				n, err = a.DecrBy(ctx, in[0], -by)
			default:
				n, err = a.IncrBy(ctx, in[0], by)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, strconv.FormatInt(n, 10))
			return nil
		}),
	}
}

func ttlCommand() *cli.Command {
	return &cli.Command{
		Name:      "ttl",
		Usage:     "Print the remaining time to live of a key",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ms", Usage: "Millisecond precision"},
		},
		Action: withAdapter(func(ctx context.Context, c *cli.Context, a adapter.Adapter) error {
			in, err := args(c, 1)
			if err != nil {
				return err
			}
			var e adapter.Expiration
			if c.Bool("ms") {
				e, err = a.TTLMs(ctx, in[0])
			} else {
				e, err = a.TTL(ctx, in[0])
			}
			if err != nil {
				return err
			}
			if e.State != adapter.Expiring {
				fmt.Fprintln(c.App.Writer, e.State)
				return nil
			}
			fmt.Fprintln(c.App.Writer, e.Remaining)
			return nil
		}),
	}
}

func expireCommand() *cli.Command {
	return &cli.Command{
		Name:      "expire",
		Usage:     "Set the time to live of a key",
		ArgsUsage: "<key> <duration>",
		Action: withAdapter(func(ctx context.Context, c *cli.Context, a adapter.Adapter) error {
			in, err := args(c, 2)
			if err != nil {
				return err
			}
			d, err := time.ParseDuration(in[1])
			if err != nil {
				return fmt.Errorf("expire: %w", err)
			}
			var ok bool
			if d%time.Second == 0 {
				ok, err = a.Expire(ctx, in[0], d)
			} else {
				ok, err = a.ExpireMs(ctx, in[0], d)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, ok)
			return nil
		}),
	}
}

func flushCommand() *cli.Command {
	return &cli.Command{
		Name:  "flush",
		Usage: "Remove every key on the server",
		Action: withAdapter(func(ctx context.Context, c *cli.Context, a adapter.Adapter) error {
			ok, err := a.Truncate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, ok)
			return nil
		}),
	}
}
