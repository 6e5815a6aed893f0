// Command troupe-listener hosts remotely placed actors. Point a remote
// placement's Host/Port (or Cluster list) at it; each inbound connection
// hosts one actor built from the registered behaviors.
//
// The same binary doubles as the fork target: when started as a worker it
// serves the inherited pipes instead of listening.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/behavior"
	"github.com/codewandler/troupe-go/core/proc"
	"github.com/codewandler/troupe-go/core/system"
)

var (
	host     = getEnv("TROUPE_HOST", "0.0.0.0")
	port     = getEnvInt("TROUPE_PORT", 7400)
	logLevel = getEnv("TROUPE_LOG_LEVEL", "info")
)

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// registry returns the behaviors this host can build. Deployments extend
// this with their own behavior packages.
func registry() *behavior.Registry {
	reg := behavior.NewRegistry()

	// builtin echo behavior for smoke testing a fresh deployment
	_ = reg.Register("echo", "", func(params map[string]any) (*actor.Definition, error) {
		return &actor.Definition{
			Name: "echo",
			Handlers: actor.Handlers{
				"say": func(c *actor.Context, args ...any) (any, error) {
					if len(args) == 0 {
						return nil, nil
					}
					return args[0], nil
				},
			},
		}, nil
	})
	return reg
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sys, err := system.New(ctx, system.Options{
		Log:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
		LogLevel: logLevel,
		Registry: registry(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = sys.Destroy(context.Background()) }()

	if proc.IsWorker() {
		// a dropped parent pipe is the normal end of a worker's life
		if err := sys.RunWorker(ctx); err != nil && !errors.Is(err, proc.ErrConnClosed) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	l, err := sys.Listen(ctx, fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = l.Close() }()

	<-ctx.Done()
}
