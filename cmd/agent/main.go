package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"collabnotes/internal/client"
	"collabnotes/internal/config"
	"collabnotes/internal/discovery"
	"collabnotes/internal/notify"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg := config.LoadAgent()

	rootCmd := &cobra.Command{
		Use:   "notes-agent",
		Short: "Terminal client for collaborative notes",
		Long: `notes-agent connects to a room server and lets you join a room,
create and edit notes, and see who else is in the room.

Type /help at the prompt for commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	cfg.BindFlags(rootCmd.Flags())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Agent) error {
	logger, err := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	url := cfg.ServerURL
	if cfg.Discover {
		lookupCtx, cancel := context.WithTimeout(ctx, cfg.DiscoverTimeout)
		url, err = discovery.Lookup(lookupCtx, cfg.Service, logger)
		cancel()
		if err != nil {
			return err
		}
	}
	logger.Info("using room server", "url", url)

	out := newPrinter(os.Stdout)
	n := notify.Multi(out, notify.Logger(logger.With("component", "notify")))
	c := client.New(client.FromConfig(cfg, url, n, logger))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(ctx) })
	g.Go(func() error { return out.render(ctx, c) })
	g.Go(func() error {
		err := newREPL(os.Stdin, out, c).run(ctx)
		cancel()
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("notes-agent %s (%s) %s %s/%s\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
