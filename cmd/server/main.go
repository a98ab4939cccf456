package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"collabnotes/internal/config"
	"collabnotes/internal/roomserver"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg := config.LoadServer()

	rootCmd := &cobra.Command{
		Use:   "notes-server",
		Short: "Room server for collaborative notes",
		Long: `notes-server relays note and presence events between agents in the same room.

Notes are kept in memory by default, in a bbolt file with --bolt, or in
PostgreSQL with --database-url. With --redis, several instances share
room broadcasts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
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

func serve(ctx context.Context, cfg *config.Server) error {
	logger, err := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	store, err := roomserver.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	broker, err := roomserver.OpenBroker(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return err
	}
	return roomserver.New(cfg, store, broker, logger).Run(ctx)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("notes-server %s (%s) %s %s/%s\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
