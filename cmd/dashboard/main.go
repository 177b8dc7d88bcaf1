package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cli/browser"
	"github.com/spf13/cobra"

	"immun/internal/config"
	"immun/internal/web/app"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func newCommand() *cobra.Command {
	var (
		addr string
		open bool
	)
	cmd := &cobra.Command{
		Use:           "immun-dashboard",
		Short:         "Serve the immunization dashboards on a local address",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.DashboardAddr = addr
			}
			logger := cfg.NewLogger(os.Stderr)

			a, err := app.New(cfg, logger, version, buildDate)
			if err != nil {
				return err
			}
			if open {
				if err := browser.OpenURL(a.URL()); err != nil {
					logger.Warn("open browser", "error", err)
				}
			}
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides IMMUN_DASHBOARD_ADDR)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the dashboard in a browser")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "immun-dashboard:", err)
		stop()
		os.Exit(1)
	}
}
