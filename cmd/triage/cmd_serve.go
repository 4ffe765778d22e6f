package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/straja-ai/triage/internal/auth"
	"github.com/straja-ai/triage/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the classification API and Prometheus metrics over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := buildRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		sc := cfg.Server
		if serveAddr != "" {
			sc.Addr = serveAddr
		}
		authz, err := auth.NewFromConfig(sc.Clients)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		return server.New(sc, rt.engine, rt.registry, authz).Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
}
