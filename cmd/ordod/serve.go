package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ordo-todo/ordo-core/internal/config"
	"github.com/ordo-todo/ordo-core/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the core daemon",
	Long: `Run the Ordo core daemon: opens the local store, serves the UI
bridge on the configured port, and syncs with the remote API in the
background until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Ordo core starting (db: %s, bridge port: %d)\n",
			cfg.DB.Path, cfg.Bridge.Port)
		return d.Start(ctx)
	},
}
