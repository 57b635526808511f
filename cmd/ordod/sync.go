package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ordo-todo/ordo-core/internal/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one push+pull sync cycle",
	Long: `Run a single sync cycle against the remote API: push pending
local mutations, then pull and reconcile remote changes. Requires a stored
auth token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if readToken(cfg) == "" {
			return fmt.Errorf("no auth token at %s; log in from the app first", cfg.Auth.TokenFile)
		}

		st, _, eng, err := openCore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		start := time.Now()
		if err := eng.Sync(context.Background()); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		state := eng.State()

		fmt.Printf("Sync complete in %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  pending: %d  failed: %d\n", state.PendingChanges, state.FailedChanges)
		return nil
	},
}
