package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ordo-todo/ordo-core/internal/config"
	"github.com/ordo-todo/ordo-core/internal/record"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		st, _, eng, err := openCore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		state := eng.State()

		fmt.Printf("Database: %s\n", st.Path())
		if state.LastSyncTime > 0 {
			fmt.Printf("Last sync: %s\n",
				time.UnixMilli(state.LastSyncTime).Local().Format(time.RFC1123))
		} else {
			fmt.Println("Last sync: never")
		}
		fmt.Printf("Queue: %d pending, %d failed\n",
			state.PendingChanges, state.FailedChanges)

		counts, err := st.UnsyncedCounts(ctx)
		if err != nil {
			return err
		}
		total := 0
		for _, et := range record.EntityTypes {
			if n := counts[et]; n > 0 {
				fmt.Printf("  unsynced %s: %d\n", et, n)
				total += n
			}
		}
		if total == 0 {
			fmt.Println("All records synced")
		}
		return nil
	},
}
