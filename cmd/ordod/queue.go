package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ordo-todo/ordo-core/internal/config"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued mutations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		st, q, _, err := openCore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := q.List(context.Background(), 200)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}

		for _, e := range entries {
			line := fmt.Sprintf("#%d  %-10s %-6s %-16s %s  attempts=%d",
				e.ID, e.Status, e.Operation, e.EntityType, e.EntityID, e.Attempts)
			if e.LastError != "" {
				line += "  error=" + e.LastError
			}
			fmt.Println(line)
		}
		return nil
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		st, q, _, err := openCore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := q.Stats(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("pending: %d\nprocessing: %d\nfailed: %d\n",
			stats.Pending, stats.Processing, stats.Failed)
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-arm failed entries for automatic retry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		st, q, _, err := openCore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n, err := q.ResetFailed(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Re-armed %d failed entries\n", n)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRetryCmd)
}
