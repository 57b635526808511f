package main

import (
	"context"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/ordo-todo/ordo-core/internal/config"
	"github.com/ordo-todo/ordo-core/internal/record"
)

var (
	taskWorkspace string
	taskProject   string
	taskPriority  string
	taskDue       string
	taskStatus    string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Quick task entry and listing from the terminal",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task to the local store",
	Long: `Add a task. The due date accepts natural language, e.g.
"tomorrow at 5pm" or "next friday". The task is queued for sync like any
other local edit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if taskWorkspace == "" {
			return fmt.Errorf("--workspace is required")
		}

		fields := record.TaskFields{
			WorkspaceID: taskWorkspace,
			Title:       args[0],
			Priority:    record.TaskPriority(taskPriority),
		}
		if taskProject != "" {
			fields.ProjectID = &taskProject
		}
		if taskDue != "" {
			w := when.New(nil)
			w.Add(en.All...)
			w.Add(common.All...)
			result, err := w.Parse(taskDue, time.Now())
			if err != nil || result == nil {
				return fmt.Errorf("could not understand due date %q", taskDue)
			}
			millis := result.Time.UnixMilli()
			fields.DueDate = &millis
		}

		st, _, _, err := openCore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		t, err := st.CreateTask(context.Background(), fields)
		if err != nil {
			return err
		}

		fmt.Printf("Created task %s: %s\n", t.ID, t.Title)
		if t.DueDate != nil {
			fmt.Printf("  due %s\n", time.UnixMilli(*t.DueDate).Local().Format(time.RFC1123))
		}
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in a workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if taskWorkspace == "" {
			return fmt.Errorf("--workspace is required")
		}

		st, _, _, err := openCore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		var tasks []*record.Task
		if taskStatus != "" {
			tasks, err = st.GetTasksByStatus(ctx, taskWorkspace, record.TaskStatus(taskStatus))
		} else {
			tasks, err = st.GetTasksByWorkspace(ctx, taskWorkspace)
		}
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return nil
		}

		for _, t := range tasks {
			mark := " "
			if t.Status == record.TaskCompleted {
				mark = "x"
			}
			line := fmt.Sprintf("[%s] %-8s %s  %s", mark, t.Priority, t.ID[:8], t.Title)
			if t.DueDate != nil {
				line += "  (due " + time.UnixMilli(*t.DueDate).Local().Format("Jan 2 15:04") + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		st, _, _, err := openCore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		now := record.NowMillis()
		status := record.TaskCompleted
		t, err := st.UpdateTask(context.Background(), args[0], record.TaskPatch{
			Status:      &status,
			CompletedAt: &now,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Completed: %s\n", t.Title)
		return nil
	},
}

func init() {
	taskCmd.PersistentFlags().StringVarP(&taskWorkspace, "workspace", "w", "", "workspace id")
	taskAddCmd.Flags().StringVarP(&taskProject, "project", "p", "", "project id")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "medium", "low|medium|high|urgent")
	taskAddCmd.Flags().StringVar(&taskDue, "due", "", `due date, natural language ("tomorrow 5pm")`)
	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "filter by status")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDoneCmd)
}
