package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ordo-todo/ordo-core/internal/config"
	"github.com/ordo-todo/ordo-core/internal/record"
)

var exportOut string

// exportDoc is the YAML document layout: one workspace per entry with its
// projects, tags and task tree inlined.
type exportDoc struct {
	ExportedAt string            `yaml:"exported_at"`
	Workspaces []exportWorkspace `yaml:"workspaces"`
}

type exportWorkspace struct {
	Workspace *record.Workspace         `yaml:"workspace"`
	Projects  []*record.Project         `yaml:"projects,omitempty"`
	Tags      []*record.Tag             `yaml:"tags,omitempty"`
	Tasks     []exportTask              `yaml:"tasks,omitempty"`
	Sessions  []*record.PomodoroSession `yaml:"sessions,omitempty"`
}

type exportTask struct {
	Task     *record.Task      `yaml:"task"`
	Subtasks []*record.Subtask `yaml:"subtasks,omitempty"`
	Comments []*record.Comment `yaml:"comments,omitempty"`
	Tags     []string          `yaml:"tags,omitempty"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all local data as YAML",
	Long: `Export every live record in the local store as a YAML document,
for backup or migration. Tombstones and sync bookkeeping rows are skipped.`,
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

		ctx := context.Background()
		workspaces, err := st.ListWorkspaces(ctx)
		if err != nil {
			return err
		}

		doc := exportDoc{ExportedAt: time.Now().UTC().Format(time.RFC3339)}

		for _, w := range workspaces {
			ew := exportWorkspace{Workspace: w}

			if ew.Projects, err = st.GetProjectsByWorkspace(ctx, w.ID); err != nil {
				return err
			}
			if ew.Tags, err = st.GetTagsByWorkspace(ctx, w.ID); err != nil {
				return err
			}
			if ew.Sessions, err = st.GetSessionsByWorkspace(ctx, w.ID); err != nil {
				return err
			}

			tasks, err := st.GetTasksByWorkspace(ctx, w.ID)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				et := exportTask{Task: t}
				if et.Subtasks, err = st.GetSubtasksByTask(ctx, t.ID); err != nil {
					return err
				}
				if et.Comments, err = st.GetCommentsByTask(ctx, t.ID); err != nil {
					return err
				}
				tags, err := st.GetTagsForTask(ctx, t.ID)
				if err != nil {
					return err
				}
				for _, tag := range tags {
					et.Tags = append(et.Tags, tag.Name)
				}
				ew.Tasks = append(ew.Tasks, et)
			}

			doc.Workspaces = append(doc.Workspaces, ew)
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOut, err)
			}
			defer f.Close()
			out = f
		}

		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode export: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
}
