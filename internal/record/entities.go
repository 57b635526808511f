package record

import "fmt"

// TaskStatus enumerates task states.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// TaskPriority enumerates task priorities.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// SessionType enumerates pomodoro session kinds.
type SessionType string

const (
	SessionFocus      SessionType = "focus"
	SessionShortBreak SessionType = "short_break"
	SessionLongBreak  SessionType = "long_break"
)

// Workspace is the root container; parent of projects, tasks and tags.
type Workspace struct {
	Envelope
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// Project groups tasks inside a workspace.
type Project struct {
	Envelope
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Status      string `json:"status,omitempty"`
	StartDate   *int64 `json:"start_date,omitempty"`
	EndDate     *int64 `json:"end_date,omitempty"`
}

// Task is the central entity. ParentTaskID enables sub-task hierarchies;
// Position orders tasks manually within their parent scope.
type Task struct {
	Envelope
	WorkspaceID        string       `json:"workspace_id"`
	ProjectID          *string      `json:"project_id,omitempty"`
	ParentTaskID       *string      `json:"parent_task_id,omitempty"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Status             TaskStatus   `json:"status"`
	Priority           TaskPriority `json:"priority"`
	DueDate            *int64       `json:"due_date,omitempty"`
	EstimatedPomodoros int          `json:"estimated_pomodoros"`
	CompletedPomodoros int          `json:"completed_pomodoros"`
	Position           int          `json:"position"`
	CompletedAt        *int64       `json:"completed_at,omitempty"`
	// Tags lists assigned tag ids. nil means the snapshot carries no
	// assignment information; an empty list clears all assignments.
	Tags []string `json:"tags"`
}

// Tag labels tasks within a workspace (many-to-many via task_tags).
type Tag struct {
	Envelope
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
}

// TaskTag is the task<->tag join row. It carries no sync envelope beyond its
// creation time; tag assignments travel with the owning task.
type TaskTag struct {
	TaskID    string `json:"task_id"`
	TagID     string `json:"tag_id"`
	CreatedAt int64  `json:"created_at"`
}

// Subtask is a checklist line belonging to a task.
type Subtask struct {
	Envelope
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	IsCompleted bool   `json:"is_completed"`
	Position    int    `json:"position"`
}

// Comment is a note on a task.
type Comment struct {
	Envelope
	TaskID   string `json:"task_id"`
	AuthorID string `json:"author_id,omitempty"`
	Content  string `json:"content"`
}

// PomodoroSession records one timer run, optionally linked to a task.
// Duration is in seconds.
type PomodoroSession struct {
	Envelope
	WorkspaceID    string      `json:"workspace_id"`
	TaskID         *string     `json:"task_id,omitempty"`
	Type           SessionType `json:"type"`
	Duration       int         `json:"duration"`
	StartedAt      int64       `json:"started_at"`
	CompletedAt    *int64      `json:"completed_at,omitempty"`
	WasInterrupted bool        `json:"was_interrupted"`
	Notes          string      `json:"notes,omitempty"`
}

// Validate checks required workspace fields.
func (w *Workspace) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Validate checks required project fields.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Validate checks required task fields and enum values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	switch t.Status {
	case TaskPending, TaskInProgress, TaskCompleted:
	default:
		return fmt.Errorf("invalid status %q", t.Status)
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	return nil
}

// Validate checks required tag fields.
func (t *Tag) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Validate checks required subtask fields.
func (s *Subtask) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// Validate checks required comment fields.
func (c *Comment) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if c.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// Validate checks required session fields and the session type enum.
func (s *PomodoroSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	switch s.Type {
	case SessionFocus, SessionShortBreak, SessionLongBreak:
	default:
		return fmt.Errorf("invalid session type %q", s.Type)
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration must be non-negative (got %d)", s.Duration)
	}
	return nil
}
