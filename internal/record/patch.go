package record

// Fields structs are the typed create inputs accepted by the repositories
// (and decoded from db:<entity>:create bridge params). Patch structs carry
// partial updates: nil pointers mean "leave unchanged". An all-nil patch is
// treated as a no-op read by the repositories.

// WorkspaceFields are the create inputs for a workspace.
type WorkspaceFields struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
	OwnerID     string `json:"owner_id"`
}

// WorkspacePatch is a partial workspace update.
type WorkspacePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p WorkspacePatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Color == nil && p.Icon == nil
}

// ProjectFields are the create inputs for a project.
type ProjectFields struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Status      string `json:"status"`
	StartDate   *int64 `json:"start_date"`
	EndDate     *int64 `json:"end_date"`
}

// ProjectPatch is a partial project update.
type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Status      *string `json:"status,omitempty"`
	StartDate   *int64  `json:"start_date,omitempty"`
	EndDate     *int64  `json:"end_date,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProjectPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Color == nil &&
		p.Status == nil && p.StartDate == nil && p.EndDate == nil
}

// TaskFields are the create inputs for a task. Status defaults to pending
// and priority to medium when empty.
type TaskFields struct {
	WorkspaceID        string       `json:"workspace_id"`
	ProjectID          *string      `json:"project_id"`
	ParentTaskID       *string      `json:"parent_task_id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	Status             TaskStatus   `json:"status"`
	Priority           TaskPriority `json:"priority"`
	DueDate            *int64       `json:"due_date"`
	EstimatedPomodoros int          `json:"estimated_pomodoros"`
	Position           int          `json:"position"`
}

// TaskPatch is a partial task update.
type TaskPatch struct {
	ProjectID          *string       `json:"project_id,omitempty"`
	ParentTaskID       *string       `json:"parent_task_id,omitempty"`
	Title              *string       `json:"title,omitempty"`
	Description        *string       `json:"description,omitempty"`
	Status             *TaskStatus   `json:"status,omitempty"`
	Priority           *TaskPriority `json:"priority,omitempty"`
	DueDate            *int64        `json:"due_date,omitempty"`
	EstimatedPomodoros *int          `json:"estimated_pomodoros,omitempty"`
	CompletedPomodoros *int          `json:"completed_pomodoros,omitempty"`
	Position           *int          `json:"position,omitempty"`
	CompletedAt        *int64        `json:"completed_at,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.ProjectID == nil && p.ParentTaskID == nil && p.Title == nil &&
		p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.DueDate == nil && p.EstimatedPomodoros == nil &&
		p.CompletedPomodoros == nil && p.Position == nil && p.CompletedAt == nil
}

// TagFields are the create inputs for a tag.
type TagFields struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
}

// TagPatch is a partial tag update.
type TagPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TagPatch) IsEmpty() bool {
	return p.Name == nil && p.Color == nil
}

// SubtaskFields are the create inputs for a subtask.
type SubtaskFields struct {
	TaskID   string `json:"task_id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// SubtaskPatch is a partial subtask update.
type SubtaskPatch struct {
	Title       *string `json:"title,omitempty"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SubtaskPatch) IsEmpty() bool {
	return p.Title == nil && p.IsCompleted == nil && p.Position == nil
}

// CommentFields are the create inputs for a comment.
type CommentFields struct {
	TaskID   string `json:"task_id"`
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
}

// CommentPatch is a partial comment update.
type CommentPatch struct {
	Content *string `json:"content,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p CommentPatch) IsEmpty() bool {
	return p.Content == nil
}

// SessionFields are the create inputs for a pomodoro session.
type SessionFields struct {
	WorkspaceID string      `json:"workspace_id"`
	TaskID      *string     `json:"task_id"`
	Type        SessionType `json:"type"`
	Duration    int         `json:"duration"`
	StartedAt   int64       `json:"started_at"`
	Notes       string      `json:"notes"`
}

// SessionPatch is a partial session update.
type SessionPatch struct {
	Duration       *int    `json:"duration,omitempty"`
	CompletedAt    *int64  `json:"completed_at,omitempty"`
	WasInterrupted *bool   `json:"was_interrupted,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SessionPatch) IsEmpty() bool {
	return p.Duration == nil && p.CompletedAt == nil &&
		p.WasInterrupted == nil && p.Notes == nil
}
