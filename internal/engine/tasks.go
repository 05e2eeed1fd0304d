package engine

import (
	"context"
	"strings"
	"time"

	"taskdesk/internal/domain"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
	"taskdesk/internal/workflow"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Priority    string
	Category    string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, ValidationError{Field: "title", Reason: "required"}
	}
	if opts.Category == "" {
		opts.Category = "task"
	}
	if opts.Category != "task" && opts.Category != "plan" {
		return domain.Task{}, ValidationError{Field: "category", Reason: "must be task or plan"}
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          newID(),
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		Status:      "open",
		Priority:    opts.Priority,
		Category:    opts.Category,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) SetTaskStatus(ctx context.Context, taskID, status, actorID string) (domain.Task, error) {
	switch status {
	case "open", "in_progress", "completed", "archived":
	default:
		return domain.Task{}, ValidationError{Field: "status", Reason: "unknown status"}
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	from := t.Status
	t.Status = status
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", t.ID, actorID, events.EventPayload{"from_status": from, "to_status": status}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"subtasks", "assignments"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE task_id=?`, taskID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", taskID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) CreateSubtask(ctx context.Context, taskID, title, assigneeID, dueDate, actorID string) (domain.Subtask, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Subtask{}, ValidationError{Field: "title", Reason: "required"}
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Subtask{}, err
	}
	if err := e.ensurePlanEditable(t); err != nil {
		return domain.Subtask{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	s := domain.Subtask{
		ID:         newID(),
		TaskID:     taskID,
		Title:      strings.TrimSpace(title),
		AssigneeID: optionalString(assigneeID),
		Status:     workflow.Subtasks.Initial,
		DueDate:    optionalString(dueDate),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSubtask(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "subtask.created", "subtask", s.ID, actorID, events.EventPayload{"task_id": taskID}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) SetSubtaskStatus(ctx context.Context, subtaskID, status, actorID string) (domain.Subtask, error) {
	s, err := e.Repo.GetSubtask(ctx, subtaskID)
	if err != nil {
		return s, err
	}
	t, err := e.Repo.GetTask(ctx, s.TaskID)
	if err != nil {
		return s, err
	}
	if err := e.ensurePlanEditable(t); err != nil {
		return s, err
	}
	next, err := workflow.Subtasks.Step(s.Status, status)
	if err != nil {
		return s, err
	}
	s.Status = next
	s.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSubtaskStatus(ctx, tx, s.ID, s.Status, s.UpdatedAt); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "subtask.updated", "subtask", s.ID, actorID, events.EventPayload{"to_status": s.Status}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// ensurePlanEditable blocks subtask edits once a plan task is completed.
func (e Engine) ensurePlanEditable(t domain.Task) error {
	if t.Category == "plan" && t.Status == "completed" {
		return ValidationError{Field: "task_id", Reason: "plan is completed and read only"}
	}
	return nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}
