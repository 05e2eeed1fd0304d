package engine

import (
	"context"
	"time"

	"taskdesk/internal/domain"
	"taskdesk/internal/events"
	"taskdesk/internal/workflow"
)

// AssignmentCreateOptions name a task and its target set. Departments are
// expanded to their members and merged with the individually selected users.
type AssignmentCreateOptions struct {
	TaskID        string
	UserIDs       []string
	DepartmentIDs []string
	AssignedBy    string
	Deadline      string
	Priority      string
	Notes         string
}

// CreateAssignments creates one assignment per resolved unique user, in a
// single transaction. A user who is both individually selected and a member
// of a selected department gets exactly one row. The first individually
// selected user is marked primary; if there is none, the first resolved
// member is.
func (e Engine) CreateAssignments(ctx context.Context, opts AssignmentCreateOptions) ([]domain.Assignment, error) {
	if opts.Deadline == "" {
		return nil, ValidationError{Field: "deadline", Reason: "required"}
	}
	if _, err := time.Parse(time.RFC3339, opts.Deadline); err != nil {
		return nil, ValidationError{Field: "deadline", Reason: "must be an RFC 3339 timestamp"}
	}
	if _, err := e.Repo.GetTask(ctx, opts.TaskID); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var resolved []string
	for _, id := range opts.UserIDs {
		if id == "" || seen[id] {
			continue
		}
		if _, err := e.Repo.GetUser(ctx, id); err != nil {
			return nil, err
		}
		seen[id] = true
		resolved = append(resolved, id)
	}
	primaryID := ""
	if len(resolved) > 0 {
		primaryID = resolved[0]
	}
	for _, deptID := range opts.DepartmentIDs {
		if _, err := e.Repo.GetDepartment(ctx, deptID); err != nil {
			return nil, err
		}
		members, err := e.Repo.ListDepartmentMembers(ctx, deptID)
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			if seen[id] {
				continue
			}
			seen[id] = true
			resolved = append(resolved, id)
		}
	}
	if len(resolved) == 0 {
		return nil, ValidationError{Field: "targets", Reason: "no users resolved from selection"}
	}
	if primaryID == "" {
		primaryID = resolved[0]
	}

	assignmentType := "individual"
	switch {
	case len(opts.UserIDs) > 0 && len(opts.DepartmentIDs) > 0:
		assignmentType = "mixed"
	case len(opts.DepartmentIDs) > 0:
		assignmentType = "department"
	}

	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var created []domain.Assignment
	for _, userID := range resolved {
		a := domain.Assignment{
			ID:             newID(),
			TaskID:         opts.TaskID,
			UserID:         userID,
			AssignedBy:     opts.AssignedBy,
			IsPrimary:      userID == primaryID,
			AssignmentType: assignmentType,
			Status:         workflow.Assignments.Initial,
			Priority:       opts.Priority,
			Deadline:       opts.Deadline,
			Notes:          opts.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
			return nil, err
		}
		if err := e.notify(ctx, tx, userID, "assignment.created", "New task assignment", opts.Notes, "assignment", a.ID); err != nil {
			return nil, err
		}
		created = append(created, a)
	}
	if err := e.Events.Append(ctx, tx, "assignment.bulk.created", "task", opts.TaskID, opts.AssignedBy, events.EventPayload{
		"count": len(created),
		"type":  assignmentType,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// SetAssignmentStatus steps the assignee-driven part of the machine:
// accept, decline, or start.
func (e Engine) SetAssignmentStatus(ctx context.Context, assignmentID, status, actorID string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return a, err
	}
	if a.UserID != actorID {
		return a, ValidationError{Field: "id", Reason: "only the assignee may change assignment status"}
	}
	next, err := workflow.Assignments.Step(a.Status, status)
	if err != nil {
		return a, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	a.Status = next
	a.UpdatedAt = now
	if next == "completed" {
		a.CompletedAt = &now
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAssignmentStatus(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "assignment.updated", "assignment", a.ID, actorID, events.EventPayload{"to_status": next}); err != nil {
		return a, err
	}
	if next == "declined" {
		if err := e.notify(ctx, tx, a.AssignedBy, "assignment.declined", "Assignment declined", a.Notes, "assignment", a.ID); err != nil {
			return a, err
		}
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// Overdue compares the deadline against now; it is computed at read time,
// never stored.
func (e Engine) Overdue(a domain.Assignment) bool {
	if a.Status == "completed" || a.Status == "declined" {
		return false
	}
	deadline, err := time.Parse(time.RFC3339, a.Deadline)
	if err != nil {
		return false
	}
	return e.now().After(deadline)
}
