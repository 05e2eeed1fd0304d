package server

import (
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

// Request payloads

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"admin,user"`
}

type CreateDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type SetUserDepartmentsRequest struct {
	DepartmentIDs []string `json:"department_ids"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Category    string `json:"category,omitempty" enum:"task,plan"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type CreateSubtaskRequest struct {
	Title      string `json:"title"`
	AssigneeID string `json:"assignee_id,omitempty"`
	DueDate    string `json:"due_date,omitempty" format:"date-time"`
}

type CreateAssignmentsRequest struct {
	TaskID        string   `json:"task_id"`
	UserIDs       []string `json:"user_ids,omitempty"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
	Deadline      string   `json:"deadline" format:"date-time"`
	Priority      string   `json:"priority,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type CompletionDraftRequest struct {
	AssignmentID       string `json:"assignment_id"`
	SubtaskID          string `json:"subtask_id,omitempty"`
	ProgressPercentage int    `json:"progress_percentage" minimum:"0" maximum:"100"`
	IsFullyCompleted   bool   `json:"is_fully_completed"`
	WorkDescription    string `json:"work_description"`
	Challenges         string `json:"challenges,omitempty"`
	NextSteps          string `json:"next_steps,omitempty"`
}

type ReviewCompletionRequest struct {
	Verdict string `json:"verdict" enum:"approved,revision_requested,rejected,under_review"`
	Comment string `json:"comment,omitempty"`
}

type ProposalDraftRequest struct {
	ID            string   `json:"id,omitempty"`
	Title         string   `json:"title"`
	Objective     string   `json:"objective"`
	StartDate     string   `json:"start_date" format:"date"`
	EndDate       string   `json:"end_date" format:"date"`
	Budget        int64    `json:"budget,omitempty"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
}

type PlanSpecRequest struct {
	Generate  bool     `json:"generate"`
	Assignees []string `json:"assignees,omitempty"`
	DueDate   string   `json:"due_date,omitempty" format:"date-time"`
}

type ReviewProposalRequest struct {
	Verdict  string           `json:"verdict" enum:"approved,rejected,changes_requested,under_review"`
	Feedback string           `json:"feedback,omitempty"`
	Plan     *PlanSpecRequest `json:"plan,omitempty"`
}

type CommentRequest struct {
	Body string `json:"body"`
}

type CreateChannelRequest struct {
	Name string `json:"name"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type TokenResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// AssignmentView decorates an assignment with the overdue flag, which is
// computed at read time rather than stored.
type AssignmentView struct {
	domain.Assignment
	Overdue bool `json:"overdue"`
}

func assignmentView(e engine.Engine, a domain.Assignment) AssignmentView {
	return AssignmentView{Assignment: a, Overdue: e.Overdue(a)}
}

func assignmentViews(e engine.Engine, items []domain.Assignment) []AssignmentView {
	out := make([]AssignmentView, 0, len(items))
	for _, a := range items {
		out = append(out, assignmentView(e, a))
	}
	return out
}

type CompletionDetail struct {
	domain.Completion
	Files []domain.CompletionFile `json:"files"`
}

type ProposalDetail struct {
	domain.Proposal
	DepartmentIDs []string                 `json:"department_ids"`
	Files         []domain.ProposalFile    `json:"files"`
	Comments      []domain.ProposalComment `json:"comments"`
}

// PageCursor is echoed back by list endpoints; pass both values to fetch the
// next page.
type PageCursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

func cursorFor[T any](items []T, createdAt func(T) string, id func(T) string) *PageCursor {
	if len(items) == 0 {
		return nil
	}
	last := items[len(items)-1]
	return &PageCursor{CreatedAt: createdAt(last), ID: id(last)}
}
