package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"taskdesk/internal/domain"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
	"taskdesk/internal/storage"
	"taskdesk/internal/workflow"
)

const (
	minObjective      = 200
	minReviewFeedback = 20
)

// ProposalDraft carries the editable fields of a proposal.
type ProposalDraft struct {
	ID            string
	Title         string
	Objective     string
	StartDate     string
	EndDate       string
	Budget        int64
	DepartmentIDs []string
}

// SaveProposalDraft creates or updates a proposal while it is editable.
// Department selections are diffed against the stored set rather than
// replaced wholesale.
func (e Engine) SaveProposalDraft(ctx context.Context, d ProposalDraft, actorID string) (domain.Proposal, error) {
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	var p domain.Proposal
	if d.ID == "" {
		p = domain.Proposal{
			ID:        newID(),
			UserID:    actorID,
			Status:    workflow.Proposals.Initial,
			CreatedAt: now,
		}
		p = applyProposalDraft(p, d, now)
		if err := e.Repo.InsertProposal(ctx, tx, p); err != nil {
			return p, err
		}
	} else {
		p, err = e.Repo.GetProposalTx(ctx, tx, d.ID)
		if err != nil {
			return p, err
		}
		if p.UserID != actorID {
			return p, ValidationError{Field: "id", Reason: "only the author may edit"}
		}
		if !workflow.Editable(p.Status) {
			return p, workflow.TransitionError{Entity: "proposal", From: p.Status, To: "draft"}
		}
		p = applyProposalDraft(p, d, now)
		if err := e.Repo.UpdateProposal(ctx, tx, p); err != nil {
			return p, err
		}
	}
	if err := e.Repo.PatchProposalDepartments(ctx, tx, p.ID, d.DepartmentIDs); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.draft.saved", "proposal", p.ID, actorID, events.EventPayload{"title": p.Title}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

func applyProposalDraft(p domain.Proposal, d ProposalDraft, now string) domain.Proposal {
	p.Title = strings.TrimSpace(d.Title)
	p.Objective = d.Objective
	p.StartDate = d.StartDate
	p.EndDate = d.EndDate
	p.Budget = d.Budget
	p.UpdatedAt = now
	return p
}

// AttachProposalFile validates, stores, and records one attachment.
func (e Engine) AttachProposalFile(ctx context.Context, proposalID, name, mime string, size int64, r io.Reader, actorID string) (domain.ProposalFile, error) {
	p, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return domain.ProposalFile{}, err
	}
	if p.UserID != actorID {
		return domain.ProposalFile{}, ValidationError{Field: "proposal_id", Reason: "only the author may attach files"}
	}
	if !workflow.Editable(p.Status) {
		return domain.ProposalFile{}, workflow.TransitionError{Entity: "proposal", From: p.Status, To: "draft"}
	}
	if err := storage.CheckProposalFile(e.Config.Uploads, name, mime, size); err != nil {
		return domain.ProposalFile{}, err
	}
	id := newID()
	rel, written, err := e.Storage.Save(storage.BucketProposals, id+"_"+name, r)
	if err != nil {
		return domain.ProposalFile{}, err
	}
	if written != size {
		e.Storage.Remove(rel)
		return domain.ProposalFile{}, storage.FileError{File: name, Reason: fmt.Sprintf("declared size %d but received %d", size, written)}
	}
	f := domain.ProposalFile{
		ID:         id,
		ProposalID: proposalID,
		FileName:   name,
		FilePath:   rel,
		FileType:   mime,
		FileSize:   size,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.Storage.Remove(rel)
		return f, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProposalFile(ctx, tx, f); err != nil {
		e.Storage.Remove(rel)
		return f, err
	}
	if err := tx.Commit(); err != nil {
		e.Storage.Remove(rel)
		return f, err
	}
	return f, nil
}

func (e Engine) RemoveProposalFile(ctx context.Context, fileID, actorID string) error {
	f, err := e.Repo.GetProposalFile(ctx, fileID)
	if err != nil {
		return err
	}
	p, err := e.Repo.GetProposal(ctx, f.ProposalID)
	if err != nil {
		return err
	}
	if p.UserID != actorID {
		return ValidationError{Field: "id", Reason: "only the author may remove files"}
	}
	if !workflow.Editable(p.Status) {
		return workflow.TransitionError{Entity: "proposal", From: p.Status, To: "draft"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProposalFile(ctx, tx, fileID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return e.Storage.Remove(f.FilePath)
}

func validateProposal(p domain.Proposal) error {
	if p.Title == "" {
		return ValidationError{Field: "title", Reason: "required"}
	}
	if n := utf8.RuneCountInString(p.Objective); n < minObjective {
		return ValidationError{Field: "objective", Reason: fmt.Sprintf("at least %d characters, got %d", minObjective, n)}
	}
	start, err := time.Parse("2006-01-02", p.StartDate)
	if err != nil {
		return ValidationError{Field: "start_date", Reason: "must be YYYY-MM-DD"}
	}
	end, err := time.Parse("2006-01-02", p.EndDate)
	if err != nil {
		return ValidationError{Field: "end_date", Reason: "must be YYYY-MM-DD"}
	}
	if end.Before(start) {
		return ValidationError{Field: "end_date", Reason: "must not precede start_date"}
	}
	return nil
}

// SubmitProposal re-runs the draft validation and locks the proposal for
// review.
func (e Engine) SubmitProposal(ctx context.Context, proposalID, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return p, err
	}
	if p.UserID != actorID {
		return p, ValidationError{Field: "id", Reason: "only the author may submit"}
	}
	next, err := workflow.Proposals.Step(p.Status, "submitted")
	if err != nil {
		return p, err
	}
	if err := validateProposal(p); err != nil {
		return p, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	p.Status = next
	p.SubmittedAt = &now
	p.UpdatedAt = now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProposal(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.submitted", "proposal", p.ID, actorID, events.EventPayload{"title": p.Title}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// PlanSpec describes the plan generated when a proposal is approved: one
// subtask per selected assignee.
type PlanSpec struct {
	Generate  bool
	Assignees []string
	DueDate   string
}

// ProposalReview is a reviewer verdict over a submitted proposal.
type ProposalReview struct {
	ProposalID string
	Verdict    string
	Feedback   string
	ReviewerID string
	Plan       PlanSpec
}

// ReviewProposal applies approve, reject, or request_changes. Approval may
// generate a plan task with one subtask per selected assignee and links it
// back to the proposal; everything commits in one transaction, with the
// verdict recorded as a comment row.
func (e Engine) ReviewProposal(ctx context.Context, rev ProposalReview) (domain.Proposal, error) {
	var kind string
	switch rev.Verdict {
	case "approved":
		kind = "approval"
	case "rejected":
		kind = "rejection"
	case "changes_requested":
		kind = "changes_requested"
	case "under_review":
		kind = "comment"
	default:
		return domain.Proposal{}, ValidationError{Field: "verdict", Reason: "unknown verdict"}
	}
	if rev.Verdict == "rejected" || rev.Verdict == "changes_requested" {
		if n := utf8.RuneCountInString(rev.Feedback); n < minReviewFeedback {
			return domain.Proposal{}, ValidationError{Field: "feedback", Reason: fmt.Sprintf("at least %d characters, got %d", minReviewFeedback, n)}
		}
	}
	p, err := e.Repo.GetProposal(ctx, rev.ProposalID)
	if err != nil {
		return p, err
	}
	if p.UserID == rev.ReviewerID {
		return p, ValidationError{Field: "id", Reason: "cannot review own proposal"}
	}
	next, err := workflow.Proposals.Step(p.Status, rev.Verdict)
	if err != nil {
		return p, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	p.Status = next
	p.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()

	if rev.Verdict == "approved" && rev.Plan.Generate {
		plan := domain.Task{
			ID:               newID(),
			Title:            p.Title,
			Description:      p.Objective,
			Status:           "open",
			Category:         "plan",
			SourceProposalID: &p.ID,
			CreatedBy:        rev.ReviewerID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := e.Repo.InsertTask(ctx, tx, plan); err != nil {
			return p, err
		}
		for _, assignee := range rev.Plan.Assignees {
			if _, err := e.Repo.GetUser(ctx, assignee); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return p, ValidationError{Field: "plan.assignees", Reason: "unknown user " + assignee}
				}
				return p, err
			}
			s := domain.Subtask{
				ID:         newID(),
				TaskID:     plan.ID,
				Title:      p.Title,
				AssigneeID: optionalString(assignee),
				Status:     workflow.Subtasks.Initial,
				DueDate:    optionalString(rev.Plan.DueDate),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := e.Repo.InsertSubtask(ctx, tx, s); err != nil {
				return p, err
			}
		}
		p.LinkedPlanID = &plan.ID
		if err := e.Events.Append(ctx, tx, "plan.generated", "task", plan.ID, rev.ReviewerID, events.EventPayload{
			"proposal_id": p.ID, "subtasks": len(rev.Plan.Assignees),
		}); err != nil {
			return p, err
		}
	}
	if err := e.Repo.UpdateProposal(ctx, tx, p); err != nil {
		return p, err
	}
	if rev.Feedback != "" || kind != "comment" {
		comment := domain.ProposalComment{
			ID:         newID(),
			ProposalID: p.ID,
			AuthorID:   rev.ReviewerID,
			Kind:       kind,
			Body:       rev.Feedback,
			CreatedAt:  now,
		}
		if err := e.Repo.InsertProposalComment(ctx, tx, comment); err != nil {
			return p, err
		}
	}
	if err := e.Events.Append(ctx, tx, "proposal.reviewed", "proposal", p.ID, rev.ReviewerID, events.EventPayload{"verdict": rev.Verdict}); err != nil {
		return p, err
	}
	if err := e.notify(ctx, tx, p.UserID, "proposal."+rev.Verdict, "Proposal "+rev.Verdict, rev.Feedback, "proposal", p.ID); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// CommentProposal records a plain discussion comment.
func (e Engine) CommentProposal(ctx context.Context, proposalID, body, authorID string) (domain.ProposalComment, error) {
	if strings.TrimSpace(body) == "" {
		return domain.ProposalComment{}, ValidationError{Field: "body", Reason: "required"}
	}
	if _, err := e.Repo.GetProposal(ctx, proposalID); err != nil {
		return domain.ProposalComment{}, err
	}
	c := domain.ProposalComment{
		ID:         newID(),
		ProposalID: proposalID,
		AuthorID:   authorID,
		Kind:       "comment",
		Body:       body,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProposalComment(ctx, tx, c); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// DeleteProposal hard-deletes a draft proposal with its child records and
// blobs.
func (e Engine) DeleteProposal(ctx context.Context, proposalID, actorID string) error {
	p, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if p.UserID != actorID {
		return ValidationError{Field: "id", Reason: "only the author may delete"}
	}
	files, err := e.Repo.ListProposalFiles(ctx, proposalID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"proposal_departments", "proposal_files", "proposal_comments"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE proposal_id=?`, proposalID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM proposals WHERE id=?`, proposalID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "proposal.deleted", "proposal", proposalID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, f := range files {
		e.Storage.Remove(f.FilePath)
	}
	return nil
}

// OpenProposalFile re-fetches the blob from storage per request.
func (e Engine) OpenProposalFile(ctx context.Context, fileID string) (domain.ProposalFile, io.ReadCloser, error) {
	f, err := e.Repo.GetProposalFile(ctx, fileID)
	if err != nil {
		return f, nil, err
	}
	rc, err := e.Storage.Get(f.FilePath)
	return f, rc, err
}
