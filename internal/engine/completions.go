package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"taskdesk/internal/domain"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
	"taskdesk/internal/storage"
	"taskdesk/internal/workflow"
)

const (
	minWorkDescription = 500
	minChallenges      = 200
)

// CompletionDraft carries the editable fields of a completion report.
type CompletionDraft struct {
	AssignmentID       string
	SubtaskID          string
	ProgressPercentage int
	IsFullyCompleted   bool
	WorkDescription    string
	Challenges         string
	NextSteps          string
}

// SaveCompletionDraft creates or updates the single active draft for an
// assignment. Progress 100 and the fully-completed flag imply each other;
// setting either to its done extreme sets the other, and repeated saves do
// not flip them back.
func (e Engine) SaveCompletionDraft(ctx context.Context, d CompletionDraft, actorID string) (domain.Completion, error) {
	if d.ProgressPercentage < 0 || d.ProgressPercentage > 100 {
		return domain.Completion{}, ValidationError{Field: "progress_percentage", Reason: "must be 0-100"}
	}
	a, err := e.Repo.GetAssignment(ctx, d.AssignmentID)
	if err != nil {
		return domain.Completion{}, err
	}
	if a.UserID != actorID {
		return domain.Completion{}, ValidationError{Field: "assignment_id", Reason: "only the assignee may report completion"}
	}
	if d.ProgressPercentage == 100 {
		d.IsFullyCompleted = true
	}
	if d.IsFullyCompleted {
		d.ProgressPercentage = 100
	}

	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Completion{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.ActiveCompletion(ctx, d.AssignmentID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		// A report already in review blocks a fresh draft for the same
		// assignment.
		prev, prevErr := e.Repo.LatestCompletion(ctx, d.AssignmentID)
		if prevErr != nil && !errors.Is(prevErr, repo.ErrNotFound) {
			return domain.Completion{}, prevErr
		}
		if prevErr == nil && (prev.Status == "submitted" || prev.Status == "under_review") {
			return prev, workflow.TransitionError{Entity: "completion", From: prev.Status, To: "draft"}
		}
		if a.Status != "in_progress" {
			return domain.Completion{}, workflow.TransitionError{Entity: "assignment", From: a.Status, To: "completed"}
		}
		c = domain.Completion{
			ID:           newID(),
			AssignmentID: d.AssignmentID,
			SubtaskID:    optionalString(d.SubtaskID),
			UserID:       actorID,
			Status:       workflow.Completions.Initial,
			CreatedAt:    now,
		}
		c = applyDraft(c, d, now)
		if err := e.Repo.InsertCompletion(ctx, tx, c); err != nil {
			return c, err
		}
	case err != nil:
		return domain.Completion{}, err
	default:
		// Revision requests stay editable even after a fully-completed
		// submission already closed the assignment.
		if a.Status != "in_progress" && c.Status != "revision_requested" {
			return c, workflow.TransitionError{Entity: "assignment", From: a.Status, To: "completed"}
		}
		c = applyDraft(c, d, now)
		if err := e.Repo.UpdateCompletion(ctx, tx, c); err != nil {
			return c, err
		}
	}
	if err := e.Events.Append(ctx, tx, "completion.draft.saved", "completion", c.ID, actorID, events.EventPayload{
		"progress": c.ProgressPercentage,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

func applyDraft(c domain.Completion, d CompletionDraft, now string) domain.Completion {
	c.ProgressPercentage = d.ProgressPercentage
	c.IsFullyCompleted = d.IsFullyCompleted
	c.WorkDescription = d.WorkDescription
	c.Challenges = d.Challenges
	c.NextSteps = d.NextSteps
	c.UpdatedAt = now
	return c
}

// AttachCompletionFile checks the upload against the allow-list and size
// caps, streams it to blob storage, and records the metadata row. The blob
// is removed again if the metadata insert fails.
func (e Engine) AttachCompletionFile(ctx context.Context, completionID, name, mime string, size int64, r io.Reader, actorID string) (domain.CompletionFile, error) {
	c, err := e.Repo.GetCompletion(ctx, completionID)
	if err != nil {
		return domain.CompletionFile{}, err
	}
	if c.UserID != actorID {
		return domain.CompletionFile{}, ValidationError{Field: "completion_id", Reason: "only the owner may attach files"}
	}
	if !workflow.Editable(c.Status) {
		return domain.CompletionFile{}, workflow.TransitionError{Entity: "completion", From: c.Status, To: "draft"}
	}
	if err := storage.CheckCompletionFile(e.Config.Uploads, name, mime, size); err != nil {
		return domain.CompletionFile{}, err
	}
	existing, err := e.Repo.ListCompletionFiles(ctx, completionID)
	if err != nil {
		return domain.CompletionFile{}, err
	}
	var aggregate int64
	for _, f := range existing {
		aggregate += f.FileSize
	}
	if err := storage.CheckCompletionBatch(e.Config.Uploads, len(existing), aggregate, size); err != nil {
		return domain.CompletionFile{}, err
	}

	id := newID()
	rel, written, err := e.Storage.Save(storage.BucketCompletions, id+"_"+name, r)
	if err != nil {
		return domain.CompletionFile{}, err
	}
	if written != size {
		e.Storage.Remove(rel)
		return domain.CompletionFile{}, storage.FileError{File: name, Reason: fmt.Sprintf("declared size %d but received %d", size, written)}
	}
	f := domain.CompletionFile{
		ID:           id,
		CompletionID: completionID,
		FileName:     name,
		FilePath:     rel,
		FileType:     mime,
		FileSize:     size,
		Category:     storage.Categorize(mime),
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.Storage.Remove(rel)
		return f, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCompletionFile(ctx, tx, f); err != nil {
		e.Storage.Remove(rel)
		return f, err
	}
	if err := e.Events.Append(ctx, tx, "completion.file.attached", "completion", completionID, actorID, events.EventPayload{
		"file_name": name, "category": f.Category, "size": size,
	}); err != nil {
		e.Storage.Remove(rel)
		return f, err
	}
	if err := tx.Commit(); err != nil {
		e.Storage.Remove(rel)
		return f, err
	}
	return f, nil
}

// RemoveCompletionFile deletes the metadata row and its blob together.
func (e Engine) RemoveCompletionFile(ctx context.Context, fileID, actorID string) error {
	f, err := e.Repo.GetCompletionFile(ctx, fileID)
	if err != nil {
		return err
	}
	c, err := e.Repo.GetCompletion(ctx, f.CompletionID)
	if err != nil {
		return err
	}
	if c.UserID != actorID {
		return ValidationError{Field: "id", Reason: "only the owner may remove files"}
	}
	if !workflow.Editable(c.Status) {
		return workflow.TransitionError{Entity: "completion", From: c.Status, To: "draft"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCompletionFile(ctx, tx, fileID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "completion.file.removed", "completion", f.CompletionID, actorID, events.EventPayload{"file_name": f.FileName}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return e.Storage.Remove(f.FilePath)
}

// validateCompletion is the submission gate. Every violation carries the
// field it concerns.
func (e Engine) validateCompletion(ctx context.Context, c domain.Completion) error {
	if n := utf8.RuneCountInString(c.WorkDescription); n < minWorkDescription {
		return ValidationError{Field: "work_description", Reason: fmt.Sprintf("at least %d characters, got %d", minWorkDescription, n)}
	}
	if n := utf8.RuneCountInString(c.Challenges); c.Challenges != "" && n < minChallenges {
		return ValidationError{Field: "challenges", Reason: fmt.Sprintf("at least %d characters when present, got %d", minChallenges, n)}
	}
	if !c.IsFullyCompleted && c.NextSteps == "" {
		return ValidationError{Field: "next_steps", Reason: "required unless work is fully completed"}
	}
	if c.IsFullyCompleted {
		files, err := e.Repo.ListCompletionFiles(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return ValidationError{Field: "files", Reason: "at least one attachment required for a fully completed report"}
		}
	}
	return nil
}

// SubmitCompletion runs the validation gate, flips the completion to
// submitted, and updates the parent assignment in the same transaction: to
// completed when the work is fully done, left in_progress otherwise. A
// resubmission after a revision request leaves an already completed
// assignment untouched.
func (e Engine) SubmitCompletion(ctx context.Context, completionID, actorID string) (domain.Completion, error) {
	c, err := e.Repo.GetCompletion(ctx, completionID)
	if err != nil {
		return c, err
	}
	if c.UserID != actorID {
		return c, ValidationError{Field: "id", Reason: "only the owner may submit"}
	}
	next, err := workflow.Completions.Step(c.Status, "submitted")
	if err != nil {
		return c, err
	}
	if err := e.validateCompletion(ctx, c); err != nil {
		return c, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	c.Status = next
	c.SubmittedAt = &now
	c.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCompletion(ctx, tx, c); err != nil {
		return c, err
	}
	a, err := e.Repo.GetAssignmentTx(ctx, tx, c.AssignmentID)
	if err != nil {
		return c, err
	}
	if c.IsFullyCompleted && a.Status != "completed" {
		status, err := workflow.Assignments.Step(a.Status, "completed")
		if err != nil {
			return c, err
		}
		a.Status = status
		a.CompletedAt = &now
		a.UpdatedAt = now
		if err := e.Repo.UpdateAssignmentStatus(ctx, tx, a); err != nil {
			return c, err
		}
	}
	if err := e.Events.Append(ctx, tx, "completion.submitted", "completion", c.ID, actorID, events.EventPayload{
		"fully_completed": c.IsFullyCompleted,
	}); err != nil {
		return c, err
	}
	if err := e.notify(ctx, tx, a.AssignedBy, "completion.submitted", "Completion submitted for review", "", "completion", c.ID); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// ReviewCompletion sets the reviewer verdict. Rejection and revision
// requests require a comment; approval completes the parent assignment in
// the same transaction through the same status machine the assignee path
// uses, so an already completed assignment rejects the write instead of
// being overwritten.
func (e Engine) ReviewCompletion(ctx context.Context, completionID, verdict, comment, reviewerID string) (domain.Completion, error) {
	switch verdict {
	case "approved", "revision_requested", "rejected", "under_review":
	default:
		return domain.Completion{}, ValidationError{Field: "verdict", Reason: "unknown verdict"}
	}
	if (verdict == "revision_requested" || verdict == "rejected") && comment == "" {
		return domain.Completion{}, ValidationError{Field: "comment", Reason: "required for " + verdict}
	}
	c, err := e.Repo.GetCompletion(ctx, completionID)
	if err != nil {
		return c, err
	}
	if c.UserID == reviewerID {
		return c, ValidationError{Field: "id", Reason: "cannot review own completion"}
	}
	next, err := workflow.Completions.Step(c.Status, verdict)
	if err != nil {
		return c, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	c.Status = next
	c.ReviewerID = &reviewerID
	c.ReviewComment = comment
	if verdict != "under_review" {
		c.ReviewedAt = &now
	}
	c.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCompletion(ctx, tx, c); err != nil {
		return c, err
	}
	if verdict == "approved" {
		a, err := e.Repo.GetAssignmentTx(ctx, tx, c.AssignmentID)
		if err != nil {
			return c, err
		}
		if a.Status != "completed" {
			status, err := workflow.Assignments.Step(a.Status, "completed")
			if err != nil {
				return c, err
			}
			a.Status = status
			a.CompletedAt = &now
			a.UpdatedAt = now
			if err := e.Repo.UpdateAssignmentStatus(ctx, tx, a); err != nil {
				return c, err
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "completion.reviewed", "completion", c.ID, reviewerID, events.EventPayload{
		"verdict": verdict,
	}); err != nil {
		return c, err
	}
	if err := e.notify(ctx, tx, c.UserID, "completion."+verdict, "Completion "+verdict, comment, "completion", c.ID); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// OpenCompletionFile re-fetches the blob from storage per request.
func (e Engine) OpenCompletionFile(ctx context.Context, fileID string) (domain.CompletionFile, io.ReadCloser, error) {
	f, err := e.Repo.GetCompletionFile(ctx, fileID)
	if err != nil {
		return f, nil, err
	}
	rc, err := e.Storage.Get(f.FilePath)
	return f, rc, err
}
