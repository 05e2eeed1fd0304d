package engine_test

import (
	"strings"
	"testing"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

// startedAssignment walks a fresh assignment to in_progress for the user.
func (env testEnv) startedAssignment(t *testing.T, u domain.User) domain.Assignment {
	t.Helper()
	task := env.newTask(t, "Work for "+u.Name)
	assignments, err := env.Engine.CreateAssignments(env.Ctx, engine.AssignmentCreateOptions{
		TaskID:     task.ID,
		UserIDs:    []string{u.ID},
		AssignedBy: env.Admin.ID,
		Deadline:   "2025-07-01T00:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	a := assignments[0]
	if a, err = env.Engine.SetAssignmentStatus(env.Ctx, a.ID, "accepted", u.ID); err != nil {
		t.Fatal(err)
	}
	if a, err = env.Engine.SetAssignmentStatus(env.Ctx, a.ID, "in_progress", u.ID); err != nil {
		t.Fatal(err)
	}
	return a
}

// Report narratives may be Cyrillic, so minimums count runes, not bytes.
func runes(n int) string {
	return strings.Repeat("ж", n)
}

func TestDraftRequiresInProgressAssignment(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "worker@example.com")
	task := env.newTask(t, "Not started")
	assignments, err := env.Engine.CreateAssignments(env.Ctx, engine.AssignmentCreateOptions{
		TaskID:     task.ID,
		UserIDs:    []string{u.ID},
		AssignedBy: env.Admin.ID,
		Deadline:   "2025-07-01T00:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID: assignments[0].ID,
	}, u.ID)
	if err == nil {
		t.Fatal("draft must be rejected while assignment is pending")
	}
}

func TestDraftOwnership(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w1@example.com")
	other := env.newUser(t, "Other", "o1@example.com")
	a := env.startedAssignment(t, u)
	_, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{AssignmentID: a.ID}, other.ID)
	if err == nil {
		t.Fatal("only the assignee may report completion")
	}
}

func TestProgressAndFullyCompletedImplyEachOther(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w2@example.com")
	a := env.startedAssignment(t, u)

	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 100,
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsFullyCompleted {
		t.Fatal("progress 100 implies fully completed")
	}

	c, err = env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:     a.ID,
		IsFullyCompleted: true,
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.ProgressPercentage != 100 {
		t.Fatal("fully completed implies progress 100")
	}

	// Saving partial progress again walks both back together.
	c, err = env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 40,
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsFullyCompleted || c.ProgressPercentage != 40 {
		t.Fatalf("partial save should stick: %+v", c)
	}

	if _, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 101,
	}, u.ID); err == nil {
		t.Fatal("progress above 100 must be rejected")
	}
}

func TestRepeatedSavesUpdateOneDraft(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w3@example.com")
	a := env.startedAssignment(t, u)
	first, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{AssignmentID: a.ID, ProgressPercentage: 10}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{AssignmentID: a.ID, ProgressPercentage: 20}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatal("saves for one assignment must reuse the active draft")
	}
	if second.ProgressPercentage != 20 {
		t.Fatalf("draft not updated: %+v", second)
	}
}

func TestSubmitWorkDescriptionBoundary(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w4@example.com")
	a := env.startedAssignment(t, u)

	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 50,
		WorkDescription:    runes(499),
		NextSteps:          "continue tomorrow",
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err == nil {
		t.Fatal("499 characters must fail the 500 minimum")
	}

	if _, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 50,
		WorkDescription:    runes(500),
		NextSteps:          "continue tomorrow",
	}, u.ID); err != nil {
		t.Fatal(err)
	}
	c, err = env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID)
	if err != nil {
		t.Fatalf("500 characters should pass: %v", err)
	}
	if c.Status != "submitted" || c.SubmittedAt == nil {
		t.Fatalf("submit did not stamp status: %+v", c)
	}
	// Partial progress leaves the assignment in flight.
	got, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "in_progress" {
		t.Fatalf("partial submit must not complete the assignment, got %s", got.Status)
	}
}

func TestSubmitNextStepsRequiredUnlessDone(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w5@example.com")
	a := env.startedAssignment(t, u)
	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 50,
		WorkDescription:    runes(500),
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err == nil {
		t.Fatal("partial work without next steps must be rejected")
	}
}

func TestSubmitChallengesMinimumOnlyWhenPresent(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w6@example.com")
	a := env.startedAssignment(t, u)
	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 50,
		WorkDescription:    runes(500),
		Challenges:         runes(199),
		NextSteps:          "more next week",
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err == nil {
		t.Fatal("short challenges text must be rejected")
	}
	if _, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 50,
		WorkDescription:    runes(500),
		NextSteps:          "more next week",
	}, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err != nil {
		t.Fatalf("empty challenges is allowed: %v", err)
	}
}

func TestFullyCompletedNeedsEvidence(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w7@example.com")
	a := env.startedAssignment(t, u)
	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:     a.ID,
		IsFullyCompleted: true,
		WorkDescription:  runes(500),
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err == nil {
		t.Fatal("fully completed report needs at least one attachment")
	}

	payload := []byte("png-bytes")
	if _, err := env.Engine.AttachCompletionFile(env.Ctx, c.ID, "proof.png", "image/png", int64(len(payload)), strings.NewReader(string(payload)), u.ID); err != nil {
		t.Fatalf("attach: %v", err)
	}
	c, err = env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID)
	if err != nil {
		t.Fatalf("submit with evidence: %v", err)
	}
	got, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" || got.CompletedAt == nil {
		t.Fatalf("fully completed submit finishes the assignment, got %s", got.Status)
	}
}

func TestAttachRejectsDisallowedAndOversized(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w8@example.com")
	a := env.startedAssignment(t, u)
	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{AssignmentID: a.ID}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AttachCompletionFile(env.Ctx, c.ID, "tool.exe", "application/x-msdownload", 10, strings.NewReader("xxxxxxxxxx"), u.ID); err == nil {
		t.Fatal("disallowed MIME type must be rejected")
	}
	over := env.Engine.Config.Uploads.MaxImageBytes + 1
	if _, err := env.Engine.AttachCompletionFile(env.Ctx, c.ID, "big.png", "image/png", over, strings.NewReader(""), u.ID); err == nil {
		t.Fatal("oversized image must be rejected")
	}
	// A size mismatch between declaration and stream is rejected and the
	// blob is not kept.
	if _, err := env.Engine.AttachCompletionFile(env.Ctx, c.ID, "short.png", "image/png", 100, strings.NewReader("tiny"), u.ID); err == nil {
		t.Fatal("declared size mismatch must be rejected")
	}
	files, err := env.Engine.Repo.ListCompletionFiles(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("no metadata rows expected after rejections, got %d", len(files))
	}
}

func TestReviewVerdicts(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w9@example.com")
	a := env.startedAssignment(t, u)
	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 50,
		WorkDescription:    runes(500),
		NextSteps:          "keep going",
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c, err = env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.ReviewCompletion(env.Ctx, c.ID, "rejected", "", env.Admin.ID); err == nil {
		t.Fatal("rejection requires a comment")
	}
	if _, err := env.Engine.ReviewCompletion(env.Ctx, c.ID, "approved", "", u.ID); err == nil {
		t.Fatal("self-review must be blocked")
	}

	c, err = env.Engine.ReviewCompletion(env.Ctx, c.ID, "revision_requested", "needs detail on testing", env.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != "revision_requested" {
		t.Fatalf("got %s", c.Status)
	}

	// The revision loop: the owner edits and resubmits the same record.
	if _, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 60,
		WorkDescription:    runes(600),
		NextSteps:          "wrap up",
	}, u.ID); err != nil {
		t.Fatalf("revision edit: %v", err)
	}
	if c, err = env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	c, err = env.Engine.ReviewCompletion(env.Ctx, c.ID, "approved", "", env.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != "approved" || c.ReviewedAt == nil {
		t.Fatalf("approval not recorded: %+v", c)
	}
	got, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" {
		t.Fatalf("approval completes the assignment, got %s", got.Status)
	}
}

func TestApproveAfterFullSubmitDoesNotConflict(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w10@example.com")
	a := env.startedAssignment(t, u)
	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:     a.ID,
		IsFullyCompleted: true,
		WorkDescription:  runes(500),
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AttachCompletionFile(env.Ctx, c.ID, "proof.png", "image/png", 4, strings.NewReader("data"), u.ID); err != nil {
		t.Fatal(err)
	}
	if c, err = env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err != nil {
		t.Fatal(err)
	}
	// The submit already completed the assignment; the reviewer's
	// approval must not fail or double-write it.
	if _, err := env.Engine.ReviewCompletion(env.Ctx, c.ID, "approved", "", env.Admin.ID); err != nil {
		t.Fatalf("approve after full submit: %v", err)
	}
}

func TestEditingLockedAfterSubmit(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w11@example.com")
	a := env.startedAssignment(t, u)
	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:       a.ID,
		ProgressPercentage: 50,
		WorkDescription:    runes(500),
		NextSteps:          "next",
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{AssignmentID: a.ID}, u.ID); err == nil {
		t.Fatal("submitted report must not be editable")
	}
	if _, err := env.Engine.AttachCompletionFile(env.Ctx, c.ID, "late.png", "image/png", 4, strings.NewReader("data"), u.ID); err == nil {
		t.Fatal("submitted report must not accept files")
	}
}

func TestRevisionAfterFullCompletionStaysEditable(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "Worker", "w12@example.com")
	a := env.startedAssignment(t, u)
	c, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:     a.ID,
		IsFullyCompleted: true,
		WorkDescription:  runes(500),
	}, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AttachCompletionFile(env.Ctx, c.ID, "proof.png", "image/png", 4, strings.NewReader("data"), u.ID); err != nil {
		t.Fatal(err)
	}
	if c, err = env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" {
		t.Fatalf("full submit completes the assignment, got %s", got.Status)
	}

	// Revision requests reopen the report even though the assignment is
	// already terminal.
	if c, err = env.Engine.ReviewCompletion(env.Ctx, c.ID, "revision_requested", "screenshots are unreadable", env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SaveCompletionDraft(env.Ctx, engine.CompletionDraft{
		AssignmentID:     a.ID,
		IsFullyCompleted: true,
		WorkDescription:  runes(700),
	}, u.ID); err != nil {
		t.Fatalf("revision edit after full completion: %v", err)
	}
	if c, err = env.Engine.SubmitCompletion(env.Ctx, c.ID, u.ID); err != nil {
		t.Fatalf("resubmit after full completion: %v", err)
	}
	c, err = env.Engine.ReviewCompletion(env.Ctx, c.ID, "approved", "", env.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != "approved" {
		t.Fatalf("got %s", c.Status)
	}
	got, err = env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" {
		t.Fatalf("assignment must stay completed, got %s", got.Status)
	}
}
