package engine_test

import (
	"testing"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/repo"
)

func validDraft() engine.ProposalDraft {
	return engine.ProposalDraft{
		Title:     "Document archive digitization",
		Objective: runes(200),
		StartDate: "2025-07-01",
		EndDate:   "2025-09-30",
		Budget:    5_000_000,
	}
}

func (env testEnv) submittedProposal(t *testing.T, author domain.User) domain.Proposal {
	t.Helper()
	p, err := env.Engine.SaveProposalDraft(env.Ctx, validDraft(), author.ID)
	if err != nil {
		t.Fatal(err)
	}
	p, err = env.Engine.SubmitProposal(env.Ctx, p.ID, author.ID)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProposalObjectiveBoundary(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author@example.com")

	d := validDraft()
	d.Objective = runes(199)
	p, err := env.Engine.SaveProposalDraft(env.Ctx, d, author.ID)
	if err != nil {
		t.Fatalf("drafts save without validation: %v", err)
	}
	if _, err := env.Engine.SubmitProposal(env.Ctx, p.ID, author.ID); err == nil {
		t.Fatal("199 characters must fail the 200 minimum")
	}

	d = validDraft()
	d.ID = p.ID
	if _, err := env.Engine.SaveProposalDraft(env.Ctx, d, author.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitProposal(env.Ctx, p.ID, author.ID); err != nil {
		t.Fatalf("200 characters should pass: %v", err)
	}
}

func TestProposalDateOrdering(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author2@example.com")
	d := validDraft()
	d.StartDate = "2025-09-30"
	d.EndDate = "2025-07-01"
	p, err := env.Engine.SaveProposalDraft(env.Ctx, d, author.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitProposal(env.Ctx, p.ID, author.ID); err == nil {
		t.Fatal("end date before start date must be rejected")
	}
	// A single-day project is allowed.
	d = validDraft()
	d.ID = p.ID
	d.StartDate = "2025-07-01"
	d.EndDate = "2025-07-01"
	if _, err := env.Engine.SaveProposalDraft(env.Ctx, d, author.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitProposal(env.Ctx, p.ID, author.ID); err != nil {
		t.Fatalf("equal start and end: %v", err)
	}
}

func TestProposalDepartmentsDiffed(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author3@example.com")
	d1, _ := env.Engine.CreateDepartment(env.Ctx, "D1", "", env.Admin.ID)
	d2, _ := env.Engine.CreateDepartment(env.Ctx, "D2", "", env.Admin.ID)

	draft := validDraft()
	draft.DepartmentIDs = []string{d1.ID}
	p, err := env.Engine.SaveProposalDraft(env.Ctx, draft, author.ID)
	if err != nil {
		t.Fatal(err)
	}
	draft.ID = p.ID
	draft.DepartmentIDs = []string{d2.ID}
	if _, err := env.Engine.SaveProposalDraft(env.Ctx, draft, author.ID); err != nil {
		t.Fatal(err)
	}
	ids, err := env.Engine.Repo.ListProposalDepartments(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != d2.ID {
		t.Fatalf("expected [%s], got %v", d2.ID, ids)
	}
}

func TestRejectionFeedbackMinimum(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author4@example.com")
	p := env.submittedProposal(t, author)

	_, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "rejected",
		Feedback:   "too short",
		ReviewerID: env.Admin.ID,
	})
	if err == nil {
		t.Fatal("feedback under 20 characters must be rejected")
	}
	got, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "rejected",
		Feedback:   "the budget exceeds this quarter's allocation",
		ReviewerID: env.Admin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "rejected" {
		t.Fatalf("got %s", got.Status)
	}
	comments, err := env.Engine.Repo.ListProposalComments(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0].Kind != "rejection" {
		t.Fatalf("verdict must be recorded as a comment: %+v", comments)
	}
}

func TestChangesRequestedReopensEditing(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author5@example.com")
	p := env.submittedProposal(t, author)

	p, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "changes_requested",
		Feedback:   "please split phase two into its own proposal",
		ReviewerID: env.Admin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != "changes_requested" {
		t.Fatalf("got %s", p.Status)
	}

	// Distinct from rejection: the author may edit and resubmit.
	d := validDraft()
	d.ID = p.ID
	d.Budget = 3_000_000
	if _, err := env.Engine.SaveProposalDraft(env.Ctx, d, author.ID); err != nil {
		t.Fatalf("edit after changes requested: %v", err)
	}
	if _, err := env.Engine.SubmitProposal(env.Ctx, p.ID, author.ID); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestRejectedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author6@example.com")
	p := env.submittedProposal(t, author)
	if _, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "rejected",
		Feedback:   "out of scope for this planning cycle",
		ReviewerID: env.Admin.ID,
	}); err != nil {
		t.Fatal(err)
	}
	d := validDraft()
	d.ID = p.ID
	if _, err := env.Engine.SaveProposalDraft(env.Ctx, d, author.ID); err == nil {
		t.Fatal("rejected proposals must not be editable")
	}
	if _, err := env.Engine.SubmitProposal(env.Ctx, p.ID, author.ID); err == nil {
		t.Fatal("rejected proposals must not be resubmittable")
	}
}

func TestSelfReviewBlockedOnProposal(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author7@example.com")
	p := env.submittedProposal(t, author)
	if _, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "approved",
		ReviewerID: author.ID,
	}); err == nil {
		t.Fatal("authors must not review their own proposals")
	}
}

func TestApprovalGeneratesLinkedPlan(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author8@example.com")
	worker := env.newUser(t, "Worker", "planworker@example.com")
	p := env.submittedProposal(t, author)

	p, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "approved",
		ReviewerID: env.Admin.ID,
		Plan: engine.PlanSpec{
			Generate:  true,
			Assignees: []string{worker.ID, env.Admin.ID},
			DueDate:   "2025-09-01T00:00:00Z",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != "approved" || p.LinkedPlanID == nil {
		t.Fatalf("approval should link a plan: %+v", p)
	}
	plan, err := env.Engine.GetTask(env.Ctx, *p.LinkedPlanID)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Category != "plan" || plan.SourceProposalID == nil || *plan.SourceProposalID != p.ID {
		t.Fatalf("plan not linked back to proposal: %+v", plan)
	}
	subtasks, err := env.Engine.Repo.ListSubtasks(env.Ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("one subtask per assignee, got %d", len(subtasks))
	}
}

func TestApprovalWithUnknownAssigneeRollsBack(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author9@example.com")
	p := env.submittedProposal(t, author)

	_, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "approved",
		ReviewerID: env.Admin.ID,
		Plan:       engine.PlanSpec{Generate: true, Assignees: []string{"ghost"}},
	})
	if err == nil {
		t.Fatal("unknown plan assignee must fail the review")
	}
	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "submitted" || got.LinkedPlanID != nil {
		t.Fatalf("failed review must leave the proposal untouched: %+v", got)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{})
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if task.Category == "plan" {
			t.Fatal("no plan task may survive the rollback")
		}
	}
}

func TestApprovalWithoutPlanSpec(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author10@example.com")
	p := env.submittedProposal(t, author)
	p, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "approved",
		ReviewerID: env.Admin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.LinkedPlanID != nil {
		t.Fatal("no plan requested, none should be generated")
	}
}

func TestPlanSubtasksLockAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author11@example.com")
	worker := env.newUser(t, "Worker", "planworker2@example.com")
	p := env.submittedProposal(t, author)
	p, err := env.Engine.ReviewProposal(env.Ctx, engine.ProposalReview{
		ProposalID: p.ID,
		Verdict:    "approved",
		ReviewerID: env.Admin.ID,
		Plan:       engine.PlanSpec{Generate: true, Assignees: []string{worker.ID}},
	})
	if err != nil {
		t.Fatal(err)
	}
	planID := *p.LinkedPlanID
	subtasks, err := env.Engine.Repo.ListSubtasks(env.Ctx, planID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetSubtaskStatus(env.Ctx, subtasks[0].ID, "in_progress", worker.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetTaskStatus(env.Ctx, planID, "in_progress", env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetTaskStatus(env.Ctx, planID, "completed", env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetSubtaskStatus(env.Ctx, subtasks[0].ID, "completed", worker.ID); err == nil {
		t.Fatal("subtasks of a completed plan must be locked")
	}
}

func TestDeleteProposalRemovesChildren(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "Author", "author12@example.com")
	p, err := env.Engine.SaveProposalDraft(env.Ctx, validDraft(), author.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CommentProposal(env.Ctx, p.ID, "looks promising", env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteProposal(env.Ctx, p.ID, env.Admin.ID); err == nil {
		t.Fatal("only the author may delete")
	}
	if err := env.Engine.DeleteProposal(env.Ctx, p.ID, author.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID); err == nil {
		t.Fatal("proposal should be gone")
	}
}
