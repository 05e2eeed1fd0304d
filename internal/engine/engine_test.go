package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
	"taskdesk/internal/repo"
	"taskdesk/internal/storage"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Admin  domain.User
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	eng := engine.New(conn, config.Default(), store)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	admin, err := eng.RegisterUser(ctx, "Admin", "admin@example.com", "password-1")
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Admin: admin}
}

// newUser registers and approves a regular account.
func (env testEnv) newUser(t *testing.T, name, email string) domain.User {
	t.Helper()
	u, err := env.Engine.RegisterUser(env.Ctx, name, email, "password-1")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	u, err = env.Engine.SetUserApproval(env.Ctx, u.ID, true, env.Admin.ID)
	if err != nil {
		t.Fatalf("approve %s: %v", email, err)
	}
	return u
}

func (env testEnv) newTask(t *testing.T, title string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:   title,
		ActorID: env.Admin.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestFirstUserBecomesAdmin(t *testing.T) {
	env := newTestEnv(t)
	if env.Admin.Role != "admin" || !env.Admin.Approved {
		t.Fatalf("first user should be an approved admin, got role=%s approved=%v", env.Admin.Role, env.Admin.Approved)
	}
	second, err := env.Engine.RegisterUser(env.Ctx, "Second", "second@example.com", "password-1")
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if second.Role != "user" || second.Approved {
		t.Fatalf("later users start as unapproved regulars, got role=%s approved=%v", second.Role, second.Approved)
	}
}

func TestLoginRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterUser(env.Ctx, "Pending", "pending@example.com", "password-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Login(env.Ctx, "pending@example.com", "password-1"); err == nil {
		t.Fatal("login should be rejected before approval")
	}
	if _, err := env.Engine.Login(env.Ctx, "pending@example.com", "wrong-password"); err == nil {
		t.Fatal("bad password should be rejected")
	}
	u := env.newUser(t, "Approved", "approved@example.com")
	got, err := env.Engine.Login(env.Ctx, "approved@example.com", "password-1")
	if err != nil {
		t.Fatalf("login after approval: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("login returned wrong user")
	}
}

func TestDuplicateEmailRejected(t *testing.T) {
	env := newTestEnv(t)
	env.newUser(t, "One", "dup@example.com")
	if _, err := env.Engine.RegisterUser(env.Ctx, "Two", "DUP@example.com", "password-1"); err == nil {
		t.Fatal("email comparison must be case-insensitive")
	}
}

func TestDepartmentExpansionDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "A", "a@example.com")
	b := env.newUser(t, "B", "b@example.com")
	c := env.newUser(t, "C", "c@example.com")
	finance, err := env.Engine.CreateDepartment(env.Ctx, "Finance", "", env.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range []domain.User{a, b, c} {
		if err := env.Engine.SetUserDepartments(env.Ctx, u.ID, []string{finance.ID}, env.Admin.ID); err != nil {
			t.Fatal(err)
		}
	}
	task := env.newTask(t, "Quarterly report")

	// Member b is also selected individually; the overlap must not
	// produce a fourth row.
	assignments, err := env.Engine.CreateAssignments(env.Ctx, engine.AssignmentCreateOptions{
		TaskID:        task.ID,
		UserIDs:       []string{b.ID},
		DepartmentIDs: []string{finance.ID},
		AssignedBy:    env.Admin.ID,
		Deadline:      "2025-07-01T00:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(assignments))
	}
	byUser := map[string]domain.Assignment{}
	for _, as := range assignments {
		if byUser[as.UserID].ID != "" {
			t.Fatalf("duplicate assignment for user %s", as.UserID)
		}
		byUser[as.UserID] = as
		if as.AssignmentType != "mixed" {
			t.Fatalf("expected mixed type, got %s", as.AssignmentType)
		}
	}
	if !byUser[b.ID].IsPrimary {
		t.Fatal("individually selected user should be primary")
	}
	if byUser[a.ID].IsPrimary || byUser[c.ID].IsPrimary {
		t.Fatal("exactly one assignment is primary")
	}
}

func TestOverlappingDepartmentsResolveToUnion(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "A", "a2@example.com")
	b := env.newUser(t, "B", "b2@example.com")
	d1, _ := env.Engine.CreateDepartment(env.Ctx, "One", "", env.Admin.ID)
	d2, _ := env.Engine.CreateDepartment(env.Ctx, "Two", "", env.Admin.ID)
	if err := env.Engine.SetUserDepartments(env.Ctx, a.ID, []string{d1.ID, d2.ID}, env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetUserDepartments(env.Ctx, b.ID, []string{d2.ID}, env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	task := env.newTask(t, "Shared work")
	assignments, err := env.Engine.CreateAssignments(env.Ctx, engine.AssignmentCreateOptions{
		TaskID:        task.ID,
		DepartmentIDs: []string{d1.ID, d2.ID},
		AssignedBy:    env.Admin.ID,
		Deadline:      "2025-07-01T00:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected union of members (2), got %d", len(assignments))
	}
}

func TestAssignmentDeadlineRequired(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "U", "u@example.com")
	task := env.newTask(t, "No deadline")
	_, err := env.Engine.CreateAssignments(env.Ctx, engine.AssignmentCreateOptions{
		TaskID:     task.ID,
		UserIDs:    []string{u.ID},
		AssignedBy: env.Admin.ID,
	})
	if err == nil {
		t.Fatal("missing deadline must be rejected")
	}
	_, err = env.Engine.CreateAssignments(env.Ctx, engine.AssignmentCreateOptions{
		TaskID:     task.ID,
		UserIDs:    []string{u.ID},
		AssignedBy: env.Admin.ID,
		Deadline:   "tomorrow",
	})
	if err == nil {
		t.Fatal("non-RFC3339 deadline must be rejected")
	}
}

func TestOnlyAssigneeStepsAssignment(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "U", "u3@example.com")
	other := env.newUser(t, "Other", "other@example.com")
	task := env.newTask(t, "Guarded")
	assignments, err := env.Engine.CreateAssignments(env.Ctx, engine.AssignmentCreateOptions{
		TaskID:     task.ID,
		UserIDs:    []string{u.ID},
		AssignedBy: env.Admin.ID,
		Deadline:   "2025-07-01T00:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetAssignmentStatus(env.Ctx, assignments[0].ID, "accepted", other.ID); err == nil {
		t.Fatal("non-assignee must not step the assignment")
	}
	a, err := env.Engine.SetAssignmentStatus(env.Ctx, assignments[0].ID, "accepted", u.ID)
	if err != nil || a.Status != "accepted" {
		t.Fatalf("assignee accept: %v", err)
	}
	// Skipping accepted -> in_progress is not allowed from pending.
	if _, err := env.Engine.SetAssignmentStatus(env.Ctx, assignments[0].ID, "completed", u.ID); err == nil {
		t.Fatal("accepted -> completed skips in_progress")
	}
}

func TestOverdueComputedAtRead(t *testing.T) {
	env := newTestEnv(t)
	past := domain.Assignment{Status: "pending", Deadline: "2025-05-01T00:00:00Z"}
	if !env.Engine.Overdue(past) {
		t.Fatal("pending past deadline is overdue")
	}
	done := domain.Assignment{Status: "completed", Deadline: "2025-05-01T00:00:00Z"}
	if env.Engine.Overdue(done) {
		t.Fatal("completed assignments are never overdue")
	}
	declined := domain.Assignment{Status: "declined", Deadline: "2025-05-01T00:00:00Z"}
	if env.Engine.Overdue(declined) {
		t.Fatal("declined assignments are never overdue")
	}
	future := domain.Assignment{Status: "in_progress", Deadline: "2025-08-01T00:00:00Z"}
	if env.Engine.Overdue(future) {
		t.Fatal("future deadline is not overdue")
	}
}

func TestSetUserDepartmentsPatchesDiff(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "U", "u4@example.com")
	d1, _ := env.Engine.CreateDepartment(env.Ctx, "D1", "", env.Admin.ID)
	d2, _ := env.Engine.CreateDepartment(env.Ctx, "D2", "", env.Admin.ID)
	d3, _ := env.Engine.CreateDepartment(env.Ctx, "D3", "", env.Admin.ID)
	if err := env.Engine.SetUserDepartments(env.Ctx, u.ID, []string{d1.ID, d2.ID}, env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetUserDepartments(env.Ctx, u.ID, []string{d2.ID, d3.ID}, env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	ids, err := env.Engine.Repo.ListUserDepartments(env.Ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{d2.ID: true, d3.ID: true}
	if len(ids) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(ids))
	}
	for _, id := range ids {
		if !want[id] {
			t.Fatalf("unexpected membership %s", id)
		}
	}
	// Unknown department ids are rejected before any write.
	if err := env.Engine.SetUserDepartments(env.Ctx, u.ID, []string{"missing"}, env.Admin.ID); err == nil {
		t.Fatal("unknown department must be rejected")
	}
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	env.newUser(t, "U", "u5@example.com")
	if _, err := env.Engine.RegisterUser(env.Ctx, "Pending", "p5@example.com", "password-1"); err != nil {
		t.Fatal(err)
	}
	env.newTask(t, "Counted")
	stats, err := env.Engine.AdminStats(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalUsers != 3 || stats.ApprovedUsers != 2 {
		t.Fatalf("user counts wrong: %+v", stats)
	}
	if stats.TasksByStatus["open"] != 1 {
		t.Fatalf("task counts wrong: %+v", stats.TasksByStatus)
	}
}

func TestUnknownDepartmentRejectsAssignment(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "A", "a6@example.com")
	dept, err := env.Engine.CreateDepartment(env.Ctx, "Ops", "", env.Admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetUserDepartments(env.Ctx, u.ID, []string{dept.ID}, env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	task := env.newTask(t, "Inventory")

	// A typoed department must fail the whole batch, not silently
	// shrink the fan-out.
	_, err = env.Engine.CreateAssignments(env.Ctx, engine.AssignmentCreateOptions{
		TaskID:        task.ID,
		DepartmentIDs: []string{dept.ID, "dept-typo"},
		AssignedBy:    env.Admin.ID,
		Deadline:      "2025-07-01T00:00:00Z",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown department, got %v", err)
	}
	got, err := env.Engine.Repo.ListAssignments(env.Ctx, repo.AssignmentFilters{TaskID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("no assignments may survive the failed batch, got %d", len(got))
	}
}

func TestUserAndDepartmentInsertsHonorTransaction(t *testing.T) {
	env := newTestEnv(t)
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	u := domain.User{
		ID:           "u-rollback",
		Name:         "Ghost",
		Email:        "ghost@example.com",
		PasswordHash: "x",
		Role:         "user",
		CreatedAt:    "2025-06-01T12:00:00Z",
	}
	if err := env.Engine.Repo.InsertUser(env.Ctx, tx, u); err != nil {
		t.Fatal(err)
	}
	d := domain.Department{ID: "d-rollback", Name: "Ghost Dept", CreatedAt: u.CreatedAt}
	if err := env.Engine.Repo.InsertDepartment(env.Ctx, tx, d); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Repo.GetUser(env.Ctx, u.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rolled-back user must not persist, got %v", err)
	}
	if _, err := env.Engine.Repo.GetDepartment(env.Ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rolled-back department must not persist, got %v", err)
	}
}
