package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

// RegisterUser creates an unapproved account. The first registered user is
// promoted to admin and approved so a fresh install is usable.
func (e Engine) RegisterUser(ctx context.Context, name, email, password string) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return domain.User{}, ValidationError{Field: "name", Reason: "required"}
	}
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, ValidationError{Field: "email", Reason: "valid email required"}
	}
	if len(password) < 8 {
		return domain.User{}, ValidationError{Field: "password", Reason: "at least 8 characters"}
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, ValidationError{Field: "email", Reason: "already registered"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	total, _, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         "user",
		Approved:     false,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	if total == 0 {
		u.Role = "admin"
		u.Approved = true
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.registered", "user", u.ID, u.ID, events.EventPayload{"email": u.Email, "approved": u.Approved}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Login verifies credentials and the approval gate.
func (e Engine) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, auth.ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err := auth.RequireApproved(u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) SetUserApproval(ctx context.Context, userID string, approved bool, actorID string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetUserApproved(ctx, tx, userID, approved); err != nil {
		return domain.User{}, err
	}
	evt := "user.approved"
	if !approved {
		evt = "user.rejected"
	}
	if err := e.Events.Append(ctx, tx, evt, "user", userID, actorID, events.EventPayload{}); err != nil {
		return domain.User{}, err
	}
	if err := e.notify(ctx, tx, userID, evt, "Account review", "", "user", userID); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	u.Approved = approved
	return u, nil
}

func (e Engine) SetUserRole(ctx context.Context, userID, role, actorID string) (domain.User, error) {
	if role != "admin" && role != "user" {
		return domain.User{}, ValidationError{Field: "role", Reason: "must be admin or user"}
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetUserRole(ctx, tx, userID, role); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.role.changed", "user", userID, actorID, events.EventPayload{"role": role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	u.Role = role
	return u, nil
}

func (e Engine) DeleteUser(ctx context.Context, userID, actorID string) error {
	if userID == actorID {
		return ValidationError{Field: "id", Reason: "cannot delete own account"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteUser(ctx, tx, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.deleted", "user", userID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats aggregates counts for the admin dashboard.
type Stats struct {
	TotalUsers       int            `json:"total_users"`
	ApprovedUsers    int            `json:"approved_users"`
	TasksByStatus    map[string]int `json:"tasks_by_status"`
	AssignByStatus   map[string]int `json:"assignments_by_status"`
	ProposalByStatus map[string]int `json:"proposals_by_status"`
}

func (e Engine) AdminStats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	s.TotalUsers, s.ApprovedUsers, err = e.Repo.CountUsers(ctx)
	if err != nil {
		return s, err
	}
	if s.TasksByStatus, err = e.Repo.CountsByStatus(ctx, "tasks", "status"); err != nil {
		return s, err
	}
	if s.AssignByStatus, err = e.Repo.CountsByStatus(ctx, "assignments", "status"); err != nil {
		return s, err
	}
	if s.ProposalByStatus, err = e.Repo.CountsByStatus(ctx, "proposals", "status"); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) CreateDepartment(ctx context.Context, name, description, actorID string) (domain.Department, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Department{}, ValidationError{Field: "name", Reason: "required"}
	}
	d := domain.Department{
		ID:          newID(),
		Name:        strings.TrimSpace(name),
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDepartment(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "department.created", "department", d.ID, actorID, events.EventPayload{"name": d.Name}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func (e Engine) DeleteDepartment(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_departments WHERE department_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM departments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	if err := e.Events.Append(ctx, tx, "department.deleted", "department", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// SetUserDepartments replaces a user's department memberships by diffing the
// wanted set against the stored one, so membership never passes through an
// empty intermediate state.
func (e Engine) SetUserDepartments(ctx context.Context, userID string, departmentIDs []string, actorID string) error {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return err
	}
	for _, id := range departmentIDs {
		if _, err := e.Repo.GetDepartment(ctx, id); err != nil {
			return err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.PatchUserDepartments(ctx, tx, userID, departmentIDs); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.departments.patched", "user", userID, actorID, events.EventPayload{"departments": departmentIDs}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for non-interactive clients. The raw key is
// returned once and only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "tdk_" + strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
	key := domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}
