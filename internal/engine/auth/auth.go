// Package auth holds the access checks shared by the HTTP handlers and CLI.
package auth

import (
	"errors"
	"fmt"

	"taskdesk/internal/domain"
)

// ForbiddenError indicates the actor lacks the required role or ownership.
type ForbiddenError struct {
	Need string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s required", e.Need)
}

var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrNotApproved is returned when a registered account has not yet been
// approved by an administrator.
var ErrNotApproved = errors.New("account pending approval")

func RequireAdmin(u domain.User) error {
	if u.Role != "admin" {
		return ForbiddenError{Need: "admin role"}
	}
	return nil
}

func RequireApproved(u domain.User) error {
	if !u.Approved {
		return ErrNotApproved
	}
	return nil
}

// RequireOwnerOrAdmin allows the owning user or any admin.
func RequireOwnerOrAdmin(u domain.User, ownerID string) error {
	if u.Role == "admin" || u.ID == ownerID {
		return nil
	}
	return ForbiddenError{Need: "ownership or admin role"}
}
