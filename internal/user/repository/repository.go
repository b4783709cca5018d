package repository

import (
	"context"

	"commerce-auth/backend/internal/user/domain"
)

// Repository defines persistence for users and their role assignments.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create persists the user verbatim, including CreatedAt/UpdatedAt which
	// the caller must set, and writes the generated ID back.
	Create(ctx context.Context, u *domain.User) error
	// Activate flips is_active to true and bumps updated_at.
	Activate(ctx context.Context, id int64) error
	// UpdatePassword replaces the stored password hash and bumps updated_at.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// ListRoleNames returns the role names assigned to the user, e.g. ["CUSTOMER"].
	ListRoleNames(ctx context.Context, userID int64) ([]string, error)
	// AssignRole links the user to the named role. No-op if already assigned.
	AssignRole(ctx context.Context, userID int64, roleName string) error
}
