package service

import (
	"context"
	"errors"
	"strings"

	"task-manager/internal/apperr"
	"task-manager/internal/auth"
	"task-manager/internal/model"
	"task-manager/internal/repository"
)

// UpdateUserInput holds the optional fields of a profile update.
type UpdateUserInput struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// UserService is the self-only variant of the resource manager. Unlike
// categories, tasks and reminders, touching another user's id is reported as
// Forbidden rather than NotFound.
type UserService struct {
	users  *repository.UserRepository
	hasher *auth.PasswordHasher
}

func NewUserService(users *repository.UserRepository, hasher *auth.PasswordHasher) *UserService {
	return &UserService{users: users, hasher: hasher}
}

// List returns every user; password hashes are never serialized.
func (s *UserService) List(ctx context.Context, id *auth.Identity) ([]model.User, error) {
	if id == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "list users")
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, id *auth.Identity, userID uint) (*model.User, error) {
	if err := selfOnly(id, userID); err != nil {
		return nil, err
	}
	return s.find(ctx, userID)
}

func (s *UserService) Update(ctx context.Context, id *auth.Identity, userID uint, in UpdateUserInput) (*model.User, error) {
	if err := selfOnly(id, userID); err != nil {
		return nil, err
	}

	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	var columns []string
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation("name", "must not be empty")
		}
		user.Name = name
		columns = append(columns, "name")
	}
	if in.Email != nil {
		if strings.TrimSpace(*in.Email) == "" {
			return nil, apperr.Validation("email", "must not be empty")
		}
		user.Email = *in.Email
		columns = append(columns, "email")
	}
	if in.Password != nil && *in.Password != "" {
		digest, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = digest
		columns = append(columns, "password_hash")
	}

	if err := s.users.Update(ctx, user, columns); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperr.Conflict("User with this email already exists")
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.NotFound("User not found")
		default:
			return nil, apperr.Internal(err, "update user")
		}
	}
	return user, nil
}

// Delete removes the caller's account and, through the datastore's cascade
// rules, everything it owns.
func (s *UserService) Delete(ctx context.Context, id *auth.Identity, userID uint) error {
	if err := selfOnly(id, userID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal(err, "delete user")
	}
	return nil
}

func (s *UserService) find(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err, "find user")
	}
	return user, nil
}

func selfOnly(id *auth.Identity, userID uint) error {
	if id == nil {
		return apperr.Unauthenticated("Authentication required")
	}
	if id.UserID != userID {
		return apperr.Forbidden("Access denied")
	}
	return nil
}
