package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"task-manager/internal/apperr"
	"task-manager/internal/auth"
	"task-manager/internal/model"
	"task-manager/internal/repository"
)

const msgInvalidCredentials = "Invalid email or password"

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInput is the body of a login request.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what registration and login hand back: the user (whose
// password hash is never serialized) and a fresh token.
type Session struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// AuthService covers the entry points that run without a prior identity.
type AuthService struct {
	users  *repository.UserRepository
	hasher *auth.PasswordHasher
	tokens *auth.TokenService
	log    *slog.Logger
}

func NewAuthService(users *repository.UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenService, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{users: users, hasher: hasher, tokens: tokens, log: log}
}

// Register creates a user and logs them in. The email is stored exactly as
// given and must not already be stored (exact, case-sensitive match).
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	email := in.Email
	switch {
	case name == "":
		return nil, apperr.Validation("name", "is required")
	case strings.TrimSpace(email) == "":
		return nil, apperr.Validation("email", "is required")
	case in.Password == "":
		return nil, apperr.Validation("password", "is required")
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperr.Conflict("User with this email already exists")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Internal(err, "find user")
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Name: name, Email: email, PasswordHash: digest}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("User with this email already exists")
		}
		return nil, apperr.Internal(err, "create user")
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperr.Internal(err, "issue token")
	}

	s.log.InfoContext(ctx, "user registered", "user_id", user.ID)
	return &Session{User: user, Token: token}, nil
}

// Login never says which half of the credentials was wrong.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := in.Email
	switch {
	case strings.TrimSpace(email) == "":
		return nil, apperr.Validation("email", "is required")
	case in.Password == "":
		return nil, apperr.Validation("password", "is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated(msgInvalidCredentials)
		}
		return nil, apperr.Internal(err, "find user")
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		s.log.InfoContext(ctx, "login rejected", "user_id", user.ID)
		return nil, apperr.Unauthenticated(msgInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperr.Internal(err, "issue token")
	}
	return &Session{User: user, Token: token}, nil
}

// Profile returns the caller's own user row.
func (s *AuthService) Profile(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if id == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	user, err := s.users.FindByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err, "find user")
	}
	return user, nil
}
