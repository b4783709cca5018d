// Package service implements user registration. Sign-in and the rest of the
// credential lifecycle live in the auth service.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"commerce-auth/backend/internal/authcache"
	"commerce-auth/backend/internal/security"
	"commerce-auth/backend/internal/user/domain"
	"commerce-auth/backend/internal/user/repository"
)

const defaultRole = "CUSTOMER"

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrInvalidPassword = errors.New("password too short")
)

// MinPasswordLength is the smallest accepted password.
const MinPasswordLength = 8

// Mailer dispatches the verification message for a freshly registered user.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, code string, ttl time.Duration) error
}

// Service handles new-account registration.
type Service struct {
	users     repository.Repository
	cache     authcache.Store
	mailer    Mailer
	hasher    *security.Hasher
	verifyTTL time.Duration
}

// New returns a registration service.
func New(users repository.Repository, cache authcache.Store, mailer Mailer, hasher *security.Hasher, verifyTTL time.Duration) *Service {
	return &Service{
		users:     users,
		cache:     cache,
		mailer:    mailer,
		hasher:    hasher,
		verifyTTL: verifyTTL,
	}
}

// Register creates an inactive account with the default role and dispatches a
// verification email. The account cannot log in until the email is verified.
// A mail delivery failure does not fail the registration.
func (s *Service) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New("invalid email address")
	}
	if len(password) < MinPasswordLength {
		return nil, ErrInvalidPassword
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		IsActive:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.users.AssignRole(ctx, user.ID, defaultRole); err != nil {
		return nil, err
	}

	code := security.NewOneTimeCode()
	if err := s.cache.PutCode(ctx, authcache.NamespaceVerify, code, user.Email, s.verifyTTL); err != nil {
		log.Printf("user: failed to store verification code for %s: %v", user.Email, err)
		return user, nil
	}
	if err := s.mailer.SendVerificationEmail(ctx, user.Email, code, s.verifyTTL); err != nil {
		log.Printf("user: failed to send verification email to %s: %v", user.Email, err)
	}
	return user, nil
}
