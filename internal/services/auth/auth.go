// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth manages staff accounts and password login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrStaffExists        = errors.New("staff member already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidRole        = errors.New("invalid staff role")
)

// dummyHash keeps login timing equal for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Service authenticates staff.
type Service struct {
	repo   *repository.Repository
	policy PasswordPolicy
	cost   int
}

// Option customizes a Service.
type Option func(*Service)

// WithPasswordPolicy replaces the default password policy.
func WithPasswordPolicy(p PasswordPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithBcryptCost sets the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(repo *repository.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		policy: DefaultPasswordPolicy(),
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateStaffParams holds the fields of a new staff account.
type CreateStaffParams struct {
	Email    string
	Username string
	Password string
	Role     string
}

// CreateStaff validates params and stores a new staff member.
func (s *Service) CreateStaff(ctx context.Context, params CreateStaffParams) (*models.Staff, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	role := params.Role
	if role == "" {
		role = models.RoleVolunteer
	}
	if role != models.RoleVolunteer && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	username := strings.TrimSpace(params.Username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}

	if err := s.policy.Check(params.Password, email, username); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	staff, err := s.repo.CreateStaff(ctx, email, username, string(hash), role)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrStaffExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create staff: %w", err)
	}

	slog.Info("staff_created", "staff_id", staff.ID, "email", email, "role", role)
	return staff, nil
}

// Login authenticates a staff member by email and password.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Staff, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	staff, err := s.repo.GetStaffByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "email", email, "reason", "staff_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	slog.Info("login_success", "staff_id", staff.ID)
	return staff, nil
}

// ChangePassword replaces a staff password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, staffID int64, currentPassword, newPassword string) error {
	staff, err := s.repo.GetStaffByID(ctx, staffID)
	if err != nil {
		return fmt.Errorf("failed to get staff: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.policy.Check(newPassword, staff.Email, staff.Username); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdateStaffPassword(ctx, staffID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
