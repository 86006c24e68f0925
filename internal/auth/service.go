package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ductline/ductline/internal/shared"
)

// Registrar creates pending accounts. users.Service satisfies it through an adapter.
type Registrar interface {
	Register(ctx context.Context, in RegisterInput) (int64, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	registrar Registrar
}

// NewService constructs a new Service. registrar may be nil when sign-up is disabled.
func NewService(repo Repository, registrar Registrar) *Service {
	return &Service{repo: repo, registrar: registrar}
}

// Authenticate validates email/password credentials.
// Accounts in any status may sign in; the permission evaluator limits what they can do.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// ErrRegistrationDisabled is returned when no registrar is configured.
var ErrRegistrationDisabled = errors.New("auth: registration disabled")

// Register creates a pending staff account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (int64, error) {
	if s.registrar == nil {
		return 0, ErrRegistrationDisabled
	}
	return s.registrar.Register(ctx, in)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
