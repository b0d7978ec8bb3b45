package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/helios-sis/helios-sis/internal/principal"
	"github.com/helios-sis/helios-sis/internal/shared"
	"github.com/helios-sis/helios-sis/internal/token"
)

// MailEnqueuer hands reset-token delivery to the background mail pipeline.
type MailEnqueuer interface {
	EnqueueResetEmail(ctx context.Context, to, resetToken string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   principal.Repository
	tokens *token.Service
	resets *token.ResetService
	mail   MailEnqueuer
}

// NewService constructs a new Service.
func NewService(repo principal.Repository, tokens *token.Service, resets *token.ResetService, mail MailEnqueuer) *Service {
	return &Service{repo: repo, tokens: tokens, resets: resets, mail: mail}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*principal.Principal, error) {
	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !p.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return p, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *principal.Principal, error) {
	p, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	signed, err := s.tokens.Issue(p.ID)
	if err != nil {
		return "", nil, err
	}
	return signed, p, nil
}

// Register creates a new principal with a hashed password.
func (s *Service) Register(ctx context.Context, email, name, password string) (*principal.Principal, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, email, name, string(hashed))
}

// ForgotPassword issues a reset token and queues its delivery. Unknown email
// addresses are ignored so the endpoint does not leak account existence.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	raw, err := s.resets.Issue(ctx, p.ID)
	if err != nil {
		return err
	}
	if s.mail == nil {
		return nil
	}
	return s.mail.EnqueueResetEmail(ctx, p.Email, raw)
}

// ResetPassword consumes a reset token and rotates the password, which also
// invalidates every previously issued access token.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	p, err := s.resets.Verify(ctx, rawToken)
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, p.ID, string(hashed)); err != nil {
		return err
	}
	return s.resets.Clear(ctx, p.ID)
}
