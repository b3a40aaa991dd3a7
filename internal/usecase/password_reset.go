package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/infra/security"
	"github.com/stagepass/marketplace/internal/repository"
)

var (
	// ErrInvalidResetToken indicates the reset token is unknown, used or expired.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
)

const (
	resetTokenBytes = 32
	defaultResetTTL = time.Hour
)

// PasswordResetService drives the forgot-password lifecycle. The raw token
// is returned to the caller for out-of-band delivery; only its hash is stored,
// and requesting a new token invalidates any outstanding one.
type PasswordResetService struct {
	users             port.UserRepository
	sessions          port.SessionRepository
	passwordValidator *security.PasswordValidator
	resetTTL          time.Duration
	now               func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(users port.UserRepository, sessions port.SessionRepository) *PasswordResetService {
	return &PasswordResetService{
		users:             users,
		sessions:          sessions,
		passwordValidator: security.DefaultPasswordValidator(),
		resetTTL:          defaultResetTTL,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithResetTTL overrides the reset token lifetime.
func (s *PasswordResetService) WithResetTTL(ttl time.Duration) *PasswordResetService {
	if ttl > 0 {
		s.resetTTL = ttl
	}
	return s
}

// RequestReset issues a reset token for the account. An unknown email returns
// no error and no token, so the endpoint cannot be used to probe for accounts.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", fmt.Errorf("email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	token, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	hash := security.HashToken(token)
	expiresAt := s.now().Add(s.resetTTL)

	if err := s.users.SetResetToken(ctx, user.ID, &hash, &expiresAt); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	return token, nil
}

// ConfirmReset redeems a reset token, replaces the password, clears the token
// and revokes every session. The token is single-use: the hash pair is cleared
// even while sessions are being invalidated.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if newPassword == "" {
		return fmt.Errorf("new password is required")
	}

	if err := s.passwordValidator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	user, err := s.users.GetByResetTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	if !user.HasPendingReset() || s.now().After(*user.ResetTokenExpiresAt) {
		return ErrInvalidResetToken
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.users.SetResetToken(ctx, user.ID, nil, nil); err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}

	if _, err := s.sessions.InvalidateAllForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("invalidate sessions: %w", err)
	}

	return nil
}
