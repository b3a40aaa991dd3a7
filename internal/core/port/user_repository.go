package port

import (
	"context"
	"time"

	"github.com/stagepass/marketplace/internal/core/domain"
)

// UserRepository persists user records.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	// SetResetToken stores the reset-token hash and expiry pair. Both are
	// cleared together when hash is nil.
	SetResetToken(ctx context.Context, userID string, hash *string, expiresAt *time.Time) error
	GetByResetTokenHash(ctx context.Context, hash string) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, userID string) error
}
