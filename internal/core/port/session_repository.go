package port

import (
	"context"

	"github.com/stagepass/marketplace/internal/core/domain"
)

// SessionRepository persists the session ledger. Revocation flips is_valid,
// it never deletes rows.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByTokenHash(ctx context.Context, hash string) (*domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	// Invalidate marks a single session invalid. Invalidating an already
	// invalid session succeeds.
	Invalidate(ctx context.Context, sessionID string) error
	// InvalidateAllForUser marks every valid session for the user invalid
	// and returns the number of rows flipped.
	InvalidateAllForUser(ctx context.Context, userID string) (int, error)
}
