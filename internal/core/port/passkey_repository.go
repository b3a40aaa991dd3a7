package port

import (
	"context"

	"github.com/stagepass/marketplace/internal/core/domain"
)

// PasskeyRepository persists WebAuthn credentials.
type PasskeyRepository interface {
	Create(ctx context.Context, credential domain.PasskeyCredential) error
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PasskeyCredential, error)
	GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error)
	UpdateSignCount(ctx context.Context, id string, signCount uint32) error
	Deactivate(ctx context.Context, id string) error
}
