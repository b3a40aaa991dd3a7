package port

import (
	"context"

	"github.com/stagepass/marketplace/internal/core/domain"
)

// PurchaseRepository persists purchase records.
type PurchaseRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Purchase, error)
	GetByCheckoutSessionID(ctx context.Context, sessionID string) (*domain.Purchase, error)
	SetCheckoutSession(ctx context.Context, purchaseID, checkoutSessionID string) error
	// TransitionStatus applies the transition only while the purchase is in
	// the from status and reports whether the row was updated.
	TransitionStatus(ctx context.Context, id string, from, to domain.PurchaseStatus) (bool, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Purchase, error)
}
