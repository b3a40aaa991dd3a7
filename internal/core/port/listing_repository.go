package port

import (
	"context"

	"github.com/stagepass/marketplace/internal/core/domain"
)

// ListingRepository persists resale listings. All status transitions are
// conditional updates guarded on the current status so that concurrent
// writers cannot both observe ACTIVE.
type ListingRepository interface {
	Create(ctx context.Context, listing domain.ResaleListing) error
	GetByID(ctx context.Context, id string) (*domain.ResaleListing, error)
	ListByEvent(ctx context.Context, eventID string, status *domain.ListingStatus) ([]domain.ResaleListing, error)
	ListBySeller(ctx context.Context, sellerID string) ([]domain.ResaleListing, error)
	// TransitionStatus applies "SET status=to WHERE id=$1 AND status=from"
	// and reports whether the row was won. A false return with a nil error
	// means another writer already moved the listing.
	TransitionStatus(ctx context.Context, id string, from, to domain.ListingStatus) (bool, error)
	// ClaimWithPurchase atomically transitions the listing ACTIVE->SOLD and
	// inserts the purchase row in a single transaction. Returns
	// repository.ErrConflict when the listing is no longer ACTIVE.
	ClaimWithPurchase(ctx context.Context, listingID string, purchase domain.Purchase) error
	// ReleaseWithPurchase atomically returns the listing SOLD->ACTIVE and
	// cancels the still-PENDING purchase in a single transaction.
	ReleaseWithPurchase(ctx context.Context, listingID, purchaseID string) error
}
