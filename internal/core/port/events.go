package port

import (
	"context"

	"github.com/stagepass/marketplace/internal/core/domain"
)

// EventPublisher emits domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishListingSold(ctx context.Context, event domain.ListingSoldEvent) error
	PublishListingReleased(ctx context.Context, event domain.ListingReleasedEvent) error
	PublishPurchaseCreated(ctx context.Context, event domain.PurchaseCreatedEvent) error
	PublishPurchaseCompleted(ctx context.Context, event domain.PurchaseCompletedEvent) error
}
