package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs market.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"email":         event.Email,
		"role":          event.Role,
		"registered_at": event.RegisteredAt,
		"method":        event.Method,
	}
	p.logEvent("market.user.registered", event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishSessionRevoked logs market.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"reason":     event.Reason,
		"revoked_at": event.RevokedAt,
	}
	p.logEvent("market.session.revoked", event.UserID, event.RevokedAt, payload)
	return nil
}

// PublishListingSold logs market.listing.sold events.
func (p *StubPublisher) PublishListingSold(_ context.Context, event domain.ListingSoldEvent) error {
	payload := map[string]any{
		"listing_id":  event.ListingID,
		"ticket_id":   event.TicketID,
		"seller_id":   event.SellerID,
		"buyer_id":    event.BuyerID,
		"purchase_id": event.PurchaseID,
		"sold_at":     event.SoldAt,
	}
	p.logEvent("market.listing.sold", event.BuyerID, event.SoldAt, payload)
	return nil
}

// PublishListingReleased logs market.listing.released events.
func (p *StubPublisher) PublishListingReleased(_ context.Context, event domain.ListingReleasedEvent) error {
	payload := map[string]any{
		"listing_id":  event.ListingID,
		"purchase_id": event.PurchaseID,
		"reason":      event.Reason,
		"released_at": event.ReleasedAt,
	}
	p.logEvent("market.listing.released", "", event.ReleasedAt, payload)
	return nil
}

// PublishPurchaseCreated logs market.purchase.created events.
func (p *StubPublisher) PublishPurchaseCreated(_ context.Context, event domain.PurchaseCreatedEvent) error {
	payload := map[string]any{
		"purchase_id": event.PurchaseID,
		"listing_id":  event.ListingID,
		"buyer_id":    event.BuyerID,
		"total":       event.Total,
		"created_at":  event.CreatedAt,
	}
	p.logEvent("market.purchase.created", event.BuyerID, event.CreatedAt, payload)
	return nil
}

// PublishPurchaseCompleted logs market.purchase.completed events.
func (p *StubPublisher) PublishPurchaseCompleted(_ context.Context, event domain.PurchaseCompletedEvent) error {
	payload := map[string]any{
		"purchase_id":  event.PurchaseID,
		"listing_id":   event.ListingID,
		"buyer_id":     event.BuyerID,
		"completed_at": event.CompletedAt,
	}
	p.logEvent("market.purchase.completed", event.BuyerID, event.CompletedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
