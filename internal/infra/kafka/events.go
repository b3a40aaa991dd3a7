package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes market.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Email        *string   `json:"email,omitempty"`
		Role         string    `json:"role"`
		RegisteredAt time.Time `json:"registered_at"`
		Method       string    `json:"method"`
	}{
		UserID:       event.UserID,
		Email:        event.Email,
		Role:         event.Role,
		RegisteredAt: event.RegisteredAt.UTC(),
		Method:       event.Method,
	}

	return p.publish(ctx, event.EventID, "market.user.registered", event.UserID, event.RegisteredAt, payload)
}

// PublishSessionRevoked publishes market.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		UserID    string    `json:"user_id"`
		Reason    string    `json:"reason"`
		RevokedAt time.Time `json:"revoked_at"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		Reason:    event.Reason,
		RevokedAt: event.RevokedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "market.session.revoked", event.UserID, event.RevokedAt, payload)
}

// PublishListingSold publishes market.listing.sold events.
func (p *EventPublisher) PublishListingSold(ctx context.Context, event domain.ListingSoldEvent) error {
	payload := struct {
		ListingID  string    `json:"listing_id"`
		TicketID   string    `json:"ticket_id"`
		SellerID   string    `json:"seller_id"`
		BuyerID    string    `json:"buyer_id"`
		PurchaseID string    `json:"purchase_id"`
		SoldAt     time.Time `json:"sold_at"`
	}{
		ListingID:  event.ListingID,
		TicketID:   event.TicketID,
		SellerID:   event.SellerID,
		BuyerID:    event.BuyerID,
		PurchaseID: event.PurchaseID,
		SoldAt:     event.SoldAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "market.listing.sold", event.BuyerID, event.SoldAt, payload)
}

// PublishListingReleased publishes market.listing.released events.
func (p *EventPublisher) PublishListingReleased(ctx context.Context, event domain.ListingReleasedEvent) error {
	payload := struct {
		ListingID  string    `json:"listing_id"`
		PurchaseID string    `json:"purchase_id"`
		Reason     string    `json:"reason"`
		ReleasedAt time.Time `json:"released_at"`
	}{
		ListingID:  event.ListingID,
		PurchaseID: event.PurchaseID,
		Reason:     event.Reason,
		ReleasedAt: event.ReleasedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "market.listing.released", "", event.ReleasedAt, payload)
}

// PublishPurchaseCreated publishes market.purchase.created events.
func (p *EventPublisher) PublishPurchaseCreated(ctx context.Context, event domain.PurchaseCreatedEvent) error {
	payload := struct {
		PurchaseID string    `json:"purchase_id"`
		ListingID  string    `json:"listing_id"`
		BuyerID    string    `json:"buyer_id"`
		Total      string    `json:"total"`
		CreatedAt  time.Time `json:"created_at"`
	}{
		PurchaseID: event.PurchaseID,
		ListingID:  event.ListingID,
		BuyerID:    event.BuyerID,
		Total:      event.Total,
		CreatedAt:  event.CreatedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "market.purchase.created", event.BuyerID, event.CreatedAt, payload)
}

// PublishPurchaseCompleted publishes market.purchase.completed events.
func (p *EventPublisher) PublishPurchaseCompleted(ctx context.Context, event domain.PurchaseCompletedEvent) error {
	payload := struct {
		PurchaseID  string    `json:"purchase_id"`
		ListingID   string    `json:"listing_id"`
		BuyerID     string    `json:"buyer_id"`
		CompletedAt time.Time `json:"completed_at"`
	}{
		PurchaseID:  event.PurchaseID,
		ListingID:   event.ListingID,
		BuyerID:     event.BuyerID,
		CompletedAt: event.CompletedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "market.purchase.completed", event.BuyerID, event.CompletedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
