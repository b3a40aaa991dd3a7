package domain

import "time"

// UserRegisteredEvent is published when a new account is created.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        *string
	Role         string
	RegisteredAt time.Time
	Method       string
}

// SessionRevokedEvent is published when a session ledger entry is invalidated.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	UserID    string
	Reason    string
	RevokedAt time.Time
}

// ListingSoldEvent is published when the atomic claim succeeds.
type ListingSoldEvent struct {
	EventID    string
	ListingID  string
	TicketID   string
	SellerID   string
	BuyerID    string
	PurchaseID string
	SoldAt     time.Time
}

// ListingReleasedEvent is published when a claimed listing returns to ACTIVE
// after its checkout session expired or was cancelled.
type ListingReleasedEvent struct {
	EventID    string
	ListingID  string
	PurchaseID string
	Reason     string
	ReleasedAt time.Time
}

// PurchaseCreatedEvent is published when a PENDING purchase row is created.
type PurchaseCreatedEvent struct {
	EventID    string
	PurchaseID string
	ListingID  string
	BuyerID    string
	Total      string
	CreatedAt  time.Time
}

// PurchaseCompletedEvent is published when payment confirmation lands.
type PurchaseCompletedEvent struct {
	EventID     string
	PurchaseID  string
	ListingID   string
	BuyerID     string
	CompletedAt time.Time
}
