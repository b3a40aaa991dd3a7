package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus enumerates resale listing lifecycle states. SOLD, EXPIRED and
// CANCELLED are terminal.
type ListingStatus string

const (
	ListingActive    ListingStatus = "ACTIVE"
	ListingSold      ListingStatus = "SOLD"
	ListingExpired   ListingStatus = "EXPIRED"
	ListingCancelled ListingStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s ListingStatus) Terminal() bool {
	return s == ListingSold || s == ListingExpired || s == ListingCancelled
}

// ResaleListing is a seller's offer to resell exactly one ticket.
type ResaleListing struct {
	ID        string
	TicketID  string
	SellerID  string
	EventID   string
	Price     decimal.Decimal
	Status    ListingStatus
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpiredBy reports whether an ACTIVE listing's expiry has passed at now.
func (l *ResaleListing) ExpiredBy(now time.Time) bool {
	return l.Status == ListingActive && l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
