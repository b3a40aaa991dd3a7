package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus enumerates purchase lifecycle states. PENDING is the only
// state from which a confirmation or release may transition the record.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "PENDING"
	PurchaseCompleted PurchaseStatus = "COMPLETED"
	PurchaseFailed    PurchaseStatus = "FAILED"
	PurchaseCancelled PurchaseStatus = "CANCELLED"
)

// Terminal reports whether the purchase can no longer transition.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseCompleted || s == PurchaseFailed || s == PurchaseCancelled
}

// Purchase captures a buyer's commitment to a listing ahead of external
// payment confirmation. Amounts are fixed-point with two decimal places.
type Purchase struct {
	ID                string
	ListingID         string
	BuyerID           string
	SellerID          string
	EventID           string
	TicketID          string
	Subtotal          decimal.Decimal
	Fee               decimal.Decimal
	Total             decimal.Decimal
	Status            PurchaseStatus
	CheckoutSessionID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CheckoutIntent describes the totals handed to the payment gateway after a
// successful claim.
type CheckoutIntent struct {
	PurchaseID  string
	ListingID   string
	EventID     string
	TicketID    string
	BuyerID     string
	SellerID    string
	Subtotal    decimal.Decimal
	Fee         decimal.Decimal
	Total       decimal.Decimal
	RedirectURL string
	ExpiresAt   time.Time
}
