package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutLineItem describes one billable line on a checkout session.
type CheckoutLineItem struct {
	Name     string
	Amount   decimal.Decimal
	Quantity int
}

// CheckoutSessionRequest carries everything the gateway needs to build a
// redirectable checkout session.
type CheckoutSessionRequest struct {
	LineItems  []CheckoutLineItem
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
	ExpiresAt  time.Time
}

// CheckoutSession is the gateway's opaque handle for a created session.
type CheckoutSession struct {
	ID          string
	RedirectURL string
}

// PaymentGateway creates hosted checkout sessions. The gateway is opaque:
// failures surface as a single external-service error.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
}
