package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/infra/config"
	"github.com/stagepass/marketplace/internal/repository"
)

var (
	// ErrSelfPurchase indicates a seller tried to buy their own listing.
	ErrSelfPurchase = errors.New("cannot purchase own listing")
	// ErrListingClaimed indicates another buyer won the listing first.
	ErrListingClaimed = errors.New("listing already claimed")
	// ErrPurchaseNotFound indicates the purchase does not exist.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrCheckoutUnavailable indicates the payment gateway rejected or failed
	// the session request; the claim has been rolled back.
	ErrCheckoutUnavailable = errors.New("checkout unavailable")
)

// PurchaseService orchestrates the buy flow: claim the listing, price the
// order, open a checkout session, and settle or unwind on the gateway's
// verdict. The claim itself is a single transaction, so two concurrent
// buyers can never both hold the same listing.
type PurchaseService struct {
	listings   port.ListingRepository
	purchases  port.PurchaseRepository
	gateway    port.PaymentGateway
	fees       *FeeEngine
	publisher  port.EventPublisher
	listingSvc *ListingService
	payCfg     config.PaymentsSettings
	now        func() time.Time
}

// NewPurchaseService constructs a PurchaseService.
func NewPurchaseService(
	listings port.ListingRepository,
	purchases port.PurchaseRepository,
	gateway port.PaymentGateway,
	fees *FeeEngine,
	publisher port.EventPublisher,
	listingSvc *ListingService,
	payCfg config.PaymentsSettings,
) *PurchaseService {
	return &PurchaseService{
		listings:   listings,
		purchases:  purchases,
		gateway:    gateway,
		fees:       fees,
		publisher:  publisher,
		listingSvc: listingSvc,
		payCfg:     payCfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *PurchaseService) WithClock(now func() time.Time) *PurchaseService {
	if now != nil {
		s.now = now
	}
	return s
}

// InitiatePurchase claims the listing for the buyer and opens a checkout
// session. Validation runs in a fixed order so callers always get the most
// specific refusal: existence, expiry, status, self-purchase, role.
func (s *PurchaseService) InitiatePurchase(ctx context.Context, listingID, buyerID string, buyerRole domain.Role) (*domain.CheckoutIntent, error) {
	if listingID == "" {
		return nil, fmt.Errorf("listing id is required")
	}
	if buyerID == "" {
		return nil, fmt.Errorf("buyer id is required")
	}

	listing, err := s.listingSvc.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Status != domain.ListingActive {
		return nil, ErrListingNotActive
	}
	if listing.SellerID == buyerID {
		return nil, ErrSelfPurchase
	}
	if !buyerRole.Can(domain.CapPurchaseListing) {
		return nil, ErrRoleForbidden
	}

	breakdown, err := s.fees.CalculateFees(listing.Price)
	if err != nil {
		return nil, err
	}

	now := s.now()
	purchase := domain.Purchase{
		ID:        uuid.NewString(),
		ListingID: listing.ID,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		EventID:   listing.EventID,
		TicketID:  listing.TicketID,
		Subtotal:  breakdown.Subtotal,
		Fee:       breakdown.Fee,
		Total:     breakdown.Total,
		Status:    domain.PurchasePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.listings.ClaimWithPurchase(ctx, listing.ID, purchase); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrListingClaimed
		}
		return nil, fmt.Errorf("claim listing: %w", err)
	}

	s.publishPurchaseCreated(ctx, purchase)

	checkoutTTL := s.payCfg.CheckoutTTL
	if checkoutTTL <= 0 {
		checkoutTTL = 30 * time.Minute
	}
	checkoutExpiry := now.Add(checkoutTTL)

	session, err := s.gateway.CreateCheckoutSession(ctx, port.CheckoutSessionRequest{
		LineItems: []port.CheckoutLineItem{
			{Name: "Resale ticket", Amount: purchase.Subtotal, Quantity: 1},
			{Name: "Service fee", Amount: purchase.Fee, Quantity: 1},
		},
		SuccessURL: s.payCfg.SuccessURL,
		CancelURL:  s.payCfg.CancelURL,
		Metadata: map[string]string{
			"purchase_id": purchase.ID,
			"listing_id":  listing.ID,
		},
		ExpiresAt: checkoutExpiry,
	})
	if err != nil {
		// The buyer cannot pay, so the claim is unwound before surfacing
		// the gateway failure.
		if releaseErr := s.release(ctx, listing.ID, purchase.ID, "checkout failed"); releaseErr != nil {
			return nil, fmt.Errorf("release after checkout failure: %w", releaseErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrCheckoutUnavailable, err.Error())
	}

	if err := s.purchases.SetCheckoutSession(ctx, purchase.ID, session.ID); err != nil {
		return nil, fmt.Errorf("attach checkout session: %w", err)
	}

	s.publishListingSold(ctx, *listing, purchase)

	return &domain.CheckoutIntent{
		PurchaseID:  purchase.ID,
		ListingID:   listing.ID,
		EventID:     listing.EventID,
		TicketID:    listing.TicketID,
		BuyerID:     buyerID,
		SellerID:    listing.SellerID,
		Subtotal:    purchase.Subtotal,
		Fee:         purchase.Fee,
		Total:       purchase.Total,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   checkoutExpiry,
	}, nil
}

// ConfirmPurchase settles the purchase tied to a checkout session after the
// gateway reports payment. Confirming an already settled purchase is an
// idempotent no-op, so webhook redeliveries are harmless.
func (s *PurchaseService) ConfirmPurchase(ctx context.Context, checkoutSessionID string) (*domain.Purchase, error) {
	if checkoutSessionID == "" {
		return nil, fmt.Errorf("checkout session id is required")
	}

	purchase, err := s.purchases.GetByCheckoutSessionID(ctx, checkoutSessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("fetch purchase: %w", err)
	}

	if purchase.Status.Terminal() {
		return purchase, nil
	}

	won, err := s.purchases.TransitionStatus(ctx, purchase.ID, domain.PurchasePending, domain.PurchaseCompleted)
	if err != nil {
		return nil, fmt.Errorf("complete purchase: %w", err)
	}
	if !won {
		fresh, err := s.purchases.GetByID(ctx, purchase.ID)
		if err != nil {
			return nil, fmt.Errorf("reload purchase: %w", err)
		}
		return fresh, nil
	}

	purchase.Status = domain.PurchaseCompleted
	purchase.UpdatedAt = s.now()

	if s.publisher != nil {
		_ = s.publisher.PublishPurchaseCompleted(ctx, domain.PurchaseCompletedEvent{
			EventID:     uuid.NewString(),
			PurchaseID:  purchase.ID,
			ListingID:   purchase.ListingID,
			BuyerID:     purchase.BuyerID,
			CompletedAt: purchase.UpdatedAt,
		})
	}

	return purchase, nil
}

// ReleasePurchase unwinds a PENDING purchase whose checkout expired or was
// cancelled: the purchase moves to CANCELLED and the listing returns to
// ACTIVE in one transaction. A purchase that already settled is left alone.
func (s *PurchaseService) ReleasePurchase(ctx context.Context, purchaseID, reason string) error {
	if purchaseID == "" {
		return fmt.Errorf("purchase id is required")
	}

	purchase, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPurchaseNotFound
		}
		return fmt.Errorf("fetch purchase: %w", err)
	}

	if purchase.Status.Terminal() {
		return nil
	}

	return s.release(ctx, purchase.ListingID, purchase.ID, reason)
}

// GetPurchase returns a purchase by identifier.
func (s *PurchaseService) GetPurchase(ctx context.Context, purchaseID string) (*domain.Purchase, error) {
	if purchaseID == "" {
		return nil, fmt.Errorf("purchase id is required")
	}

	purchase, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("fetch purchase: %w", err)
	}

	return purchase, nil
}

// GetPurchaseByCheckoutSession returns the purchase tied to a gateway session.
func (s *PurchaseService) GetPurchaseByCheckoutSession(ctx context.Context, checkoutSessionID string) (*domain.Purchase, error) {
	if checkoutSessionID == "" {
		return nil, fmt.Errorf("checkout session id is required")
	}

	purchase, err := s.purchases.GetByCheckoutSessionID(ctx, checkoutSessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("fetch purchase: %w", err)
	}

	return purchase, nil
}

// ListPurchases returns the buyer's purchases, newest first.
func (s *PurchaseService) ListPurchases(ctx context.Context, buyerID string) ([]domain.Purchase, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("buyer id is required")
	}

	purchases, err := s.purchases.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}

	return purchases, nil
}

func (s *PurchaseService) release(ctx context.Context, listingID, purchaseID, reason string) error {
	if err := s.listings.ReleaseWithPurchase(ctx, listingID, purchaseID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// The purchase settled or the listing moved on concurrently.
			return nil
		}
		return fmt.Errorf("release listing: %w", err)
	}

	if s.publisher != nil {
		_ = s.publisher.PublishListingReleased(ctx, domain.ListingReleasedEvent{
			EventID:    uuid.NewString(),
			ListingID:  listingID,
			PurchaseID: purchaseID,
			Reason:     reason,
			ReleasedAt: s.now(),
		})
	}

	return nil
}

func (s *PurchaseService) publishPurchaseCreated(ctx context.Context, purchase domain.Purchase) {
	if s.publisher == nil {
		return
	}

	_ = s.publisher.PublishPurchaseCreated(ctx, domain.PurchaseCreatedEvent{
		EventID:    uuid.NewString(),
		PurchaseID: purchase.ID,
		ListingID:  purchase.ListingID,
		BuyerID:    purchase.BuyerID,
		Total:      purchase.Total.StringFixed(2),
		CreatedAt:  purchase.CreatedAt,
	})
}

func (s *PurchaseService) publishListingSold(ctx context.Context, listing domain.ResaleListing, purchase domain.Purchase) {
	if s.publisher == nil {
		return
	}

	_ = s.publisher.PublishListingSold(ctx, domain.ListingSoldEvent{
		EventID:    uuid.NewString(),
		ListingID:  listing.ID,
		TicketID:   listing.TicketID,
		SellerID:   listing.SellerID,
		BuyerID:    purchase.BuyerID,
		PurchaseID: purchase.ID,
		SoldAt:     purchase.CreatedAt,
	})
}
