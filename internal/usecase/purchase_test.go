package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/infra/config"
)

type purchaseFixture struct {
	listings  *memListingRepo
	purchases *memPurchaseRepo
	gateway   *stubGateway
	publisher *recordingPublisher
	svc       *PurchaseService
}

func newPurchaseFixture(t *testing.T) *purchaseFixture {
	t.Helper()

	purchases := newMemPurchaseRepo()
	listings := newMemListingRepo(purchases)
	gateway := &stubGateway{}
	publisher := newRecordingPublisher()

	listingSvc := NewListingService(listings, publisher)
	svc := NewPurchaseService(listings, purchases, gateway, newTestFeeEngine(t), publisher, listingSvc, config.PaymentsSettings{
		SuccessURL:  "https://shop.example.test/success",
		CancelURL:   "https://shop.example.test/cancel",
		CheckoutTTL: 30 * time.Minute,
	})

	return &purchaseFixture{
		listings:  listings,
		purchases: purchases,
		gateway:   gateway,
		publisher: publisher,
		svc:       svc,
	}
}

func (f *purchaseFixture) seedActiveListing(t *testing.T, id string) domain.ResaleListing {
	t.Helper()

	return seedListing(t, f.listings, domain.ResaleListing{
		ID:       id,
		TicketID: "ticket-" + id,
		SellerID: "seller-1",
		EventID:  "event-1",
		Price:    decimal.RequireFromString("100.00"),
	})
}

func TestInitiatePurchase(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	intent, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-1", domain.RoleBuyer)
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}

	if intent.Subtotal.StringFixed(2) != "100.00" {
		t.Errorf("subtotal: expected 100.00, got %s", intent.Subtotal.StringFixed(2))
	}
	if intent.Fee.StringFixed(2) != "10.00" {
		t.Errorf("fee: expected 10.00, got %s", intent.Fee.StringFixed(2))
	}
	if intent.Total.StringFixed(2) != "110.00" {
		t.Errorf("total: expected 110.00, got %s", intent.Total.StringFixed(2))
	}
	if intent.RedirectURL == "" {
		t.Error("expected a checkout redirect URL")
	}

	listing, err := f.listings.GetByID(context.Background(), "listing-1")
	if err != nil {
		t.Fatalf("reload listing: %v", err)
	}
	if listing.Status != domain.ListingSold {
		t.Fatalf("claimed listing must be SOLD, got %s", listing.Status)
	}

	purchase, err := f.purchases.GetByID(context.Background(), intent.PurchaseID)
	if err != nil {
		t.Fatalf("reload purchase: %v", err)
	}
	if purchase.Status != domain.PurchasePending {
		t.Fatalf("purchase must start PENDING, got %s", purchase.Status)
	}
	if purchase.CheckoutSessionID == nil {
		t.Fatal("purchase must reference its checkout session")
	}

	if f.publisher.count("purchase.created") != 1 {
		t.Errorf("expected one purchase.created event, got %d", f.publisher.count("purchase.created"))
	}
	if f.publisher.count("listing.sold") != 1 {
		t.Errorf("expected one listing.sold event, got %d", f.publisher.count("listing.sold"))
	}
}

func TestInitiatePurchaseRejectsSelfPurchase(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	_, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "seller-1", domain.RoleBuyer)
	if !errors.Is(err, ErrSelfPurchase) {
		t.Fatalf("expected ErrSelfPurchase, got %v", err)
	}
}

func TestInitiatePurchaseRejectsRoleWithoutCapability(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	_, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-1", domain.RoleStaff)
	if !errors.Is(err, ErrRoleForbidden) {
		t.Fatalf("expected ErrRoleForbidden, got %v", err)
	}
}

func TestInitiatePurchaseMissingListing(t *testing.T) {
	f := newPurchaseFixture(t)

	_, err := f.svc.InitiatePurchase(context.Background(), "no-such-listing", "buyer-1", domain.RoleBuyer)
	if !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestInitiatePurchaseExpiredListing(t *testing.T) {
	f := newPurchaseFixture(t)

	past := time.Now().UTC().Add(-time.Minute)
	seedListing(t, f.listings, domain.ResaleListing{
		ID:        "listing-stale",
		SellerID:  "seller-1",
		EventID:   "event-1",
		Price:     decimal.RequireFromString("100.00"),
		ExpiresAt: &past,
	})

	_, err := f.svc.InitiatePurchase(context.Background(), "listing-stale", "buyer-1", domain.RoleBuyer)
	if !errors.Is(err, ErrListingNotActive) {
		t.Fatalf("expected ErrListingNotActive for expired listing, got %v", err)
	}
}

func TestInitiatePurchaseSecondBuyerLoses(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	if _, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-1", domain.RoleBuyer); err != nil {
		t.Fatalf("first purchase: %v", err)
	}

	_, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-2", domain.RoleBuyer)
	if !errors.Is(err, ErrListingNotActive) && !errors.Is(err, ErrListingClaimed) {
		t.Fatalf("second buyer must be refused, got %v", err)
	}
}

func TestInitiatePurchaseConcurrentBuyersSingleWinner(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	const buyers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start

			buyerID := "buyer-" + string(rune('a'+n))
			_, err := f.svc.InitiatePurchase(context.Background(), "listing-1", buyerID, domain.RoleBuyer)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrListingClaimed) && !errors.Is(err, ErrListingNotActive) {
				t.Errorf("unexpected error for losing buyer: %v", err)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("exactly one buyer must win the claim, got %d", winners)
	}
}

func TestInitiatePurchaseGatewayFailureReleasesListing(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")
	f.gateway.fail = true

	_, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-1", domain.RoleBuyer)
	if !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}

	listing, err := f.listings.GetByID(context.Background(), "listing-1")
	if err != nil {
		t.Fatalf("reload listing: %v", err)
	}
	if listing.Status != domain.ListingActive {
		t.Fatalf("listing must return to ACTIVE after gateway failure, got %s", listing.Status)
	}

	// A second buyer can now claim it.
	f.gateway.fail = false
	if _, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-2", domain.RoleBuyer); err != nil {
		t.Fatalf("second purchase after release: %v", err)
	}
}

func TestConfirmPurchase(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	intent, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-1", domain.RoleBuyer)
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}

	stored, err := f.purchases.GetByID(context.Background(), intent.PurchaseID)
	if err != nil {
		t.Fatalf("reload purchase: %v", err)
	}

	confirmed, err := f.svc.ConfirmPurchase(context.Background(), *stored.CheckoutSessionID)
	if err != nil {
		t.Fatalf("confirm purchase: %v", err)
	}
	if confirmed.Status != domain.PurchaseCompleted {
		t.Fatalf("expected COMPLETED, got %s", confirmed.Status)
	}
	if f.publisher.count("purchase.completed") != 1 {
		t.Errorf("expected one purchase.completed event, got %d", f.publisher.count("purchase.completed"))
	}
}

func TestConfirmPurchaseIdempotent(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	intent, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-1", domain.RoleBuyer)
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}

	stored, err := f.purchases.GetByID(context.Background(), intent.PurchaseID)
	if err != nil {
		t.Fatalf("reload purchase: %v", err)
	}
	sessionID := *stored.CheckoutSessionID

	if _, err := f.svc.ConfirmPurchase(context.Background(), sessionID); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	// Webhook redelivery: same session, no state change, no extra event.
	confirmed, err := f.svc.ConfirmPurchase(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if confirmed.Status != domain.PurchaseCompleted {
		t.Fatalf("expected COMPLETED, got %s", confirmed.Status)
	}
	if f.publisher.count("purchase.completed") != 1 {
		t.Fatalf("redelivery must not publish again, got %d events", f.publisher.count("purchase.completed"))
	}
}

func TestConfirmPurchaseUnknownSession(t *testing.T) {
	f := newPurchaseFixture(t)

	_, err := f.svc.ConfirmPurchase(context.Background(), "cs_unknown")
	if !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("expected ErrPurchaseNotFound, got %v", err)
	}
}

func TestReleasePurchaseReopensListing(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	intent, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-1", domain.RoleBuyer)
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}

	if err := f.svc.ReleasePurchase(context.Background(), intent.PurchaseID, "checkout.expired"); err != nil {
		t.Fatalf("release purchase: %v", err)
	}

	listing, err := f.listings.GetByID(context.Background(), "listing-1")
	if err != nil {
		t.Fatalf("reload listing: %v", err)
	}
	if listing.Status != domain.ListingActive {
		t.Fatalf("released listing must be ACTIVE, got %s", listing.Status)
	}

	purchase, err := f.purchases.GetByID(context.Background(), intent.PurchaseID)
	if err != nil {
		t.Fatalf("reload purchase: %v", err)
	}
	if purchase.Status != domain.PurchaseCancelled {
		t.Fatalf("released purchase must be CANCELLED, got %s", purchase.Status)
	}
}

func TestReleasePurchaseAfterSettlementIsNoOp(t *testing.T) {
	f := newPurchaseFixture(t)
	f.seedActiveListing(t, "listing-1")

	intent, err := f.svc.InitiatePurchase(context.Background(), "listing-1", "buyer-1", domain.RoleBuyer)
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}

	stored, err := f.purchases.GetByID(context.Background(), intent.PurchaseID)
	if err != nil {
		t.Fatalf("reload purchase: %v", err)
	}
	if _, err := f.svc.ConfirmPurchase(context.Background(), *stored.CheckoutSessionID); err != nil {
		t.Fatalf("confirm purchase: %v", err)
	}

	if err := f.svc.ReleasePurchase(context.Background(), intent.PurchaseID, "checkout.expired"); err != nil {
		t.Fatalf("release after settlement must be a no-op, got %v", err)
	}

	listing, err := f.listings.GetByID(context.Background(), "listing-1")
	if err != nil {
		t.Fatalf("reload listing: %v", err)
	}
	if listing.Status != domain.ListingSold {
		t.Fatalf("settled listing must stay SOLD, got %s", listing.Status)
	}
}
