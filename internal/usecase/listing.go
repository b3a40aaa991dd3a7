package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/repository"
)

var (
	// ErrListingNotFound indicates the listing does not exist.
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingNotActive indicates the listing is no longer purchasable or cancellable.
	ErrListingNotActive = errors.New("listing is not active")
	// ErrListingForbidden indicates the caller is not the seller.
	ErrListingForbidden = errors.New("listing belongs to another seller")
	// ErrRoleForbidden indicates the caller's role lacks the capability.
	ErrRoleForbidden = errors.New("role does not permit this action")
	// ErrInvalidPrice indicates a non-positive listing price.
	ErrInvalidPrice = errors.New("price must be positive")
)

// ListingService manages the resale listing lifecycle. Expiry is lazy: an
// ACTIVE listing whose deadline has passed is flipped to EXPIRED on the next
// read instead of by a background sweeper.
type ListingService struct {
	listings  port.ListingRepository
	publisher port.EventPublisher
	now       func() time.Time
}

// NewListingService constructs a ListingService.
func NewListingService(listings port.ListingRepository, publisher port.EventPublisher) *ListingService {
	return &ListingService{
		listings:  listings,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *ListingService) WithClock(now func() time.Time) *ListingService {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateListing opens a new ACTIVE listing for the seller's ticket.
func (s *ListingService) CreateListing(ctx context.Context, sellerID string, sellerRole domain.Role, ticketID, eventID string, price decimal.Decimal, expiresAt *time.Time) (*domain.ResaleListing, error) {
	if sellerID == "" {
		return nil, fmt.Errorf("seller id is required")
	}
	if ticketID == "" {
		return nil, fmt.Errorf("ticket id is required")
	}
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	if !sellerRole.Can(domain.CapCreateListing) {
		return nil, ErrRoleForbidden
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}

	now := s.now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, fmt.Errorf("expiry must be in the future")
	}

	listing := domain.ResaleListing{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		SellerID:  sellerID,
		EventID:   eventID,
		Price:     price.Round(2),
		Status:    domain.ListingActive,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	return &listing, nil
}

// GetListing returns the listing, applying lazy expiry first.
func (s *ListingService) GetListing(ctx context.Context, id string) (*domain.ResaleListing, error) {
	if id == "" {
		return nil, fmt.Errorf("listing id is required")
	}

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	return s.applyLazyExpiry(ctx, listing)
}

// ListByEvent returns listings for an event, optionally filtered by status.
// Lazy expiry applies to each returned row.
func (s *ListingService) ListByEvent(ctx context.Context, eventID string, status *domain.ListingStatus) ([]domain.ResaleListing, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}

	listings, err := s.listings.ListByEvent(ctx, eventID, status)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	result := make([]domain.ResaleListing, 0, len(listings))
	for i := range listings {
		updated, err := s.applyLazyExpiry(ctx, &listings[i])
		if err != nil {
			return nil, err
		}
		// A filtered query must not return rows that just left the
		// requested status.
		if status != nil && updated.Status != *status {
			continue
		}
		result = append(result, *updated)
	}

	return result, nil
}

// ListBySeller returns the seller's listings with lazy expiry applied.
func (s *ListingService) ListBySeller(ctx context.Context, sellerID string) ([]domain.ResaleListing, error) {
	if sellerID == "" {
		return nil, fmt.Errorf("seller id is required")
	}

	listings, err := s.listings.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	for i := range listings {
		updated, err := s.applyLazyExpiry(ctx, &listings[i])
		if err != nil {
			return nil, err
		}
		listings[i] = *updated
	}

	return listings, nil
}

// CancelListing moves an ACTIVE listing to CANCELLED. Only the seller may
// cancel, and a listing that already left ACTIVE stays as it is.
func (s *ListingService) CancelListing(ctx context.Context, id, sellerID string) (*domain.ResaleListing, error) {
	listing, err := s.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}

	if listing.SellerID != sellerID {
		return nil, ErrListingForbidden
	}
	if listing.Status != domain.ListingActive {
		return nil, ErrListingNotActive
	}

	won, err := s.listings.TransitionStatus(ctx, id, domain.ListingActive, domain.ListingCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel listing: %w", err)
	}
	if !won {
		// Lost to a concurrent purchase or expiry.
		return nil, ErrListingNotActive
	}

	listing.Status = domain.ListingCancelled
	listing.UpdatedAt = s.now()

	return listing, nil
}

// applyLazyExpiry persists the ACTIVE->EXPIRED transition when the deadline
// has passed. Losing the conditional update means another writer already
// moved the listing, so the fresh row is re-read.
func (s *ListingService) applyLazyExpiry(ctx context.Context, listing *domain.ResaleListing) (*domain.ResaleListing, error) {
	now := s.now()
	if !listing.ExpiredBy(now) {
		return listing, nil
	}

	won, err := s.listings.TransitionStatus(ctx, listing.ID, domain.ListingActive, domain.ListingExpired)
	if err != nil {
		return nil, fmt.Errorf("expire listing: %w", err)
	}

	if won {
		listing.Status = domain.ListingExpired
		listing.UpdatedAt = now
		return listing, nil
	}

	fresh, err := s.listings.GetByID(ctx, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("reload listing: %w", err)
	}

	return fresh, nil
}
