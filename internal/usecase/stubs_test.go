package usecase

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/repository"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]domain.User)}
}

func (r *memUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email != nil && user.Email != nil && *existing.Email == *user.Email {
			return repository.ErrDuplicate
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[id]; ok {
		copied := user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Email != nil && *user.Email == email {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	r.users[userID] = user
	return nil
}

func (r *memUserRepo) SetResetToken(_ context.Context, userID string, hash *string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.ResetTokenHash = hash
	user.ResetTokenExpiresAt = expiresAt
	r.users[userID] = user
	return nil
}

func (r *memUserRepo) GetByResetTokenHash(_ context.Context, hash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == hash {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) MarkEmailVerified(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailVerified = true
	r.users[userID] = user
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session
	return nil
}

func (r *memSessionRepo) GetByTokenHash(_ context.Context, hash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.sessions {
		if session.TokenHash == hash {
			copied := session
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[id]; ok {
		copied := session
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memSessionRepo) ListByUser(_ context.Context, userID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Session
	for _, session := range r.sessions {
		if session.UserID == userID {
			result = append(result, session)
		}
	}
	return result, nil
}

func (r *memSessionRepo) Invalidate(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.IsValid = false
	r.sessions[sessionID] = session
	return nil
}

func (r *memSessionRepo) InvalidateAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, session := range r.sessions {
		if session.UserID == userID && session.IsValid {
			session.IsValid = false
			r.sessions[id] = session
			count++
		}
	}
	return count, nil
}

type memPurchaseRepo struct {
	mu        sync.Mutex
	purchases map[string]domain.Purchase
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{purchases: make(map[string]domain.Purchase)}
}

func (r *memPurchaseRepo) GetByID(_ context.Context, id string) (*domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if purchase, ok := r.purchases[id]; ok {
		copied := purchase
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memPurchaseRepo) GetByCheckoutSessionID(_ context.Context, sessionID string) (*domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, purchase := range r.purchases {
		if purchase.CheckoutSessionID != nil && *purchase.CheckoutSessionID == sessionID {
			copied := purchase
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memPurchaseRepo) SetCheckoutSession(_ context.Context, purchaseID, checkoutSessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	purchase, ok := r.purchases[purchaseID]
	if !ok {
		return repository.ErrNotFound
	}
	purchase.CheckoutSessionID = &checkoutSessionID
	r.purchases[purchaseID] = purchase
	return nil
}

func (r *memPurchaseRepo) TransitionStatus(_ context.Context, id string, from, to domain.PurchaseStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purchase, ok := r.purchases[id]
	if !ok || purchase.Status != from {
		return false, nil
	}
	purchase.Status = to
	r.purchases[id] = purchase
	return true, nil
}

func (r *memPurchaseRepo) ListByBuyer(_ context.Context, buyerID string) ([]domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Purchase
	for _, purchase := range r.purchases {
		if purchase.BuyerID == buyerID {
			result = append(result, purchase)
		}
	}
	return result, nil
}

// memListingRepo mirrors the transactional guarantees of the SQL
// implementation: status transitions and the claim/release pairs run under
// one lock, so only one concurrent caller can win a transition.
type memListingRepo struct {
	mu        sync.Mutex
	listings  map[string]domain.ResaleListing
	purchases *memPurchaseRepo
}

func newMemListingRepo(purchases *memPurchaseRepo) *memListingRepo {
	return &memListingRepo{
		listings:  make(map[string]domain.ResaleListing),
		purchases: purchases,
	}
}

func (r *memListingRepo) Create(_ context.Context, listing domain.ResaleListing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listings[listing.ID] = listing
	return nil
}

func (r *memListingRepo) GetByID(_ context.Context, id string) (*domain.ResaleListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if listing, ok := r.listings[id]; ok {
		copied := listing
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memListingRepo) ListByEvent(_ context.Context, eventID string, status *domain.ListingStatus) ([]domain.ResaleListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.ResaleListing
	for _, listing := range r.listings {
		if listing.EventID != eventID {
			continue
		}
		if status != nil && listing.Status != *status {
			continue
		}
		result = append(result, listing)
	}
	return result, nil
}

func (r *memListingRepo) ListBySeller(_ context.Context, sellerID string) ([]domain.ResaleListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.ResaleListing
	for _, listing := range r.listings {
		if listing.SellerID == sellerID {
			result = append(result, listing)
		}
	}
	return result, nil
}

func (r *memListingRepo) TransitionStatus(_ context.Context, id string, from, to domain.ListingStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[id]
	if !ok || listing.Status != from {
		return false, nil
	}
	listing.Status = to
	r.listings[id] = listing
	return true, nil
}

func (r *memListingRepo) ClaimWithPurchase(_ context.Context, listingID string, purchase domain.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return repository.ErrNotFound
	}
	if listing.Status != domain.ListingActive {
		return repository.ErrConflict
	}
	listing.Status = domain.ListingSold
	r.listings[listingID] = listing

	r.purchases.mu.Lock()
	r.purchases.purchases[purchase.ID] = purchase
	r.purchases.mu.Unlock()

	return nil
}

func (r *memListingRepo) ReleaseWithPurchase(_ context.Context, listingID, purchaseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purchases.mu.Lock()
	purchase, ok := r.purchases.purchases[purchaseID]
	if !ok || purchase.Status != domain.PurchasePending {
		r.purchases.mu.Unlock()
		return repository.ErrConflict
	}
	purchase.Status = domain.PurchaseCancelled
	r.purchases.purchases[purchaseID] = purchase
	r.purchases.mu.Unlock()

	listing, ok := r.listings[listingID]
	if !ok || listing.Status != domain.ListingSold {
		return repository.ErrConflict
	}
	listing.Status = domain.ListingActive
	r.listings[listingID] = listing
	return nil
}

// memChallengeStore is a single-use challenge store with an injectable clock
// so expiry can be tested without sleeping.
type memChallengeStore struct {
	mu      sync.Mutex
	entries map[string]challengeEntry
	now     func() time.Time
}

type challengeEntry struct {
	data      []byte
	expiresAt time.Time
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{
		entries: make(map[string]challengeEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *memChallengeStore) Put(_ context.Context, token string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[token] = challengeEntry{data: data, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memChallengeStore) Consume(_ context.Context, token string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.entries, token)

	if s.now().After(entry.expiresAt) {
		return nil, repository.ErrNotFound
	}
	return entry.data, nil
}

func (s *memChallengeStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type memPasskeyRepo struct {
	mu          sync.Mutex
	credentials map[string]domain.PasskeyCredential

	lookupErr error
}

func newMemPasskeyRepo() *memPasskeyRepo {
	return &memPasskeyRepo{credentials: make(map[string]domain.PasskeyCredential)}
}

func (r *memPasskeyRepo) Create(_ context.Context, credential domain.PasskeyCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.credentials {
		if bytes.Equal(existing.CredentialID, credential.CredentialID) {
			return repository.ErrDuplicate
		}
	}
	r.credentials[credential.ID] = credential
	return nil
}

func (r *memPasskeyRepo) ListActiveByUser(_ context.Context, userID string) ([]domain.PasskeyCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.PasskeyCredential
	for _, credential := range r.credentials {
		if credential.UserID == userID && credential.Active {
			result = append(result, credential)
		}
	}
	return result, nil
}

func (r *memPasskeyRepo) GetByCredentialID(_ context.Context, credentialID []byte) (*domain.PasskeyCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lookupErr != nil {
		return nil, r.lookupErr
	}

	for _, credential := range r.credentials {
		if bytes.Equal(credential.CredentialID, credentialID) {
			copied := credential
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memPasskeyRepo) UpdateSignCount(_ context.Context, id string, signCount uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	credential, ok := r.credentials[id]
	if !ok {
		return repository.ErrNotFound
	}
	credential.SignCount = signCount
	r.credentials[id] = credential
	return nil
}

func (r *memPasskeyRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	credential, ok := r.credentials[id]
	if !ok {
		return repository.ErrNotFound
	}
	credential.Active = false
	r.credentials[id] = credential
	return nil
}

// recordingPublisher counts published events per type.
type recordingPublisher struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{counts: make(map[string]int)}
}

func (p *recordingPublisher) record(eventType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[eventType]++
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[eventType]
}

func (p *recordingPublisher) PublishUserRegistered(context.Context, domain.UserRegisteredEvent) error {
	p.record("user.registered")
	return nil
}

func (p *recordingPublisher) PublishSessionRevoked(context.Context, domain.SessionRevokedEvent) error {
	p.record("session.revoked")
	return nil
}

func (p *recordingPublisher) PublishListingSold(context.Context, domain.ListingSoldEvent) error {
	p.record("listing.sold")
	return nil
}

func (p *recordingPublisher) PublishListingReleased(context.Context, domain.ListingReleasedEvent) error {
	p.record("listing.released")
	return nil
}

func (p *recordingPublisher) PublishPurchaseCreated(context.Context, domain.PurchaseCreatedEvent) error {
	p.record("purchase.created")
	return nil
}

func (p *recordingPublisher) PublishPurchaseCompleted(context.Context, domain.PurchaseCompletedEvent) error {
	p.record("purchase.completed")
	return nil
}

// stubGateway returns canned checkout sessions, optionally failing every call.
type stubGateway struct {
	mu       sync.Mutex
	fail     bool
	requests []port.CheckoutSessionRequest
	counter  int
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, req port.CheckoutSessionRequest) (*port.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if g.fail {
		return nil, fmt.Errorf("gateway unavailable")
	}

	g.counter++
	id := fmt.Sprintf("cs_test_%d", g.counter)
	return &port.CheckoutSession{
		ID:          id,
		RedirectURL: "https://pay.example.test/" + id,
	}, nil
}

var (
	_ port.UserRepository     = (*memUserRepo)(nil)
	_ port.SessionRepository  = (*memSessionRepo)(nil)
	_ port.ListingRepository  = (*memListingRepo)(nil)
	_ port.PurchaseRepository = (*memPurchaseRepo)(nil)
	_ port.PasskeyRepository  = (*memPasskeyRepo)(nil)
	_ port.ChallengeStore     = (*memChallengeStore)(nil)
	_ port.EventPublisher     = (*recordingPublisher)(nil)
	_ port.PaymentGateway     = (*stubGateway)(nil)
)
