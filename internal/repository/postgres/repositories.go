package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users     *UserRepository
	Sessions  *SessionRepository
	Passkeys  *PasskeyRepository
	Listings  *ListingRepository
	Purchases *PurchaseRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:     NewUserRepository(pool),
		Sessions:  NewSessionRepository(pool),
		Passkeys:  NewPasskeyRepository(pool),
		Listings:  NewListingRepository(pool),
		Purchases: NewPurchaseRepository(pool),
	}
}
