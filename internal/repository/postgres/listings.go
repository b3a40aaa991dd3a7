package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/repository"
)

// ListingRepository implements port.ListingRepository using PostgreSQL.
type ListingRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewListingRepository constructs a repository backed by any executor that
// satisfies pgExecutor. The claim and release paths additionally require the
// executor to start transactions, which pgxpool.Pool does.
func NewListingRepository(exec pgExecutor) *ListingRepository {
	return &ListingRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ListingRepository) begin(ctx context.Context) (pgx.Tx, error) {
	starter, ok := r.exec.(txStarter)
	if !ok {
		return nil, fmt.Errorf("executor does not support transactions")
	}
	return starter.Begin(ctx)
}

var listingColumns = []string{
	"id",
	"ticket_id",
	"seller_id",
	"event_id",
	"price",
	"status",
	"expires_at",
	"created_at",
	"updated_at",
}

// Create inserts a new listing row.
func (r *ListingRepository) Create(ctx context.Context, listing domain.ResaleListing) error {
	sql, args, err := r.builder.Insert("marketplace.resale_listings").
		Columns(listingColumns...).
		Values(
			listing.ID,
			listing.TicketID,
			listing.SellerID,
			listing.EventID,
			listing.Price.StringFixed(2),
			string(listing.Status),
			listing.ExpiresAt,
			listing.CreatedAt,
			listing.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert listing sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}

	return nil
}

// GetByID retrieves a listing by identifier.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*domain.ResaleListing, error) {
	stmt, args, err := r.builder.
		Select(listingColumns...).
		From("marketplace.resale_listings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select listing sql: %w", err)
	}

	listing, err := scanListing(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return listing, nil
}

// ListByEvent returns listings for an event, optionally filtered by status.
func (r *ListingRepository) ListByEvent(ctx context.Context, eventID string, status *domain.ListingStatus) ([]domain.ResaleListing, error) {
	query := r.builder.
		Select(listingColumns...).
		From("marketplace.resale_listings").
		Where(squirrel.Eq{"event_id": eventID}).
		OrderBy("created_at DESC")

	if status != nil {
		query = query.Where(squirrel.Eq{"status": string(*status)})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select listings sql: %w", err)
	}

	return r.queryListings(ctx, stmt, args)
}

// ListBySeller returns every listing the seller has created, newest first.
func (r *ListingRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.ResaleListing, error) {
	stmt, args, err := r.builder.
		Select(listingColumns...).
		From("marketplace.resale_listings").
		Where(squirrel.Eq{"seller_id": sellerID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select listings sql: %w", err)
	}

	return r.queryListings(ctx, stmt, args)
}

// TransitionStatus applies the transition only while the listing is in the
// from status and reports whether the row was won.
func (r *ListingRepository) TransitionStatus(ctx context.Context, id string, from, to domain.ListingStatus) (bool, error) {
	stmt, args, err := r.builder.Update("marketplace.resale_listings").
		Set("status", string(to)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id, "status": string(from)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition listing sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("transition listing: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ClaimWithPurchase atomically moves the listing ACTIVE->SOLD and inserts the
// purchase row. The conditional update and the insert share one transaction,
// so at most one concurrent buyer can win the listing.
func (r *ListingRepository) ClaimWithPurchase(ctx context.Context, listingID string, purchase domain.Purchase) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	claimSQL, claimArgs, err := r.builder.Update("marketplace.resale_listings").
		Set("status", string(domain.ListingSold)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": listingID, "status": string(domain.ListingActive)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build claim listing sql: %w", err)
	}

	tag, err := tx.Exec(ctx, claimSQL, claimArgs...)
	if err != nil {
		return fmt.Errorf("claim listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	insertSQL, insertArgs, err := r.builder.Insert("marketplace.purchases").
		Columns(purchaseColumns...).
		Values(
			purchase.ID,
			purchase.ListingID,
			purchase.BuyerID,
			purchase.SellerID,
			purchase.EventID,
			purchase.TicketID,
			purchase.Subtotal.StringFixed(2),
			purchase.Fee.StringFixed(2),
			purchase.Total.StringFixed(2),
			string(purchase.Status),
			purchase.CheckoutSessionID,
			purchase.CreatedAt,
			purchase.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert purchase sql: %w", err)
	}

	if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit claim tx: %w", err)
	}

	return nil
}

// ReleaseWithPurchase atomically returns the listing SOLD->ACTIVE and cancels
// the still-PENDING purchase. Both updates are conditional so a concurrent
// confirmation cannot be undone.
func (r *ListingRepository) ReleaseWithPurchase(ctx context.Context, listingID, purchaseID string) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cancelSQL, cancelArgs, err := r.builder.Update("marketplace.purchases").
		Set("status", string(domain.PurchaseCancelled)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": purchaseID, "status": string(domain.PurchasePending)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build cancel purchase sql: %w", err)
	}

	tag, err := tx.Exec(ctx, cancelSQL, cancelArgs...)
	if err != nil {
		return fmt.Errorf("cancel purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	releaseSQL, releaseArgs, err := r.builder.Update("marketplace.resale_listings").
		Set("status", string(domain.ListingActive)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": listingID, "status": string(domain.ListingSold)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release listing sql: %w", err)
	}

	tag, err = tx.Exec(ctx, releaseSQL, releaseArgs...)
	if err != nil {
		return fmt.Errorf("release listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release tx: %w", err)
	}

	return nil
}

func (r *ListingRepository) queryListings(ctx context.Context, stmt string, args []any) ([]domain.ResaleListing, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.ResaleListing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *listing)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	return listings, nil
}

func scanListing(row rowScanner) (*domain.ResaleListing, error) {
	var (
		listing domain.ResaleListing
		price   string
		status  string
	)

	if err := row.Scan(
		&listing.ID,
		&listing.TicketID,
		&listing.SellerID,
		&listing.EventID,
		&price,
		&status,
		&listing.ExpiresAt,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan listing: %w", err)
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse listing price: %w", err)
	}

	listing.Price = parsed
	listing.Status = domain.ListingStatus(status)

	return &listing, nil
}

var _ port.ListingRepository = (*ListingRepository)(nil)
