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

// PurchaseRepository implements port.PurchaseRepository using PostgreSQL.
type PurchaseRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPurchaseRepository constructs a PurchaseRepository.
func NewPurchaseRepository(exec pgExecutor) *PurchaseRepository {
	return &PurchaseRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var purchaseColumns = []string{
	"id",
	"listing_id",
	"buyer_id",
	"seller_id",
	"event_id",
	"ticket_id",
	"subtotal",
	"fee",
	"total",
	"status",
	"checkout_session_id",
	"created_at",
	"updated_at",
}

// GetByID retrieves a purchase by identifier.
func (r *PurchaseRepository) GetByID(ctx context.Context, id string) (*domain.Purchase, error) {
	stmt, args, err := r.builder.
		Select(purchaseColumns...).
		From("marketplace.purchases").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select purchase sql: %w", err)
	}

	purchase, err := scanPurchase(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return purchase, nil
}

// GetByCheckoutSessionID retrieves the purchase tied to a gateway session.
func (r *PurchaseRepository) GetByCheckoutSessionID(ctx context.Context, sessionID string) (*domain.Purchase, error) {
	stmt, args, err := r.builder.
		Select(purchaseColumns...).
		From("marketplace.purchases").
		Where(squirrel.Eq{"checkout_session_id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select purchase sql: %w", err)
	}

	purchase, err := scanPurchase(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return purchase, nil
}

// SetCheckoutSession attaches the gateway's session identifier to a purchase.
func (r *PurchaseRepository) SetCheckoutSession(ctx context.Context, purchaseID, checkoutSessionID string) error {
	stmt, args, err := r.builder.Update("marketplace.purchases").
		Set("checkout_session_id", checkoutSessionID).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": purchaseID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update checkout session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// TransitionStatus applies the transition only while the purchase is in the
// from status and reports whether the row was updated.
func (r *PurchaseRepository) TransitionStatus(ctx context.Context, id string, from, to domain.PurchaseStatus) (bool, error) {
	stmt, args, err := r.builder.Update("marketplace.purchases").
		Set("status", string(to)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id, "status": string(from)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition purchase sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("transition purchase: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListByBuyer returns the buyer's purchases, newest first.
func (r *PurchaseRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Purchase, error) {
	stmt, args, err := r.builder.
		Select(purchaseColumns...).
		From("marketplace.purchases").
		Where(squirrel.Eq{"buyer_id": buyerID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select purchases sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []domain.Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *purchase)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}

	return purchases, nil
}

func scanPurchase(row rowScanner) (*domain.Purchase, error) {
	var (
		purchase domain.Purchase
		subtotal string
		fee      string
		total    string
		status   string
	)

	if err := row.Scan(
		&purchase.ID,
		&purchase.ListingID,
		&purchase.BuyerID,
		&purchase.SellerID,
		&purchase.EventID,
		&purchase.TicketID,
		&subtotal,
		&fee,
		&total,
		&status,
		&purchase.CheckoutSessionID,
		&purchase.CreatedAt,
		&purchase.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan purchase: %w", err)
	}

	var err error
	if purchase.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, fmt.Errorf("parse purchase subtotal: %w", err)
	}
	if purchase.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse purchase fee: %w", err)
	}
	if purchase.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse purchase total: %w", err)
	}

	purchase.Status = domain.PurchaseStatus(status)

	return &purchase, nil
}

var _ port.PurchaseRepository = (*PurchaseRepository)(nil)
