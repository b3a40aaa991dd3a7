package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/repository"
)

// SessionRepository implements port.SessionRepository for PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var sessionColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"is_valid",
	"ip",
	"user_agent",
	"created_at",
	"expires_at",
}

// Create inserts a session ledger row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	sql, args, err := r.builder.Insert("marketplace.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.IsValid,
			session.IP,
			session.UserAgent,
			session.CreatedAt,
			session.ExpiresAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves the ledger entry for a refresh token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("marketplace.sessions").
		Where(squirrel.Eq{"token_hash": hash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	return r.scanSession(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByID retrieves a session by identifier.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("marketplace.sessions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	return r.scanSession(r.exec.QueryRow(ctx, stmt, args...))
}

// ListByUser returns all ledger entries for a user, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("marketplace.sessions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.TokenHash,
			&session.IsValid,
			&session.IP,
			&session.UserAgent,
			&session.CreatedAt,
			&session.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Invalidate flips is_valid for a single session. Invalidating an already
// invalid session is not an error.
func (r *SessionRepository) Invalidate(ctx context.Context, sessionID string) error {
	stmt, args, err := r.builder.Update("marketplace.sessions").
		Set("is_valid", false).
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// InvalidateAllForUser flips is_valid for every currently valid session of
// the user and returns the number of rows changed.
func (r *SessionRepository) InvalidateAllForUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Update("marketplace.sessions").
		Set("is_valid", false).
		Where(squirrel.Eq{"user_id": userID, "is_valid": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate sessions for user: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *SessionRepository) scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.IsValid,
		&session.IP,
		&session.UserAgent,
		&session.CreatedAt,
		&session.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
