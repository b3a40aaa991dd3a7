package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stagepass/marketplace/internal/core/domain"
	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/repository"
)

// PasskeyRepository implements port.PasskeyRepository using PostgreSQL.
type PasskeyRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPasskeyRepository constructs a PasskeyRepository.
func NewPasskeyRepository(exec pgExecutor) *PasskeyRepository {
	return &PasskeyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var passkeyColumns = []string{
	"id",
	"user_id",
	"credential_id",
	"public_key",
	"transports",
	"sign_count",
	"active",
	"created_at",
}

// Create inserts a new passkey credential row.
func (r *PasskeyRepository) Create(ctx context.Context, credential domain.PasskeyCredential) error {
	sql, args, err := r.builder.Insert("marketplace.passkey_credentials").
		Columns(passkeyColumns...).
		Values(
			credential.ID,
			credential.UserID,
			credential.CredentialID,
			credential.PublicKey,
			credential.Transports,
			credential.SignCount,
			credential.Active,
			credential.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert passkey sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert passkey: %w", err)
	}

	return nil
}

// ListActiveByUser returns the user's active credentials.
func (r *PasskeyRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	stmt, args, err := r.builder.
		Select(passkeyColumns...).
		From("marketplace.passkey_credentials").
		Where(squirrel.Eq{"user_id": userID, "active": true}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select passkeys sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query passkeys: %w", err)
	}
	defer rows.Close()

	var credentials []domain.PasskeyCredential
	for rows.Next() {
		credential, err := scanPasskey(rows)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, *credential)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passkeys: %w", err)
	}

	return credentials, nil
}

// GetByCredentialID retrieves a credential by the authenticator's handle.
func (r *PasskeyRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error) {
	stmt, args, err := r.builder.
		Select(passkeyColumns...).
		From("marketplace.passkey_credentials").
		Where(squirrel.Eq{"credential_id": credentialID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select passkey sql: %w", err)
	}

	credential, err := scanPasskey(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return credential, nil
}

// UpdateSignCount persists the authenticator's new signature counter.
func (r *PasskeyRepository) UpdateSignCount(ctx context.Context, id string, signCount uint32) error {
	stmt, args, err := r.builder.Update("marketplace.passkey_credentials").
		Set("sign_count", signCount).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update sign count sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Deactivate disables the credential without deleting it.
func (r *PasskeyRepository) Deactivate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("marketplace.passkey_credentials").
		Set("active", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate passkey sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate passkey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPasskey(row rowScanner) (*domain.PasskeyCredential, error) {
	var credential domain.PasskeyCredential
	if err := row.Scan(
		&credential.ID,
		&credential.UserID,
		&credential.CredentialID,
		&credential.PublicKey,
		&credential.Transports,
		&credential.SignCount,
		&credential.Active,
		&credential.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan passkey: %w", err)
	}

	return &credential, nil
}

var _ port.PasskeyRepository = (*PasskeyRepository)(nil)
