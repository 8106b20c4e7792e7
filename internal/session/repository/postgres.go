package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gtd-api/backend/internal/session/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a session repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// Create inserts the session row. A unique violation on token is surfaced
// as ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	const query = `
        INSERT INTO sessions (id, user_id, token, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := r.pool.Exec(ctx, query, s.ID, s.UserID, s.Token, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// IsValid looks up the session by token. Missing rows report false; an
// expired row is deleted on the spot and reported false. No background
// sweeper exists, so this lazy check is the only expiry enforcement.
func (r *PostgresRepository) IsValid(ctx context.Context, token string) (bool, error) {
	const query = `
        SELECT expires_at
        FROM sessions
        WHERE token = $1
    `
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx, query, token).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if expiresAt.Before(time.Now()) {
		if err := r.Delete(ctx, token); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Delete removes any row matching token. Idempotent.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	const query = `
        DELETE FROM sessions
        WHERE token = $1
    `
	_, err := r.pool.Exec(ctx, query, token)
	return err
}

// Replace deletes the row for oldToken and inserts s in one transaction.
// When the delete matches no row the transaction is rolled back and
// ErrNotFound is returned; under concurrent rotation of the same token the
// row-level lock on the old row guarantees a single winner.
func (r *PostgresRepository) Replace(ctx context.Context, oldToken string, s *domain.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, oldToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	const insert = `
        INSERT INTO sessions (id, user_id, token, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := tx.Exec(ctx, insert, s.ID, s.UserID, s.Token, s.ExpiresAt, s.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
