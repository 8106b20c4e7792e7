package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gtd-api/backend/internal/user/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a user repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `
        SELECT id, email, password_hash, name, created_at
        FROM users
        WHERE id = $1
    `
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail returns the user with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, email, password_hash, name, created_at
        FROM users
        WHERE email = $1
    `
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// Create inserts the user and fills in the generated ID and CreatedAt.
// A unique violation on email is surfaced as ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	const query = `
        INSERT INTO users (email, password_hash, name)
        VALUES ($1, $2, $3)
        RETURNING id, created_at
    `
	name := sql.NullString{String: u.Name, Valid: u.Name != ""}
	err := r.pool.QueryRow(ctx, query, u.Email, u.PasswordHash, name).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		name sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if name.Valid {
		u.Name = name.String
	}
	return &u, nil
}
