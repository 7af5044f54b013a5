package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/talep-board/internal/domain"
)

// LoginRepository resolves accounts and the display-name/email pair used
// when a requester picks an assignee by name.
type LoginRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	EmailByName(ctx context.Context, displayName string) (string, error)
	NameByEmail(ctx context.Context, email string) (string, error)
}

type loginRepository struct {
	pool *pgxpool.Pool
}

// NewLoginRepository returns a Postgres-backed implementation.
func NewLoginRepository(pool *pgxpool.Pool) LoginRepository {
	return &loginRepository{pool: pool}
}

func (r *loginRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO login (email, kullanici, birim, title, sifre)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		account.Email,
		account.DisplayName,
		account.OrgUnit,
		account.Title,
		account.PasswordHash,
	).Scan(&account.ID)
}

func (r *loginRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `
        SELECT id, email, kullanici, birim, title, sifre
        FROM login WHERE email=$1`
	var account domain.Account
	if err := r.pool.QueryRow(ctx, query, email).Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&account.OrgUnit,
		&account.Title,
		&account.PasswordHash,
	); err != nil {
		return nil, err
	}
	return &account, nil
}

// EmailByName translates a human-chosen display name into a durable email.
// An unknown name returns empty, not an error.
func (r *loginRepository) EmailByName(ctx context.Context, displayName string) (string, error) {
	const query = `SELECT email FROM login WHERE kullanici=$1`
	var email string
	if err := r.pool.QueryRow(ctx, query, displayName).Scan(&email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return email, nil
}

// NameByEmail is the reverse resolution, used for the requester label.
func (r *loginRepository) NameByEmail(ctx context.Context, email string) (string, error) {
	const query = `SELECT kullanici FROM login WHERE email=$1`
	var name string
	if err := r.pool.QueryRow(ctx, query, email).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}
