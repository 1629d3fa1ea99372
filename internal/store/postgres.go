package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/paymebot/payrelay/internal/domain"
)

type Store struct {
	db *pgxpool.Pool
}

func New(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

// NewWithPool wraps an existing pool; the caller keeps ownership of it.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Close() {
	s.db.Close()
}

// EnsureUser registers a user on first contact. Existing rows are left
// untouched, including the handle captured at first insert.
func (s *Store) EnsureUser(ctx context.Context, id int64, handle string) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO users (id, handle) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING",
		id, handle)
	if err != nil {
		return fmt.Errorf("ensure user %d: %w", id, err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(handle, ''), balance, COALESCE(bank_name, ''), COALESCE(account_number, '')
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Handle, &u.Balance, &u.BankName, &u.AccountNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) GetBalance(ctx context.Context, id int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRow(ctx, "SELECT balance FROM users WHERE id = $1", id).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, ErrUserNotFound
		}
		return decimal.Decimal{}, fmt.Errorf("get balance %d: %w", id, err)
	}
	return balance, nil
}

func (s *Store) SetBankName(ctx context.Context, id int64, name string) error {
	tag, err := s.db.Exec(ctx, "UPDATE users SET bank_name = $1 WHERE id = $2", name, id)
	if err != nil {
		return fmt.Errorf("set bank name %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) SetAccountNumber(ctx context.Context, id int64, number string) error {
	tag, err := s.db.Exec(ctx, "UPDATE users SET account_number = $1 WHERE id = $2", number, id)
	if err != nil {
		return fmt.Errorf("set account number %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConfigValue reads a single config entry. ErrNotFound means the key has never
// been set.
func (s *Store) ConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx, "SELECT value FROM config WHERE key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("config value %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}
