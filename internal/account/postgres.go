package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gotosleep/authlogic-openid/internal/db"

	"github.com/google/uuid"
)

const selectAccount = `
	SELECT id, COALESCE(login, ''), COALESCE(email, ''), COALESCE(name, ''),
	       COALESCE(openid_identifier, ''), created_at, updated_at
	FROM accounts
`

// PostgresStore persists accounts in the accounts table. Uniqueness of
// openid_identifier is enforced by a partial unique index, so concurrent
// creates for the same identifier collapse into ErrDuplicateIdentifier.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, selectAccount+` WHERE id = $1`, id)
}

func (s *PostgresStore) FindByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE openid_identifier = $1`, identifier)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE LOWER(email) = LOWER($1) LIMIT 1`, email)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg string) (*Account, error) {
	var (
		a  Account
		id uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&id, &a.Login, &a.Email, &a.Name, &a.OpenIDIdentifier, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account: select: %w", err)
	}
	a.ID = id.String()
	return &a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *Account) error {
	if err := Validate(a); err != nil {
		return err
	}

	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (login, email, name, openid_identifier)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (openid_identifier) WHERE openid_identifier IS NOT NULL DO NOTHING
		RETURNING id, created_at, updated_at
	`,
		a.Login,
		a.Email,
		a.Name,
		a.OpenIDIdentifier,
	).Scan(&id, &a.CreatedAt, &a.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicateIdentifier
	}
	if constraint, ok := db.UniqueViolation(err); ok {
		return uniqueFieldError(constraint)
	}
	if err != nil {
		return fmt.Errorf("account: insert: %w", err)
	}

	a.ID = id.String()
	return nil
}

func (s *PostgresStore) UpdateIdentifier(ctx context.Context, id string, identifier string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET openid_identifier = $2, updated_at = NOW()
		WHERE id = $1
	`, id, identifier)

	if _, ok := db.UniqueViolation(err); ok {
		return ErrDuplicateIdentifier
	}
	if err != nil {
		return fmt.Errorf("account: update identifier: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("account: update identifier: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func uniqueFieldError(constraint string) error {
	switch constraint {
	case "accounts_openid_identifier_unique":
		return ErrDuplicateIdentifier
	case "accounts_login_lower_unique":
		return FieldErrors{"login": {"has already been taken"}}
	default:
		return FieldErrors{"base": {"has already been taken"}}
	}
}
