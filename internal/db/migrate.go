package db

import (
	"context"
	"database/sql"
)

const accountsMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS accounts (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    login text,
    email text,
    name text,
    openid_identifier text,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS accounts_login_lower_unique
ON accounts (LOWER(login)) WHERE login IS NOT NULL;

CREATE UNIQUE INDEX IF NOT EXISTS accounts_openid_identifier_unique
ON accounts (openid_identifier) WHERE openid_identifier IS NOT NULL;
`

// Migrate creates the accounts schema. Safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, accountsMigration)
	return err
}
