package database

import (
	"context"
)

const createAccount = `-- name: CreateAccount :one
INSERT INTO accounts (username, password_hash)
VALUES ($1, $2)
RETURNING username, password_hash, created_at
`

type CreateAccountParams struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRow(ctx, createAccount, arg.Username, arg.PasswordHash)
	var i Account
	err := row.Scan(&i.Username, &i.PasswordHash, &i.CreatedAt)
	return i, err
}

const getAccountByUsername = `-- name: GetAccountByUsername :one
SELECT username, password_hash, created_at FROM accounts
WHERE username = $1
`

func (q *Queries) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	row := q.db.QueryRow(ctx, getAccountByUsername, username)
	var i Account
	err := row.Scan(&i.Username, &i.PasswordHash, &i.CreatedAt)
	return i, err
}

const upsertAccountPassword = `-- name: UpsertAccountPassword :one
INSERT INTO accounts (username, password_hash)
VALUES ($1, $2)
ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash
RETURNING username, password_hash, created_at
`

type UpsertAccountPasswordParams struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// UpsertAccountPassword creates the account or resets its password.
func (q *Queries) UpsertAccountPassword(ctx context.Context, arg UpsertAccountPasswordParams) (Account, error) {
	row := q.db.QueryRow(ctx, upsertAccountPassword, arg.Username, arg.PasswordHash)
	var i Account
	err := row.Scan(&i.Username, &i.PasswordHash, &i.CreatedAt)
	return i, err
}
