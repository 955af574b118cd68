package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Account struct {
	Username     string             `json:"username"`
	PasswordHash string             `json:"password_hash"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}

// Order is one user's order for the current cycle. The item columns are
// JSONB arrays of tokens.
type Order struct {
	Username        string             `json:"username"`
	Cost            pgtype.Numeric     `json:"cost"`
	Paid            bool               `json:"paid"`
	Toasties        []string           `json:"toasties"`
	Drinks          []string           `json:"drinks"`
	Deserts         []string           `json:"deserts"`
	PaymentIntentID pgtype.Text        `json:"payment_intent_id"`
	PaidAt          pgtype.Timestamptz `json:"paid_at"`
	CreatedAt       pgtype.Timestamptz `json:"created_at"`
	UpdatedAt       pgtype.Timestamptz `json:"updated_at"`
}
