package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `username, cost, paid, toasties, drinks, deserts, payment_intent_id, paid_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.Username,
		&i.Cost,
		&i.Paid,
		&i.Toasties,
		&i.Drinks,
		&i.Deserts,
		&i.PaymentIntentID,
		&i.PaidAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE username = $1
`

func (q *Queries) GetOrder(ctx context.Context, username string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, username))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders
WHERE username = $1
FOR UPDATE
`

// GetOrderForUpdate locks the row until the surrounding transaction ends.
func (q *Queries) GetOrderForUpdate(ctx context.Context, username string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, username))
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (username, cost, toasties, drinks, deserts)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + orderColumns + `
`

type CreateOrderParams struct {
	Username string         `json:"username"`
	Cost     pgtype.Numeric `json:"cost"`
	Toasties []string       `json:"toasties"`
	Drinks   []string       `json:"drinks"`
	Deserts  []string       `json:"deserts"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.Username,
		arg.Cost,
		arg.Toasties,
		arg.Drinks,
		arg.Deserts,
	))
}

const updateOrderItems = `-- name: UpdateOrderItems :one
UPDATE orders
SET cost = $2, toasties = $3, drinks = $4, deserts = $5, updated_at = now()
WHERE username = $1 AND paid = false
RETURNING ` + orderColumns + `
`

type UpdateOrderItemsParams struct {
	Username string         `json:"username"`
	Cost     pgtype.Numeric `json:"cost"`
	Toasties []string       `json:"toasties"`
	Drinks   []string       `json:"drinks"`
	Deserts  []string       `json:"deserts"`
}

// UpdateOrderItems only touches unpaid orders; a paid or missing row yields
// pgx.ErrNoRows.
func (q *Queries) UpdateOrderItems(ctx context.Context, arg UpdateOrderItemsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderItems,
		arg.Username,
		arg.Cost,
		arg.Toasties,
		arg.Drinks,
		arg.Deserts,
	))
}

const markOrderPaid = `-- name: MarkOrderPaid :one
UPDATE orders
SET paid = true, payment_intent_id = $2, paid_at = now(), updated_at = now()
WHERE username = $1 AND paid = false
RETURNING ` + orderColumns + `
`

type MarkOrderPaidParams struct {
	Username        string      `json:"username"`
	PaymentIntentID pgtype.Text `json:"payment_intent_id"`
}

// MarkOrderPaid flips paid false to true. It returns pgx.ErrNoRows when the
// order is missing or already paid.
func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPaid, arg.Username, arg.PaymentIntentID))
}

const deleteUnpaidOrder = `-- name: DeleteUnpaidOrder :execrows
DELETE FROM orders
WHERE username = $1 AND paid = false
`

func (q *Queries) DeleteUnpaidOrder(ctx context.Context, username string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteUnpaidOrder, username)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
ORDER BY created_at DESC, username
LIMIT $1 OFFSET $2
`

type ListOrdersParams struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	return q.listOrders(ctx, listOrders, arg.Limit, arg.Offset)
}

const listAllOrders = `-- name: ListAllOrders :many
SELECT ` + orderColumns + ` FROM orders
ORDER BY created_at DESC, username
`

func (q *Queries) ListAllOrders(ctx context.Context) ([]Order, error) {
	return q.listOrders(ctx, listAllOrders)
}

const listPaidOrders = `-- name: ListPaidOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE paid = true
ORDER BY created_at, username
`

func (q *Queries) ListPaidOrders(ctx context.Context) ([]Order, error) {
	return q.listOrders(ctx, listPaidOrders)
}

func (q *Queries) listOrders(ctx context.Context, query string, args ...interface{}) ([]Order, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countOrders = `-- name: CountOrders :one
SELECT count(*) FROM orders
`

func (q *Queries) CountOrders(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countOrders)
	var count int64
	err := row.Scan(&count)
	return count, err
}
