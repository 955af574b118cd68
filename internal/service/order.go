package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/toastysunday/api/internal/database"
	"github.com/toastysunday/api/internal/enum"
	"github.com/toastysunday/api/internal/events"
	"github.com/toastysunday/api/internal/money"
	"github.com/toastysunday/api/internal/order"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// Errors returned by the order lifecycle.
var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderExists            = errors.New("an order already exists for this user")
	ErrAlreadyPaid            = errors.New("order is already paid")
	ErrSubmissionWindowClosed = errors.New("orders are closed right now")
	ErrPageOutOfRange         = errors.New("page out of range")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed by the order and payment services.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetOrder(ctx context.Context, username string) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, username string) (database.Order, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	UpdateOrderItems(ctx context.Context, arg database.UpdateOrderItemsParams) (database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	DeleteUnpaidOrder(ctx context.Context, username string) (int64, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListAllOrders(ctx context.Context) ([]database.Order, error)
	ListPaidOrders(ctx context.Context) ([]database.Order, error)
	CountOrders(ctx context.Context) (int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the services to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// Order is a persisted order as the API reports it.
type Order struct {
	Username string      `json:"username"`
	Cost     money.Money `json:"cost"`
	Paid     bool        `json:"paid"`
	order.Items
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// OrderPage is a page of orders, newest first.
type OrderPage struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// OrderService handles the order lifecycle: create, edit, delete and reads.
type OrderService struct {
	store     OrderStore
	pool      TxBeginner
	newStore  NewOrderStore
	pricer    order.Pricer
	window    order.Window
	publisher events.Publisher
	now       func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(store OrderStore, pool TxBeginner, newStore NewOrderStore, pricer order.Pricer, window order.Window, publisher events.Publisher) *OrderService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &OrderService{
		store:     store,
		pool:      pool,
		newStore:  newStore,
		pricer:    pricer,
		window:    window,
		publisher: publisher,
		now:       time.Now,
	}
}

// Window returns the configured submission blackout.
func (s *OrderService) Window() order.Window {
	return s.window
}

func (s *OrderService) checkWindow() error {
	if s.window.Closed(s.now()) {
		return fmt.Errorf("%w (%s)", ErrSubmissionWindowClosed, s.window)
	}
	return nil
}

// Quote decodes, validates and prices a selection without persisting it.
func (s *OrderService) Quote(sel order.Selection) (order.Items, money.Money, error) {
	items, cost, err := s.pricer.PriceSelection(sel)
	if err != nil {
		return order.Items{}, 0, err
	}
	return items.Normalize(), cost, nil
}

// Create places the user's order for this cycle.
func (s *OrderService) Create(ctx context.Context, username string, sel order.Selection) (*Order, error) {
	// --- Window ---
	if err := s.checkWindow(); err != nil {
		return nil, err
	}

	// --- One order per user ---
	if _, err := s.store.GetOrder(ctx, username); err == nil {
		return nil, ErrOrderExists
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get order: %w", err)
	}

	// --- Decode, validate, price ---
	items, cost, err := s.pricer.PriceSelection(sel)
	if err != nil {
		return nil, err
	}
	items = items.Normalize()

	row, err := s.store.CreateOrder(ctx, database.CreateOrderParams{
		Username: username,
		Cost:     moneyToNumeric(cost),
		Toasties: items.Toasties,
		Drinks:   items.Drinks,
		Deserts:  items.Deserts,
	})
	if err != nil {
		// Lost a race with a concurrent create for the same user.
		if isUniqueViolation(err) {
			return nil, ErrOrderExists
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	o := orderFromRow(row)
	s.publish(ctx, enum.EventOrderCreated, username, &o)
	return &o, nil
}

// Edit replaces the items of an unpaid order and recomputes its cost.
func (s *OrderService) Edit(ctx context.Context, username string, sel order.Selection) (*Order, error) {
	if err := s.checkWindow(); err != nil {
		return nil, err
	}

	items, cost, err := s.pricer.PriceSelection(sel)
	if err != nil {
		return nil, err
	}
	items = items.Normalize()

	// --- Begin transaction ---
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Lock the row so a concurrent payment cannot flip paid under us.
	current, err := store.GetOrderForUpdate(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order for update: %w", err)
	}
	if current.Paid {
		return nil, ErrAlreadyPaid
	}

	row, err := store.UpdateOrderItems(ctx, database.UpdateOrderItemsParams{
		Username: username,
		Cost:     moneyToNumeric(cost),
		Toasties: items.Toasties,
		Drinks:   items.Drinks,
		Deserts:  items.Deserts,
	})
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	o := orderFromRow(row)
	s.publish(ctx, enum.EventOrderUpdated, username, &o)
	return &o, nil
}

// Delete removes an unpaid order.
func (s *OrderService) Delete(ctx context.Context, username string) error {
	if err := s.checkWindow(); err != nil {
		return err
	}

	n, err := s.store.DeleteUnpaidOrder(ctx, username)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n == 0 {
		// Nothing deleted: find out why.
		existing, err := s.store.GetOrder(ctx, username)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("get order: %w", err)
		}
		if existing.Paid {
			return ErrAlreadyPaid
		}
		return fmt.Errorf("delete order: no rows removed for unpaid order")
	}

	s.publish(ctx, enum.EventOrderDeleted, username, nil)
	return nil
}

// Get returns the user's order.
func (s *OrderService) Get(ctx context.Context, username string) (*Order, error) {
	row, err := s.store.GetOrder(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o := orderFromRow(row)
	return &o, nil
}

// ListAll returns every order, newest first.
func (s *OrderService) ListAll(ctx context.Context) ([]Order, error) {
	rows, err := s.store.ListAllOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return ordersFromRows(rows), nil
}

// ListPage returns one page of orders, newest first. A page below 1 means
// the first page; a limit outside (0, 100] falls back to 50 or clamps to 100.
func (s *OrderService) ListPage(ctx context.Context, page, limit int) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page-1 > math.MaxInt32/limit {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}

	total, err := s.store.CountOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.store.ListOrders(ctx, database.ListOrdersParams{
		Limit:  int32(limit),
		Offset: int32((page - 1) * limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return &OrderPage{
		Orders: ordersFromRows(rows),
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

func (s *OrderService) publish(ctx context.Context, eventType, username string, o *Order) {
	publishOrderEvent(ctx, s.publisher, eventType, username, o)
}

func publishOrderEvent(ctx context.Context, p events.Publisher, eventType, username string, o *Order) {
	var snapshot *events.Order
	if o != nil {
		snapshot = &events.Order{
			Username: o.Username,
			Cost:     o.Cost,
			Paid:     o.Paid,
			Toasties: o.Toasties,
			Drinks:   o.Drinks,
			Deserts:  o.Deserts,
		}
	}
	if err := p.Publish(ctx, events.New(eventType, username, snapshot)); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event":    eventType,
			"username": username,
		}).Warn("publish order event failed")
	}
}

// --- Helpers ---

// isUniqueViolation checks for a unique constraint violation (pgconn error
// code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func orderFromRow(row database.Order) Order {
	o := Order{
		Username: row.Username,
		Cost:     numericToMoney(row.Cost),
		Paid:     row.Paid,
		Items: order.Items{
			Toasties: row.Toasties,
			Drinks:   row.Drinks,
			Deserts:  row.Deserts,
		}.Normalize(),
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
	if row.PaymentIntentID.Valid {
		o.PaymentIntentID = row.PaymentIntentID.String
	}
	return o
}

func ordersFromRows(rows []database.Order) []Order {
	out := make([]Order, len(rows))
	for i, row := range rows {
		out[i] = orderFromRow(row)
	}
	return out
}

func numericToMoney(n pgtype.Numeric) money.Money {
	if !n.Valid {
		return money.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return money.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return money.Zero
	}
	m, err := money.FromDecimal(d)
	if err != nil {
		return money.Zero
	}
	return m
}

func moneyToNumeric(m money.Money) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(m.Minor()), Exp: -2, Valid: true}
}
