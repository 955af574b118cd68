package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"
	"github.com/toastysunday/api/internal/database"
	"github.com/toastysunday/api/internal/enum"
	"github.com/toastysunday/api/internal/events"
	"github.com/toastysunday/api/internal/money"
	"github.com/toastysunday/api/internal/payment"
)

// amountTolerance is the largest accepted gap between the intent amount and
// the order cost.
const amountTolerance money.Money = 1

// Errors returned by payment reconciliation.
var (
	ErrIdentityMismatch    = errors.New("payment does not belong to this user")
	ErrAmountMismatch      = errors.New("payment amount does not match order cost")
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")
	ErrInvalidAmount       = errors.New("amount out of range")
	ErrDonationIntent      = errors.New("payment intent is a donation")
)

// PaymentNotSucceededError carries the provider status of an unsettled
// intent.
type PaymentNotSucceededError struct {
	Status string
}

func (e *PaymentNotSucceededError) Error() string {
	return fmt.Sprintf("payment has not succeeded (status %s)", e.Status)
}

func (e *PaymentNotSucceededError) Is(target error) bool {
	return target == ErrPaymentNotSucceeded
}

// PaymentProvider creates and retrieves payment intents.
// Satisfied by *payment.Stripe.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error)
	RetrieveIntent(ctx context.Context, id string) (payment.Intent, error)
}

// IntentResult is what the client needs to confirm a payment.
type IntentResult struct {
	IntentID     string      `json:"intent_id"`
	ClientSecret string      `json:"client_secret"`
	Amount       money.Money `json:"amount"`
	Currency     string      `json:"currency"`
}

// PaymentService creates intents for orders and reconciles succeeded
// intents against them.
type PaymentService struct {
	store     OrderStore
	pool      TxBeginner
	newStore  NewOrderStore
	provider  PaymentProvider
	currency  string
	maxAmount money.Money
	publisher events.Publisher
}

// NewPaymentService creates a new PaymentService. maxAmount bounds donation
// amounts.
func NewPaymentService(store OrderStore, pool TxBeginner, newStore NewOrderStore, provider PaymentProvider, currency string, maxAmount money.Money, publisher events.Publisher) *PaymentService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &PaymentService{
		store:     store,
		pool:      pool,
		newStore:  newStore,
		provider:  provider,
		currency:  strings.ToLower(currency),
		maxAmount: maxAmount,
		publisher: publisher,
	}
}

// CreateIntent opens a provider intent for the user's unpaid order, charged
// at the stored server-computed cost.
func (s *PaymentService) CreateIntent(ctx context.Context, username string) (*IntentResult, error) {
	row, err := s.store.GetOrder(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if row.Paid {
		return nil, ErrAlreadyPaid
	}

	cost := numericToMoney(row.Cost)
	intent, err := s.provider.CreateIntent(ctx, payment.CreateIntentParams{
		Amount:   cost,
		Currency: s.currency,
		Metadata: map[string]string{
			enum.MetadataUsername: username,
			enum.MetadataPurpose:  enum.PurposeOrder,
		},
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"username":  username,
		"intent_id": intent.ID,
		"amount":    cost.String(),
	}).Info("payment intent created")

	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       cost,
		Currency:     s.currency,
	}, nil
}

// CreateDonationIntent opens an intent for a client-chosen amount. It is
// not tied to any order.
func (s *PaymentService) CreateDonationIntent(ctx context.Context, username string, amount money.Money) (*IntentResult, error) {
	if amount <= 0 || amount > s.maxAmount {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	intent, err := s.provider.CreateIntent(ctx, payment.CreateIntentParams{
		Amount:   amount,
		Currency: s.currency,
		Metadata: map[string]string{
			enum.MetadataUsername: username,
			enum.MetadataPurpose:  enum.PurposeDonation,
		},
	})
	if err != nil {
		return nil, err
	}
	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     s.currency,
	}, nil
}

// ReconcileRedirect settles an order from the browser redirect. The intent
// must belong to caller.
func (s *PaymentService) ReconcileRedirect(ctx context.Context, intentID, caller string) (*Order, error) {
	return s.reconcile(ctx, intentID, &caller)
}

// ReconcileWebhook settles an order from a verified webhook event. The only
// identity is the username in the intent's metadata.
func (s *PaymentService) ReconcileWebhook(ctx context.Context, intentID string) (*Order, error) {
	return s.reconcile(ctx, intentID, nil)
}

// reconcile is the single mark-paid path for both triggers. It is
// idempotent: reconciling an already-paid order returns it unchanged.
func (s *PaymentService) reconcile(ctx context.Context, intentID string, caller *string) (*Order, error) {
	log := logrus.WithField("intent_id", intentID)

	// --- Provider state ---
	intent, err := s.provider.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != enum.IntentStatusSucceeded {
		return nil, &PaymentNotSucceededError{Status: intent.Status}
	}

	// --- Identity ---
	username := intent.Metadata[enum.MetadataUsername]
	if username == "" {
		return nil, ErrIdentityMismatch
	}
	if caller != nil && *caller != username {
		log.WithFields(logrus.Fields{"caller": *caller, "username": username}).Warn("payment confirmation by another user")
		return nil, ErrIdentityMismatch
	}
	if intent.Metadata[enum.MetadataPurpose] == enum.PurposeDonation {
		return nil, ErrDonationIntent
	}
	log = log.WithField("username", username)

	// --- Begin transaction ---
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Lock the order row so the redirect and webhook triggers serialize here.
	row, err := store.GetOrderForUpdate(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order for update: %w", err)
	}

	if row.Paid {
		log.Debug("order already paid")
		o := orderFromRow(row)
		return &o, nil
	}

	// --- Amount ---
	cost := numericToMoney(row.Cost)
	if !strings.EqualFold(intent.Currency, s.currency) || (intent.Amount-cost).Abs() > amountTolerance {
		log.WithFields(logrus.Fields{
			"intent_amount":   intent.Amount.String(),
			"intent_currency": intent.Currency,
			"order_cost":      cost.String(),
		}).Warn("payment amount mismatch")
		return nil, fmt.Errorf("%w: paid %s %s, order costs %s %s", ErrAmountMismatch, intent.Amount, intent.Currency, cost, s.currency)
	}

	paid, err := store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{
		Username:        username,
		PaymentIntentID: pgtype.Text{String: intentID, Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	log.Info("order paid")
	o := orderFromRow(paid)
	publishOrderEvent(ctx, s.publisher, enum.EventOrderPaid, username, &o)
	return &o, nil
}
