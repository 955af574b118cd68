package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/toastysunday/api/internal/database"
	"github.com/toastysunday/api/internal/money"
	"github.com/toastysunday/api/internal/payment"
)

// --- Mock implementations ---

type mockProvider struct {
	createIntentFn   func(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error)
	retrieveIntentFn func(ctx context.Context, id string) (payment.Intent, error)
}

func (m *mockProvider) CreateIntent(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error) {
	return m.createIntentFn(ctx, p)
}
func (m *mockProvider) RetrieveIntent(ctx context.Context, id string) (payment.Intent, error) {
	return m.retrieveIntentFn(ctx, id)
}

// --- Test helpers ---

func newTestPaymentService(store *mockOrderStore, provider *mockProvider) (*PaymentService, *mockTx, *recordingPublisher) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	pub := &recordingPublisher{}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewPaymentService(store, pool, newStore, provider, "gbp", money.MustParse("100"), pub), tx, pub
}

func succeededIntent(id, username string, pence int64) payment.Intent {
	return payment.Intent{
		ID:       id,
		Amount:   money.FromMinor(pence),
		Currency: "gbp",
		Status:   "succeeded",
		Metadata: map[string]string{"username": username, "purpose": "order"},
	}
}

func providerReturning(intent payment.Intent) *mockProvider {
	return &mockProvider{
		retrieveIntentFn: func(ctx context.Context, id string) (payment.Intent, error) {
			return intent, nil
		},
	}
}

// statefulOrderStore backs one order whose paid flag flips on MarkOrderPaid,
// like the conditional UPDATE does.
func statefulOrderStore(username, cost string) (*mockOrderStore, *int) {
	row := orderRow(username, cost, false)
	marks := 0
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, u string) (database.Order, error) {
			if u != username {
				return database.Order{}, pgx.ErrNoRows
			}
			return row, nil
		},
		getOrderForUpdateFn: func(ctx context.Context, u string) (database.Order, error) {
			if u != username {
				return database.Order{}, pgx.ErrNoRows
			}
			return row, nil
		},
		markOrderPaidFn: func(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error) {
			if row.Paid {
				return database.Order{}, pgx.ErrNoRows
			}
			marks++
			row.Paid = true
			row.PaymentIntentID = arg.PaymentIntentID
			return row, nil
		},
	}
	return store, &marks
}

// =====================
// CreateIntent
// =====================

func TestCreateIntent_UsesStoredCost(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	var got payment.CreateIntentParams
	provider := &mockProvider{
		createIntentFn: func(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error) {
			got = p
			return payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil
		},
	}
	svc, _, _ := newTestPaymentService(store, provider)

	res, err := svc.CreateIntent(context.Background(), "alice")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if res.IntentID != "pi_1" || res.ClientSecret != "pi_1_secret" {
		t.Errorf("result: got %+v", res)
	}
	if got.Amount.Minor() != 725 || got.Currency != "gbp" {
		t.Errorf("intent params: got %s %s", got.Amount, got.Currency)
	}
	if got.Metadata["username"] != "alice" || got.Metadata["purpose"] != "order" {
		t.Errorf("metadata: got %v", got.Metadata)
	}
}

func TestCreateIntent_NotFound(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	svc, _, _ := newTestPaymentService(store, &mockProvider{})

	if _, err := svc.CreateIntent(context.Background(), "bob"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestCreateIntent_AlreadyPaid(t *testing.T) {
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, username string) (database.Order, error) {
			return orderRow(username, "7.25", true), nil
		},
	}
	svc, _, _ := newTestPaymentService(store, &mockProvider{})

	if _, err := svc.CreateIntent(context.Background(), "alice"); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got: %v", err)
	}
}

func TestCreateIntent_ProviderError(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	provider := &mockProvider{
		createIntentFn: func(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error) {
			return payment.Intent{}, payment.ErrProvider
		},
	}
	svc, _, _ := newTestPaymentService(store, provider)

	if _, err := svc.CreateIntent(context.Background(), "alice"); !errors.Is(err, payment.ErrProvider) {
		t.Fatalf("expected ErrProvider, got: %v", err)
	}
}

func TestCreateDonationIntent(t *testing.T) {
	var got payment.CreateIntentParams
	provider := &mockProvider{
		createIntentFn: func(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error) {
			got = p
			return payment.Intent{ID: "pi_d", ClientSecret: "s"}, nil
		},
	}
	svc, _, _ := newTestPaymentService(&mockOrderStore{}, provider)
	ctx := context.Background()

	for _, amount := range []string{"0", "-1", "100.01"} {
		if _, err := svc.CreateDonationIntent(ctx, "alice", money.MustParse(amount)); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %s: expected ErrInvalidAmount, got: %v", amount, err)
		}
	}
	if _, err := svc.CreateDonationIntent(ctx, "alice", money.MustParse("100")); err != nil {
		t.Fatalf("donation: %v", err)
	}
	if got.Metadata["purpose"] != "donation" || got.Amount.Minor() != 10000 {
		t.Errorf("intent params: got %+v", got)
	}
}

// =====================
// Reconcile
// =====================

func TestReconcile_RedirectMarksPaid(t *testing.T) {
	store, marks := statefulOrderStore("alice", "7.25")
	svc, tx, pub := newTestPaymentService(store, providerReturning(succeededIntent("pi_1", "alice", 725)))

	o, err := svc.ReconcileRedirect(context.Background(), "pi_1", "alice")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !o.Paid || o.PaymentIntentID != "pi_1" {
		t.Errorf("order: got %+v", o)
	}
	if *marks != 1 || !tx.committed {
		t.Errorf("marks=%d committed=%v", *marks, tx.committed)
	}
	if got := pub.types(); len(got) != 1 || got[0] != "order.paid" {
		t.Errorf("events: got %v", got)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store, marks := statefulOrderStore("alice", "7.25")
	svc, _, pub := newTestPaymentService(store, providerReturning(succeededIntent("pi_1", "alice", 725)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		o, err := svc.ReconcileRedirect(ctx, "pi_1", "alice")
		if err != nil {
			t.Fatalf("reconcile #%d: %v", i+1, err)
		}
		if !o.Paid {
			t.Fatalf("reconcile #%d: order not paid", i+1)
		}
	}
	if *marks != 1 {
		t.Errorf("order marked paid %d times, want 1", *marks)
	}
	if len(pub.events) != 1 {
		t.Errorf("paid event published %d times, want 1", len(pub.events))
	}
}

func TestReconcile_WebhookThenRedirect(t *testing.T) {
	store, marks := statefulOrderStore("alice", "5.00")
	svc, _, _ := newTestPaymentService(store, providerReturning(succeededIntent("pi_5", "alice", 500)))
	ctx := context.Background()

	o, err := svc.ReconcileWebhook(ctx, "pi_5")
	if err != nil {
		t.Fatalf("webhook reconcile: %v", err)
	}
	if !o.Paid {
		t.Fatal("webhook did not mark the order paid")
	}

	o, err = svc.ReconcileRedirect(ctx, "pi_5", "alice")
	if err != nil {
		t.Fatalf("redirect after webhook: %v", err)
	}
	if !o.Paid || *marks != 1 {
		t.Errorf("paid=%v marks=%d", o.Paid, *marks)
	}
}

func TestReconcile_AmountMismatch(t *testing.T) {
	store, marks := statefulOrderStore("alice", "12.50")
	svc, tx, _ := newTestPaymentService(store, providerReturning(succeededIntent("pi_1", "alice", 1000)))

	_, err := svc.ReconcileWebhook(context.Background(), "pi_1")
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got: %v", err)
	}
	if *marks != 0 || tx.committed {
		t.Errorf("order must stay unpaid: marks=%d committed=%v", *marks, tx.committed)
	}
	o, _ := svc.store.GetOrder(context.Background(), "alice")
	if o.Paid {
		t.Error("order flipped to paid")
	}
}

func TestReconcile_AmountWithinOnePenny(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	svc, _, _ := newTestPaymentService(store, providerReturning(succeededIntent("pi_1", "alice", 724)))

	if _, err := svc.ReconcileWebhook(context.Background(), "pi_1"); err != nil {
		t.Fatalf("1p difference should be tolerated: %v", err)
	}
}

func TestReconcile_CurrencyMismatch(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	intent := succeededIntent("pi_1", "alice", 725)
	intent.Currency = "eur"
	svc, _, _ := newTestPaymentService(store, providerReturning(intent))

	if _, err := svc.ReconcileWebhook(context.Background(), "pi_1"); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got: %v", err)
	}
}

func TestReconcile_NotSucceeded(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	intent := succeededIntent("pi_1", "alice", 725)
	intent.Status = "requires_payment_method"
	svc, _, _ := newTestPaymentService(store, providerReturning(intent))

	_, err := svc.ReconcileRedirect(context.Background(), "pi_1", "alice")
	if !errors.Is(err, ErrPaymentNotSucceeded) {
		t.Fatalf("expected ErrPaymentNotSucceeded, got: %v", err)
	}
	var nse *PaymentNotSucceededError
	if !errors.As(err, &nse) || nse.Status != "requires_payment_method" {
		t.Errorf("status not carried: %v", err)
	}
}

func TestReconcile_IdentityMismatch(t *testing.T) {
	store, marks := statefulOrderStore("alice", "7.25")
	svc, _, _ := newTestPaymentService(store, providerReturning(succeededIntent("pi_1", "alice", 725)))

	if _, err := svc.ReconcileRedirect(context.Background(), "pi_1", "mallory"); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got: %v", err)
	}
	if *marks != 0 {
		t.Error("order must not be paid by another user's confirmation")
	}
}

func TestReconcile_MissingMetadata(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	intent := succeededIntent("pi_1", "", 725)
	svc, _, _ := newTestPaymentService(store, providerReturning(intent))

	if _, err := svc.ReconcileWebhook(context.Background(), "pi_1"); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got: %v", err)
	}
}

func TestReconcile_OrderGone(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	svc, _, _ := newTestPaymentService(store, providerReturning(succeededIntent("pi_1", "bob", 725)))

	if _, err := svc.ReconcileWebhook(context.Background(), "pi_1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestReconcile_DonationIntent(t *testing.T) {
	store, marks := statefulOrderStore("alice", "7.25")
	intent := succeededIntent("pi_d", "alice", 725)
	intent.Metadata["purpose"] = "donation"
	svc, _, _ := newTestPaymentService(store, providerReturning(intent))

	if _, err := svc.ReconcileWebhook(context.Background(), "pi_d"); !errors.Is(err, ErrDonationIntent) {
		t.Fatalf("expected ErrDonationIntent, got: %v", err)
	}
	if *marks != 0 {
		t.Error("donation must never touch the order")
	}
}

func TestReconcile_ProviderNotFound(t *testing.T) {
	store, _ := statefulOrderStore("alice", "7.25")
	provider := &mockProvider{
		retrieveIntentFn: func(ctx context.Context, id string) (payment.Intent, error) {
			return payment.Intent{}, payment.ErrIntentNotFound
		},
	}
	svc, _, _ := newTestPaymentService(store, provider)

	if _, err := svc.ReconcileRedirect(context.Background(), "pi_x", "alice"); !errors.Is(err, payment.ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got: %v", err)
	}
}
