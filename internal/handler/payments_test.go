package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/toastysunday/api/internal/eventlog"
	"github.com/toastysunday/api/internal/handler"
	"github.com/toastysunday/api/internal/middleware"
	"github.com/toastysunday/api/internal/money"
	"github.com/toastysunday/api/internal/payment"
	"github.com/toastysunday/api/internal/service"
)

const testWebhookSecret = "whsec_test"

// --- Mock PaymentServicer ---

type mockPaymentService struct {
	createIntentFn      func(ctx context.Context, username string) (*service.IntentResult, error)
	createDonationFn    func(ctx context.Context, username string, amount money.Money) (*service.IntentResult, error)
	reconcileRedirectFn func(ctx context.Context, intentID, caller string) (*service.Order, error)
	reconcileWebhookFn  func(ctx context.Context, intentID string) (*service.Order, error)
}

func (m *mockPaymentService) CreateIntent(ctx context.Context, username string) (*service.IntentResult, error) {
	if m.createIntentFn != nil {
		return m.createIntentFn(ctx, username)
	}
	return nil, errNotStubbed
}

func (m *mockPaymentService) CreateDonationIntent(ctx context.Context, username string, amount money.Money) (*service.IntentResult, error) {
	if m.createDonationFn != nil {
		return m.createDonationFn(ctx, username, amount)
	}
	return nil, errNotStubbed
}

func (m *mockPaymentService) ReconcileRedirect(ctx context.Context, intentID, caller string) (*service.Order, error) {
	if m.reconcileRedirectFn != nil {
		return m.reconcileRedirectFn(ctx, intentID, caller)
	}
	return nil, errNotStubbed
}

func (m *mockPaymentService) ReconcileWebhook(ctx context.Context, intentID string) (*service.Order, error) {
	if m.reconcileWebhookFn != nil {
		return m.reconcileWebhookFn(ctx, intentID)
	}
	return nil, errNotStubbed
}

// --- Mock event log ---

type memoryEventLog struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryEventLog() *memoryEventLog {
	return &memoryEventLog{seen: map[string]bool{}}
}

func (l *memoryEventLog) Seen(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[id], nil
}

func (l *memoryEventLog) Mark(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[id] = true
	return nil
}

// --- Test helpers ---

func setupPaymentRouter(svc *mockPaymentService, processed *memoryEventLog) *chi.Mux {
	verifier := payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})
	var processedLog eventlog.Log
	if processed != nil {
		processedLog = processed
	}
	h := handler.NewPaymentHandler(svc, verifier, processedLog, time.Second)

	r := chi.NewRouter()
	r.Post("/payments/webhook", h.Webhook)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		r.With(middleware.RequireOwnerOrAdmin(testAdmins, "username")).Post("/orders/{username}/payment-intent", h.CreateIntent)
		h.RegisterRoutes(r)
	})
	return r
}

func signedEvent(t *testing.T, id, eventType, objectType, objectID string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2023-10-16",
		"data": map[string]any{
			"object": map[string]any{"id": objectID, "object": objectType},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func postWebhook(router http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func paidOrder(username string) *service.Order {
	o := testOrder(username)
	o.Paid = true
	o.PaymentIntentID = "pi_123"
	return o
}

// --- Payment intent ---

func TestCreateIntent_HappyPath(t *testing.T) {
	svc := &mockPaymentService{
		createIntentFn: func(_ context.Context, username string) (*service.IntentResult, error) {
			return &service.IntentResult{IntentID: "pi_123", ClientSecret: "pi_123_secret", Amount: money.MustParse("7.25"), Currency: "gbp"}, nil
		},
	}

	rr := doAuthRequest(t, setupPaymentRouter(svc, nil), "POST", "/orders/alice/payment-intent", nil, "alice")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["client_secret"] != "pi_123_secret" || resp["intent_id"] != "pi_123" || resp["amount"] != "7.25" {
		t.Errorf("got %v", resp)
	}
}

func TestCreateIntent_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already paid", service.ErrAlreadyPaid, http.StatusConflict},
		{"no order", service.ErrOrderNotFound, http.StatusNotFound},
		{"provider down", fmt.Errorf("%w: create payment intent: card_error", payment.ErrProvider), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{
				createIntentFn: func(context.Context, string) (*service.IntentResult, error) { return nil, tt.err },
			}
			rr := doAuthRequest(t, setupPaymentRouter(svc, nil), "POST", "/orders/alice/payment-intent", nil, "alice")
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusBadGateway {
				if resp := decodeBody(t, rr); resp["error"] != "payment failed, try again" {
					t.Errorf("provider detail leaked: %v", resp["error"])
				}
			}
		})
	}
}

func TestCreateIntent_OtherUserForbidden(t *testing.T) {
	rr := doAuthRequest(t, setupPaymentRouter(&mockPaymentService{}, nil), "POST", "/orders/bob/payment-intent", nil, "alice")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", rr.Code)
	}
}

// --- Donation ---

func TestCreateDonationIntent(t *testing.T) {
	svc := &mockPaymentService{
		createDonationFn: func(_ context.Context, username string, amount money.Money) (*service.IntentResult, error) {
			if username != "alice" {
				t.Errorf("username: got %q", username)
			}
			if amount > money.MustParse("100") {
				return nil, service.ErrInvalidAmount
			}
			return &service.IntentResult{IntentID: "pi_don", ClientSecret: "s", Amount: amount, Currency: "gbp"}, nil
		},
	}
	router := setupPaymentRouter(svc, nil)

	rr := doAuthRequest(t, router, "POST", "/payments/donation", map[string]any{"amount": "2.50"}, "alice")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201; body: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeBody(t, rr); resp["amount"] != "2.50" {
		t.Errorf("amount: got %v", resp["amount"])
	}

	rr = doAuthRequest(t, router, "POST", "/payments/donation", map[string]any{"amount": 500}, "alice")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("oversized donation: got %d, want 400", rr.Code)
	}
}

// --- Redirect confirmation ---

func TestConfirm_HappyPath(t *testing.T) {
	svc := &mockPaymentService{
		reconcileRedirectFn: func(_ context.Context, intentID, caller string) (*service.Order, error) {
			if intentID != "pi_123" || caller != "alice" {
				t.Errorf("got intent %q caller %q", intentID, caller)
			}
			return paidOrder(caller), nil
		},
	}

	rr := doAuthRequest(t, setupPaymentRouter(svc, nil), "POST", "/payments/pi_123/confirm", nil, "alice")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeBody(t, rr); resp["paid"] != true {
		t.Errorf("paid: got %v", resp["paid"])
	}
}

func TestConfirm_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"identity", service.ErrIdentityMismatch, http.StatusForbidden},
		{"amount", fmt.Errorf("%w: paid 10.00 gbp", service.ErrAmountMismatch), http.StatusConflict},
		{"not succeeded", &service.PaymentNotSucceededError{Status: "processing"}, http.StatusPaymentRequired},
		{"no intent", fmt.Errorf("%w: pi_nope", payment.ErrIntentNotFound), http.StatusNotFound},
		{"order deleted", service.ErrOrderNotFound, http.StatusNotFound},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{
				reconcileRedirectFn: func(context.Context, string, string) (*service.Order, error) { return nil, tt.err },
			}
			rr := doAuthRequest(t, setupPaymentRouter(svc, nil), "POST", "/payments/pi_123/confirm", nil, "alice")
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
			if tt.want == http.StatusPaymentRequired {
				if resp := decodeBody(t, rr); resp["status"] != "processing" {
					t.Errorf("status detail: got %v", resp["status"])
				}
			}
		})
	}
}

func TestConfirm_Donation(t *testing.T) {
	svc := &mockPaymentService{
		reconcileRedirectFn: func(context.Context, string, string) (*service.Order, error) {
			return nil, service.ErrDonationIntent
		},
	}

	rr := doAuthRequest(t, setupPaymentRouter(svc, nil), "POST", "/payments/pi_don/confirm", nil, "alice")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if resp := decodeBody(t, rr); resp["purpose"] != "donation" {
		t.Errorf("purpose: got %v", resp["purpose"])
	}
}

// --- Webhook ---

func TestWebhook_ReconcilesSucceededIntent(t *testing.T) {
	var reconciled []string
	svc := &mockPaymentService{
		reconcileWebhookFn: func(ctx context.Context, intentID string) (*service.Order, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected a reconciliation deadline")
			}
			reconciled = append(reconciled, intentID)
			return paidOrder("alice"), nil
		},
	}
	processed := newMemoryEventLog()
	router := setupPaymentRouter(svc, processed)

	payload, sig := signedEvent(t, "evt_1", "payment_intent.succeeded", "payment_intent", "pi_123")
	rr := postWebhook(router, payload, sig)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	if len(reconciled) != 1 || reconciled[0] != "pi_123" {
		t.Errorf("reconciled: got %v", reconciled)
	}
	if !processed.seen["evt_1"] {
		t.Error("event should be recorded as processed")
	}

	// Redelivery is acknowledged without reconciling again.
	rr = postWebhook(router, payload, sig)
	if rr.Code != http.StatusOK {
		t.Fatalf("redelivery status: got %d, want 200", rr.Code)
	}
	if len(reconciled) != 1 {
		t.Errorf("redelivery reconciled again: %v", reconciled)
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	svc := &mockPaymentService{
		reconcileWebhookFn: func(context.Context, string) (*service.Order, error) {
			t.Fatal("must not reconcile unverified events")
			return nil, nil
		},
	}
	router := setupPaymentRouter(svc, nil)

	payload, sig := signedEvent(t, "evt_1", "payment_intent.succeeded", "payment_intent", "pi_123")
	tampered := bytes.Replace(payload, []byte("pi_123"), []byte("pi_999"), 1)

	for name, rr := range map[string]*httptest.ResponseRecorder{
		"tampered": postWebhook(router, tampered, sig),
		"missing":   postWebhook(router, payload, ""),
		"garbage":   postWebhook(router, []byte("not json"), sig),
	} {
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", name, rr.Code)
		}
	}
}

func TestWebhook_AcknowledgesReconcileFailures(t *testing.T) {
	tests := []struct {
		err        error
		wantMarked bool
	}{
		{service.ErrOrderNotFound, true},
		{service.ErrAmountMismatch, true},
		{service.ErrIdentityMismatch, true},
		{service.ErrDonationIntent, true},
		{payment.ErrIntentNotFound, true},
		{fmt.Errorf("%w: timeout", payment.ErrProvider), false},
		{&service.PaymentNotSucceededError{Status: "processing"}, false},
		{errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		svc := &mockPaymentService{
			reconcileWebhookFn: func(context.Context, string) (*service.Order, error) { return nil, tt.err },
		}
		processed := newMemoryEventLog()
		payload, sig := signedEvent(t, "evt_2", "payment_intent.succeeded", "payment_intent", "pi_123")
		rr := postWebhook(setupPaymentRouter(svc, processed), payload, sig)
		if rr.Code != http.StatusOK {
			t.Errorf("%v: got %d, want 200", tt.err, rr.Code)
		}
		if processed.seen["evt_2"] != tt.wantMarked {
			t.Errorf("%v: recorded as processed = %v, want %v", tt.err, processed.seen["evt_2"], tt.wantMarked)
		}
	}
}

func TestWebhook_ResendAfterProviderFailureReconciles(t *testing.T) {
	calls := 0
	svc := &mockPaymentService{
		reconcileWebhookFn: func(context.Context, string) (*service.Order, error) {
			calls++
			if calls == 1 {
				return nil, fmt.Errorf("%w: timeout", payment.ErrProvider)
			}
			return paidOrder("alice"), nil
		},
	}
	processed := newMemoryEventLog()
	router := setupPaymentRouter(svc, processed)

	payload, sig := signedEvent(t, "evt_5", "payment_intent.succeeded", "payment_intent", "pi_123")
	if rr := postWebhook(router, payload, sig); rr.Code != http.StatusOK {
		t.Fatalf("first delivery: got %d, want 200", rr.Code)
	}
	if processed.seen["evt_5"] {
		t.Fatal("failed delivery must not be recorded as processed")
	}

	if rr := postWebhook(router, payload, sig); rr.Code != http.StatusOK {
		t.Fatalf("resend: got %d, want 200", rr.Code)
	}
	if calls != 2 {
		t.Errorf("reconcile calls: got %d, want 2", calls)
	}
	if !processed.seen["evt_5"] {
		t.Error("reconciled resend should be recorded as processed")
	}
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	svc := &mockPaymentService{
		reconcileWebhookFn: func(context.Context, string) (*service.Order, error) {
			t.Fatal("must not reconcile")
			return nil, nil
		},
	}
	router := setupPaymentRouter(svc, nil)

	payload, sig := signedEvent(t, "evt_3", "payment_intent.payment_failed", "payment_intent", "pi_123")
	if rr := postWebhook(router, payload, sig); rr.Code != http.StatusOK {
		t.Errorf("failed intent: got %d, want 200", rr.Code)
	}

	payload, sig = signedEvent(t, "evt_4", "charge.succeeded", "charge", "ch_123")
	if rr := postWebhook(router, payload, sig); rr.Code != http.StatusOK {
		t.Errorf("charge event: got %d, want 200", rr.Code)
	}
}
