package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/toastysunday/api/internal/enum"
	"github.com/toastysunday/api/internal/eventlog"
	"github.com/toastysunday/api/internal/middleware"
	"github.com/toastysunday/api/internal/money"
	"github.com/toastysunday/api/internal/payment"
	"github.com/toastysunday/api/internal/service"
)

// maxWebhookBody bounds the raw webhook payload read before verification.
const maxWebhookBody = 64 << 10

const defaultWebhookTimeout = 5 * time.Second

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService; narrow interface for testability.
type PaymentServicer interface {
	CreateIntent(ctx context.Context, username string) (*service.IntentResult, error)
	CreateDonationIntent(ctx context.Context, username string, amount money.Money) (*service.IntentResult, error)
	ReconcileRedirect(ctx context.Context, intentID, caller string) (*service.Order, error)
	ReconcileWebhook(ctx context.Context, intentID string) (*service.Order, error)
}

// WebhookVerifier checks provider webhook signatures.
// Satisfied by *payment.Stripe.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (payment.Event, error)
}

// PaymentHandler handles payment intent, confirmation and webhook endpoints.
type PaymentHandler struct {
	svc            PaymentServicer
	verifier       WebhookVerifier
	processed      eventlog.Log
	webhookTimeout time.Duration
}

// NewPaymentHandler creates a new PaymentHandler. A nil processed log
// disables webhook de-duplication.
func NewPaymentHandler(svc PaymentServicer, verifier WebhookVerifier, processed eventlog.Log, webhookTimeout time.Duration) *PaymentHandler {
	if processed == nil {
		processed = eventlog.Nop{}
	}
	if webhookTimeout <= 0 {
		webhookTimeout = defaultWebhookTimeout
	}
	return &PaymentHandler{
		svc:            svc,
		verifier:       verifier,
		processed:      processed,
		webhookTimeout: webhookTimeout,
	}
}

// RegisterRoutes registers the authenticated payment endpoints. The webhook
// is public and CreateIntent sits under the per-user order routes, so both
// are mounted separately.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/donation", h.CreateDonationIntent)
	r.Post("/payments/{intentID}/confirm", h.Confirm)
}

// --- Request / Response types ---

type donationRequest struct {
	Amount money.Money `json:"amount"`
}

type donationConfirmResponse struct {
	IntentID string `json:"intent_id"`
	Purpose  string `json:"purpose"`
}

// --- Handlers ---

// CreateIntent handles POST /orders/{username}/payment-intent.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	log := requestLog(r).WithField("username", username)

	result, err := h.svc.CreateIntent(r.Context(), username)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyPaid) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// CreateDonationIntent handles POST /payments/donation.
func (h *PaymentHandler) CreateDonationIntent(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req donationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.CreateDonationIntent(r.Context(), claims.Username, req.Amount)
	if err != nil {
		writeServiceError(w, requestLog(r).WithField("username", claims.Username), err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Confirm handles POST /payments/{intentID}/confirm, the browser redirect
// after the provider's checkout.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	intentID := chi.URLParam(r, "intentID")
	log := requestLog(r).WithFields(logrus.Fields{"intent_id": intentID, "username": claims.Username})

	o, err := h.svc.ReconcileRedirect(r.Context(), intentID, claims.Username)
	if err != nil {
		if errors.Is(err, service.ErrDonationIntent) {
			writeJSON(w, http.StatusOK, donationConfirmResponse{IntentID: intentID, Purpose: enum.PurposeDonation})
			return
		}
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Webhook handles POST /payments/webhook. Once the signature checks out the
// provider always gets a 200, whatever reconciliation makes of the event.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := h.verifier.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		requestLog(r).WithError(err).Warn("webhook rejected")
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	log := requestLog(r).WithFields(logrus.Fields{
		"event_id":   ev.ID,
		"event_type": ev.Type,
		"intent_id":  ev.IntentID,
	})

	if ev.Type != enum.WebhookIntentSucceeded || ev.IntentID == "" {
		log.Debug("webhook event ignored")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	// Reconciliation outlives a dropped provider connection but not the
	// configured timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.webhookTimeout)
	defer cancel()

	seen, err := h.processed.Seen(ctx, ev.ID)
	if err != nil {
		log.WithError(err).Warn("webhook event log unavailable")
	}
	if seen {
		log.Info("webhook event already processed")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	o, err := h.svc.ReconcileWebhook(ctx, ev.IntentID)
	switch {
	case err == nil:
		log.WithFields(logrus.Fields{"username": o.Username, "cost": o.Cost.String()}).Info("webhook reconciled order")
	case errors.Is(err, service.ErrDonationIntent):
		log.Info("donation received")
	default:
		log.WithError(err).Error("webhook reconciliation failed")
	}

	if !webhookSettled(err) {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if err := h.processed.Mark(ctx, ev.ID); err != nil {
		log.WithError(err).Warn("record webhook event")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// webhookSettled reports whether a reconciliation outcome is final for the
// event. Provider and unexpected failures stay unrecorded so a resent event
// is reconciled again.
func webhookSettled(err error) bool {
	return err == nil ||
		errors.Is(err, service.ErrDonationIntent) ||
		errors.Is(err, service.ErrOrderNotFound) ||
		errors.Is(err, service.ErrAmountMismatch) ||
		errors.Is(err, service.ErrIdentityMismatch) ||
		errors.Is(err, payment.ErrIntentNotFound)
}
