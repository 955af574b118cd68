// Package payment adapts the card payment provider to the two operations the
// reconciliation flow needs (create and retrieve an intent) plus webhook
// signature verification.
package payment

import (
	"errors"

	"github.com/toastysunday/api/internal/money"
)

var (
	// ErrProvider wraps any failure talking to the provider. Callers show a
	// generic retry message and log the wrapped detail.
	ErrProvider = errors.New("payment provider error")
	// ErrIntentNotFound is returned when the provider has no such intent.
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrInvalidSignature is returned for webhook payloads that fail
	// verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Intent is the provider-side payment attempt as seen by this service.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       money.Money
	Currency     string
	Status       string
	Metadata     map[string]string
}

// Event is a verified webhook delivery. IntentID is set for payment intent
// events.
type Event struct {
	ID       string
	Type     string
	IntentID string
}

// CreateIntentParams describes a new intent.
type CreateIntentParams struct {
	Amount   money.Money
	Currency string
	Metadata map[string]string
}
