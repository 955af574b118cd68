// Package events carries order lifecycle notifications to whoever is
// listening: the admin WebSocket feed and the kitchen queue. Publishing is
// best effort; a failed publish never fails the request that caused it.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/toastysunday/api/internal/money"
)

// Order is the order snapshot attached to an event.
type Order struct {
	Username string      `json:"username"`
	Cost     money.Money `json:"cost"`
	Paid     bool        `json:"paid"`
	Toasties []string    `json:"toasties"`
	Drinks   []string    `json:"drinks"`
	Deserts  []string    `json:"deserts"`
}

// Event is one lifecycle transition. Order is nil for deletions.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Username   string    `json:"username"`
	Order      *Order    `json:"order,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New stamps an event with a fresh ID and the current time.
func New(eventType, username string, order *Order) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Username:   username,
		Order:      order,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
