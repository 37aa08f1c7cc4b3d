package provider

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"court-booking/models"
)

// Name identifies a payment provider implementation.
type Name string

const (
	ProviderSimulator Name = "simulator"
)

// CheckoutRequest is what the provider needs to start collecting a
// payment for an intent.
type CheckoutRequest struct {
	IntentID  string          `json:"intent_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference"`
}

// Checkout is the provider-side handle the client completes payment
// against (a QR payload, redirect URL, ...).
type Checkout struct {
	ProviderRef string `json:"provider_ref"`
	Payload     string `json:"payload"`
}

// Provider abstracts an external payment processor. Outcomes arrive
// asynchronously on the channel set via SetEventChannel, at least
// once per provider event id; the consumer de-duplicates.
type Provider interface {
	GetName() Name

	// CreateCheckout registers the pending payment with the provider.
	// Called before any settlement transaction begins; no lock is held
	// across it.
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*Checkout, error)

	// SetEventChannel sets the channel settlement outcomes are
	// delivered on.
	SetEventChannel(ch chan *models.ProviderEvent)

	Close(ctx context.Context) error
}

// New creates a provider instance by name.
func New(name Name) (Provider, error) {
	switch name {
	case ProviderSimulator:
		return NewSimulator(), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", name)
	}
}
