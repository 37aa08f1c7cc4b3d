package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentIntent statuses. Transitions are monotonic: pending may move
// to succeeded, cancelled or expired; the terminal three never change.
const (
	IntentPending   = "pending"
	IntentSucceeded = "succeeded"
	IntentCancelled = "cancelled"
	IntentExpired   = "expired"
)

// PaymentTransaction statuses.
const (
	TxInitiated = "initiated"
	TxSuccess   = "success"
	TxFailed    = "failed"
)

// PaymentEvent types.
const (
	EventCreated               = "CREATED"
	EventSuccess               = "SUCCESS"
	EventFailed                = "FAILED"
	EventExpired               = "EXPIRED"
	EventCancelled             = "CANCELLED"
	EventCancelledDueToRefGone = "CANCELLED_DUE_TO_REFERENCE_CANCELLED"
)

// Reference types a PaymentIntent may point at.
const (
	RefBooking = "booking"
)

type PaymentIntent struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id,omitempty"` // empty for guest checkout
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"` // pending, succeeded, cancelled, expired
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the intent can no longer change status.
func (pi *PaymentIntent) Terminal() bool {
	return pi.Status == IntentSucceeded || pi.Status == IntentCancelled || pi.Status == IntentExpired
}

// Overdue reports whether a pending intent has outlived its TTL.
func (pi *PaymentIntent) Overdue(now time.Time) bool {
	return pi.Status == IntentPending && pi.ExpiresAt != nil && !pi.ExpiresAt.After(now)
}

// PaymentTransaction is an immutable per-attempt record owned by its
// intent; rows are appended, never mutated.
type PaymentTransaction struct {
	ID              string          `json:"id"`
	IntentID        string          `json:"intent_id"`
	Provider        string          `json:"provider"`
	ProviderRef     string          `json:"provider_ref"`
	ProviderEventID string          `json:"provider_event_id"`
	Status          string          `json:"status"` // initiated, success, failed
	Amount          decimal.Decimal `json:"amount"`
	RawResponse     string          `json:"raw_response"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PaymentEvent is an append-only audit row, one per intent state
// change. It is for observability and replay, never for control flow.
type PaymentEvent struct {
	ID        string    `json:"id"`
	IntentID  string    `json:"intent_id"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload"` // free-form JSON
	CreatedAt time.Time `json:"created_at"`
}

// ProviderEvent is a settlement outcome delivered by a payment
// provider (or the simulator), possibly more than once per event id.
type ProviderEvent struct {
	EventID  string `json:"provider_event_id"`
	IntentID string `json:"intent_id"`
	Outcome  string `json:"outcome"` // success, failure
	Provider string `json:"provider"`
	Raw      string `json:"raw,omitempty"`
}

// Provider outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
