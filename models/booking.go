package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking statuses.
const (
	BookingHold      = "hold"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Court statuses.
const (
	CourtActive      = "active"
	CourtMaintenance = "maintenance"
	CourtRetired     = "retired"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

type Booking struct {
	ID            string          `json:"id"`
	CourtID       string          `json:"court_id"`
	StartAt       time.Time       `json:"start_at"`
	EndAt         time.Time       `json:"end_at"`
	Status        string          `json:"status"` // hold, confirmed, cancelled
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	OwnerID       string          `json:"owner_id,omitempty"` // empty for guest checkout
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	CheckoutHash  string          `json:"-"` // bcrypt hash of the guest checkout token
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartAt, End: b.EndAt}
}

// LiveHold reports whether the booking still blocks its slot as a hold.
func (b *Booking) LiveHold(now time.Time) bool {
	return b.Status == BookingHold && b.ExpiresAt != nil && b.ExpiresAt.After(now)
}

// Blocking reports whether the booking counts against availability:
// confirmed, or a hold that has not expired yet.
func (b *Booking) Blocking(now time.Time) bool {
	return b.Status == BookingConfirmed || b.LiveHold(now)
}

type Court struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ClubID string `json:"club_id"`
	Status string `json:"status"` // active, maintenance, retired
}

func (c *Court) Bookable() bool {
	return c.Status == CourtActive
}

// CourtBlock is an administrative override that makes a court
// unavailable for the covered interval.
type CourtBlock struct {
	ID       string    `json:"id"`
	CourtID  string    `json:"court_id"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Blocking bool      `json:"blocking"`
	Reason   string    `json:"reason"`
}

func (cb *CourtBlock) Interval() Interval {
	return Interval{Start: cb.StartAt, End: cb.EndAt}
}
