package store

import (
	"context"
	"time"

	"court-booking/models"
)

// Store bundles the persistence surface the services depend on.
// RunInTx executes fn against a transaction-bound Store; the backing
// implementation must serialize conflicting writers so that the
// overlap-check-then-insert sequence in CreateHold cannot interleave.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Store) error) error
	Bookings() BookingStore
	Payments() PaymentStore
}

// BookingStore persists Booking aggregates plus the read-only catalog
// rows (courts, administrative blocks) the conflict check consumes.
// Inside RunInTx, Get reads act as locking reads.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking) error

	// FindOverlapping returns bookings on the court whose interval
	// overlaps iv and which still block the slot at now: confirmed
	// rows plus holds with expires_at > now.
	FindOverlapping(ctx context.Context, courtID string, iv models.Interval, now time.Time) ([]*models.Booking, error)

	// FindExpiredHolds returns up to limit holds with expires_at <= now.
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)

	GetCourt(ctx context.Context, id string) (*models.Court, error)
	FindBlocks(ctx context.Context, courtID string, iv models.Interval) ([]*models.CourtBlock, error)
}

// PaymentStore persists PaymentIntent aggregates and their append-only
// transaction and event rows.
type PaymentStore interface {
	CreateIntent(ctx context.Context, pi *models.PaymentIntent) error
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	UpdateIntent(ctx context.Context, pi *models.PaymentIntent) error
	FindIntentByReference(ctx context.Context, refType, refID string) (*models.PaymentIntent, error)

	// FindExpiredPending returns up to limit pending intents with
	// expires_at <= now.
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.PaymentIntent, error)

	AppendTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	FindTransactionByProviderEvent(ctx context.Context, providerEventID string) (*models.PaymentTransaction, error)

	AppendEvent(ctx context.Context, ev *models.PaymentEvent) error
	ListEvents(ctx context.Context, intentID string) ([]*models.PaymentEvent, error)
}
