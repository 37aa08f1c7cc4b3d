package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"court-booking/config"
	"court-booking/internal/clock"
	"court-booking/internal/notify"
	"court-booking/internal/status"
	"court-booking/internal/store"
	"court-booking/models"
	"court-booking/monitoring"
	"court-booking/utils"
)

// ReservationService owns the Booking lifecycle: hold creation with
// conflict detection, confirmation and cancellation. All state
// transitions run inside store transactions; the conflict check and
// the insert in CreateHold share one transaction so two overlapping
// holds can never both commit.
type ReservationService struct {
	store     store.Store
	clock     clock.Clock
	conflicts *ConflictChecker
	notifier  notify.Notifier
	holdCache *redis.Client // optional live-hold mirror, best effort
	cfg       *config.Config
}

func NewReservationService(st store.Store, clk clock.Clock, notifier notify.Notifier, holdCache *redis.Client, cfg *config.Config) *ReservationService {
	return &ReservationService{
		store:     st,
		clock:     clk,
		conflicts: NewConflictChecker(),
		notifier:  notifier,
		holdCache: holdCache,
		cfg:       cfg,
	}
}

type CreateHoldRequest struct {
	CourtID       string          `json:"court_id"`
	Interval      models.Interval `json:"interval"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	OwnerID       string          `json:"-"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
}

// CreateHold places a time-limited hold on the court. For guest
// checkout (no owner) the returned token authorizes the later payment
// calls; only its bcrypt hash is stored.
func (s *ReservationService) CreateHold(ctx context.Context, req CreateHoldRequest) (*models.Booking, string, error) {
	now := s.clock.Now()

	if !req.Interval.Valid() {
		return nil, "", status.Validation("interval end must be after start")
	}
	if req.Interval.Start.Before(now.Add(-s.cfg.HoldGrace)) {
		return nil, "", status.Validation("interval starts in the past")
	}
	if req.Price.IsNegative() {
		return nil, "", status.Validation("price must not be negative")
	}

	court, err := s.store.Bookings().GetCourt(ctx, req.CourtID)
	if err != nil {
		return nil, "", err
	}
	if !court.Bookable() {
		return nil, "", status.InvalidState("court is not bookable")
	}

	var checkoutToken string
	var checkoutHash string
	if req.OwnerID == "" {
		checkoutToken, err = utils.GenerateCode(16)
		if err != nil {
			return nil, "", err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(checkoutToken), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", err
		}
		checkoutHash = string(hash)
	}

	id, err := newID("bkg")
	if err != nil {
		return nil, "", err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	expiresAt := now.Add(s.cfg.HoldTTL)
	booking := &models.Booking{
		ID:            id,
		CourtID:       req.CourtID,
		StartAt:       req.Interval.Start,
		EndAt:         req.Interval.End,
		Status:        models.BookingHold,
		ExpiresAt:     &expiresAt,
		Price:         req.Price,
		Currency:      currency,
		OwnerID:       req.OwnerID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CheckoutHash:  checkoutHash,
	}

	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := s.conflicts.Check(ctx, tx, req.CourtID, req.Interval, now); err != nil {
			return err
		}
		return tx.Bookings().CreateBooking(ctx, booking)
	})
	if err != nil {
		if status.CodeOf(err) == status.CodeConflict {
			monitoring.TrackHoldConflict(req.CourtID)
		}
		return nil, "", err
	}

	monitoring.TrackHoldCreated(req.CourtID)
	s.mirrorHold(ctx, booking)
	s.notifier.HoldCreated(booking)

	return booking, checkoutToken, nil
}

// Confirm promotes a live hold to a confirmed booking. Confirming an
// already confirmed booking is a no-op.
func (s *ReservationService) Confirm(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking *models.Booking
	var changed bool
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		var err error
		booking, changed, err = s.ConfirmInTx(ctx, tx, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.dropMirror(ctx, booking)
		s.notifier.BookingConfirmed(booking)
		monitoring.TrackBookingConfirmed(booking.CourtID)
	}
	return booking, nil
}

// ConfirmInTx is the confirmation primitive. It runs against the
// caller's transaction so payment settlement can confirm the booking
// atomically with the intent transition. Callers are responsible for
// post-commit side effects when changed is true.
func (s *ReservationService) ConfirmInTx(ctx context.Context, tx store.Store, bookingID string) (*models.Booking, bool, error) {
	b, err := tx.Bookings().GetBooking(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}

	switch b.Status {
	case models.BookingConfirmed:
		return b, false, nil
	case models.BookingCancelled:
		return nil, false, status.InvalidState("booking is cancelled")
	}

	if b.ExpiresAt != nil && !b.ExpiresAt.After(s.clock.Now()) {
		return nil, false, status.Expired("hold has expired")
	}

	b.Status = models.BookingConfirmed
	b.ExpiresAt = nil
	if err := tx.Bookings().UpdateBooking(ctx, b); err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Cancel releases a booking on behalf of caller. Cancelling an already
// cancelled booking is a no-op.
func (s *ReservationService) Cancel(ctx context.Context, bookingID string, caller Caller) (*models.Booking, error) {
	var booking *models.Booking
	var changed bool
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := tx.Bookings().GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorizeCaller(b, caller); err != nil {
			return err
		}
		if b.Status == models.BookingCancelled {
			booking = b
			return nil
		}
		b.Status = models.BookingCancelled
		b.ExpiresAt = nil
		if err := tx.Bookings().UpdateBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.dropMirror(ctx, booking)
		s.notifier.BookingCancelled(booking)
	}
	return booking, nil
}

// Get returns the booking without taking locks.
func (s *ReservationService) Get(ctx context.Context, bookingID string, caller Caller) (*models.Booking, error) {
	b, err := s.store.Bookings().GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeCaller(b, caller); err != nil {
		return nil, err
	}
	return b, nil
}

// Availability returns the busy intervals (blocks plus blocking
// bookings) on the court within iv. Reads the database directly; the
// redis mirror is advisory only.
func (s *ReservationService) Availability(ctx context.Context, courtID string, iv models.Interval) ([]models.Interval, error) {
	if !iv.Valid() {
		return nil, status.Validation("interval end must be after start")
	}
	now := s.clock.Now()

	blocks, err := s.store.Bookings().FindBlocks(ctx, courtID, iv)
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.Bookings().FindOverlapping(ctx, courtID, iv, now)
	if err != nil {
		return nil, err
	}

	busy := make([]models.Interval, 0, len(blocks)+len(bookings))
	for _, cb := range blocks {
		if cb.Blocking {
			busy = append(busy, cb.Interval())
		}
	}
	for _, b := range bookings {
		busy = append(busy, b.Interval())
	}
	return busy, nil
}

// mirrorHold keeps a redis copy of live holds for cheap dashboard
// lookups. The database stays the source of truth; failures here are
// logged and dropped.
func (s *ReservationService) mirrorHold(ctx context.Context, b *models.Booking) {
	if s.holdCache == nil || b.ExpiresAt == nil {
		return
	}
	key := holdKey(b.CourtID, b.ID)
	ttl := b.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return
	}
	if err := s.holdCache.Set(ctx, key, b.ID, ttl).Err(); err != nil {
		slog.Error("hold mirror set failed", "booking_id", b.ID, "error", err)
	}
}

func (s *ReservationService) dropMirror(ctx context.Context, b *models.Booking) {
	if s.holdCache == nil {
		return
	}
	if err := s.holdCache.Del(ctx, holdKey(b.CourtID, b.ID)).Err(); err != nil {
		slog.Error("hold mirror del failed", "booking_id", b.ID, "error", err)
	}
}

func holdKey(courtID, bookingID string) string {
	return fmt.Sprintf("hold:%s:%s", courtID, bookingID)
}

func newID(prefix string) (string, error) {
	code, err := utils.GenerateCode(8)
	if err != nil {
		return "", err
	}
	return prefix + "_" + code, nil
}
