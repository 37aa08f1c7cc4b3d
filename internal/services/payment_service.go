package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"court-booking/config"
	"court-booking/internal/clock"
	"court-booking/internal/notify"
	"court-booking/internal/provider"
	"court-booking/internal/status"
	"court-booking/internal/store"
	"court-booking/models"
	"court-booking/monitoring"
)

// seenEventTTL bounds how long processed provider event ids are kept
// in the redis fast path. The payment_transactions row is the
// authoritative duplicate check; redis only sheds obvious repeats.
const seenEventTTL = 24 * time.Hour

// PaymentService owns the PaymentIntent state machine and, through the
// reservation confirmation primitive, the promotion of the referenced
// booking inside the same settlement transaction. Lock order is fixed:
// the intent row is always read before the booking row.
type PaymentService struct {
	store        store.Store
	clock        clock.Clock
	reservations *ReservationService
	notifier     notify.Notifier
	provider     provider.Provider
	redis        *redis.Client // optional provider-event de-dup fast path
	cfg          *config.Config
}

func NewPaymentService(st store.Store, clk clock.Clock, reservations *ReservationService, notifier notify.Notifier, prov provider.Provider, redisClient *redis.Client, cfg *config.Config) *PaymentService {
	return &PaymentService{
		store:        st,
		clock:        clk,
		reservations: reservations,
		notifier:     notifier,
		provider:     prov,
		redis:        redisClient,
		cfg:          cfg,
	}
}

// Caller identifies who is asking. Guest checkout authenticates with
// the opaque token handed out at hold creation; the webhook/simulator
// path is trusted and skips ownership checks.
type Caller struct {
	OwnerID       string
	CheckoutToken string
	Trusted       bool
}

// authorizeCaller gates access to a booking and everything hanging off
// it. Mismatches answer not_found rather than forbidden so callers
// cannot probe for foreign ids.
func authorizeCaller(b *models.Booking, caller Caller) error {
	if caller.Trusted {
		return nil
	}
	if b.OwnerID != "" {
		if caller.OwnerID == b.OwnerID {
			return nil
		}
		return status.NotFound("not found")
	}
	if caller.CheckoutToken == "" {
		return status.NotFound("not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(b.CheckoutHash), []byte(caller.CheckoutToken)); err != nil {
		return status.NotFound("not found")
	}
	return nil
}

type CreateIntentRequest struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Currency      string `json:"currency"`
	Caller        Caller `json:"-"`
}

// CreateIntent creates (or returns the existing) pending intent for a
// reference. A terminal cancelled/expired intent does not block a
// fresh one; a succeeded intent means the reference is already paid.
func (s *PaymentService) CreateIntent(ctx context.Context, req CreateIntentRequest) (*models.PaymentIntent, *provider.Checkout, error) {
	if req.ReferenceType != models.RefBooking {
		return nil, nil, status.Validation("unsupported reference type")
	}
	if req.ReferenceID == "" {
		return nil, nil, status.Validation("reference id is required")
	}

	now := s.clock.Now()

	var intent *models.PaymentIntent
	var created bool
	var lazilyExpired bool

	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		existing, err := tx.Payments().FindIntentByReference(ctx, req.ReferenceType, req.ReferenceID)
		if err != nil {
			return err
		}

		booking, err := tx.Bookings().GetBooking(ctx, req.ReferenceID)
		if err != nil {
			return err
		}
		if err := authorizeCaller(booking, req.Caller); err != nil {
			return err
		}

		if existing != nil {
			switch existing.Status {
			case models.IntentPending:
				if existing.Overdue(now) {
					if err := s.expireIntentTx(ctx, tx, existing, now); err != nil {
						return err
					}
					lazilyExpired = true
					return nil
				}
				intent = existing
				return nil
			case models.IntentSucceeded:
				return status.AlreadySettled("reference is already paid")
			}
			// cancelled/expired: dead row, create a fresh intent
		}

		switch booking.Status {
		case models.BookingConfirmed:
			return status.AlreadySettled("booking is already confirmed")
		case models.BookingCancelled:
			return status.InvalidState("booking is cancelled")
		}
		if booking.ExpiresAt != nil && !booking.ExpiresAt.After(now) {
			return status.Expired("hold has expired")
		}

		if req.Currency != "" && req.Currency != booking.Currency {
			return status.Validation("currency does not match booking")
		}

		id, err := newID("pi")
		if err != nil {
			return err
		}
		expiresAt := now.Add(s.cfg.IntentTTL)
		intent = &models.PaymentIntent{
			ID:            id,
			OwnerID:       booking.OwnerID,
			Amount:        booking.Price,
			Currency:      booking.Currency,
			Status:        models.IntentPending,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			ExpiresAt:     &expiresAt,
		}
		if err := tx.Payments().CreateIntent(ctx, intent); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, intent.ID, models.EventCreated, map[string]any{
			"reference_type": req.ReferenceType,
			"reference_id":   req.ReferenceID,
			"amount":         intent.Amount.String(),
		}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if lazilyExpired {
		return nil, nil, status.Expired("payment intent has expired")
	}

	if !created {
		return intent, nil, nil
	}

	monitoring.TrackIntentCreated()

	// Provider registration happens after commit; no lock is held
	// across the external call.
	checkout, err := s.provider.CreateCheckout(ctx, &provider.CheckoutRequest{
		IntentID:  intent.ID,
		Amount:    intent.Amount,
		Currency:  intent.Currency,
		Reference: intent.ReferenceID,
	})
	if err != nil {
		slog.Error("provider checkout failed", "intent_id", intent.ID, "error", err)
		return intent, nil, nil
	}
	return intent, checkout, nil
}

type SettleRequest struct {
	IntentID      string
	Outcome       string // models.OutcomeSuccess or models.OutcomeFailure
	Caller        Caller
	ProviderEvent *models.ProviderEvent // set on the webhook path
}

// Settle resolves a pending intent to a terminal outcome. Terminal
// intents are immutable: repeating SUCCESS on a succeeded intent is a
// no-op, as is repeating FAILURE on a cancelled/expired one; every
// other late settlement fails with invalid_state.
func (s *PaymentService) Settle(ctx context.Context, req SettleRequest) (*models.PaymentIntent, error) {
	if req.Outcome != models.OutcomeSuccess && req.Outcome != models.OutcomeFailure {
		return nil, status.Validation("outcome must be success or failure")
	}

	if dup, intent := s.seenProviderEvent(ctx, req.ProviderEvent); dup {
		return intent, nil
	}

	now := s.clock.Now()

	var intent *models.PaymentIntent
	var confirmedBooking *models.Booking
	var duplicate, expired bool
	var refGone error

	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		if req.ProviderEvent != nil && req.ProviderEvent.EventID != "" {
			prior, err := tx.Payments().FindTransactionByProviderEvent(ctx, req.ProviderEvent.EventID)
			if err != nil {
				return err
			}
			if prior != nil {
				intent, err = tx.Payments().GetIntent(ctx, prior.IntentID)
				duplicate = true
				return err
			}
		}

		// Lock order: intent row first, booking row second.
		pi, err := tx.Payments().GetIntent(ctx, req.IntentID)
		if err != nil {
			return err
		}

		if !req.Caller.Trusted {
			booking, err := tx.Bookings().GetBooking(ctx, pi.ReferenceID)
			if err != nil {
				return err
			}
			if err := authorizeCaller(booking, req.Caller); err != nil {
				return err
			}
		}

		switch pi.Status {
		case models.IntentSucceeded:
			if req.Outcome == models.OutcomeSuccess {
				intent = pi
				duplicate = true
				return nil
			}
			return status.InvalidState("intent already succeeded")
		case models.IntentCancelled, models.IntentExpired:
			if req.Outcome == models.OutcomeFailure {
				// Safety valve for duplicate provider failure callbacks.
				intent = pi
				duplicate = true
				return nil
			}
			return status.InvalidState("intent is already terminal")
		}

		if pi.Overdue(now) {
			if err := s.expireIntentTx(ctx, tx, pi, now); err != nil {
				return err
			}
			intent = pi
			expired = true
			return nil
		}

		if err := s.appendTransaction(ctx, tx, pi, req); err != nil {
			return err
		}

		if req.Outcome == models.OutcomeFailure {
			pi.Status = models.IntentCancelled
			pi.ExpiresAt = nil
			if err := tx.Payments().UpdateIntent(ctx, pi); err != nil {
				return err
			}
			if err := s.appendEvent(ctx, tx, pi.ID, models.EventFailed, nil); err != nil {
				return err
			}
			intent = pi
			return nil
		}

		paidAt := now
		pi.Status = models.IntentSucceeded
		pi.PaidAt = &paidAt
		pi.ExpiresAt = nil
		if err := tx.Payments().UpdateIntent(ctx, pi); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, pi.ID, models.EventSuccess, nil); err != nil {
			return err
		}

		b, changed, err := s.reservations.ConfirmInTx(ctx, tx, pi.ReferenceID)
		if err != nil {
			code := status.CodeOf(err)
			if code != status.CodeInvalidState && code != status.CodeExpired {
				return err
			}
			// Payment cannot resurrect a cancelled (or lapsed) booking:
			// roll the intent to cancelled and surface the failure.
			pi.Status = models.IntentCancelled
			pi.PaidAt = nil
			if uerr := tx.Payments().UpdateIntent(ctx, pi); uerr != nil {
				return uerr
			}
			if eerr := s.appendEvent(ctx, tx, pi.ID, models.EventCancelledDueToRefGone, map[string]any{
				"booking_id": pi.ReferenceID,
			}); eerr != nil {
				return eerr
			}
			intent = pi
			refGone = err
			return nil
		}
		if changed {
			confirmedBooking = b
		}
		intent = pi
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.markProviderEvent(ctx, req.ProviderEvent)

	if duplicate {
		return intent, nil
	}
	if expired {
		monitoring.TrackSettlement("expired")
		return nil, status.Expired("payment intent has expired")
	}
	if refGone != nil {
		monitoring.TrackSettlement("reference_gone")
		return nil, refGone
	}

	if req.Outcome == models.OutcomeFailure {
		monitoring.TrackSettlement("failure")
		s.notifier.PaymentFailed(intent)
		return intent, nil
	}

	monitoring.TrackSettlement("success")
	s.notifier.PaymentSucceeded(intent)
	if confirmedBooking != nil {
		s.reservations.dropMirror(ctx, confirmedBooking)
		s.notifier.BookingConfirmed(confirmedBooking)
		monitoring.TrackBookingConfirmed(confirmedBooking.CourtID)
	}
	return intent, nil
}

// HandleProviderEvent is the entry point for webhook and simulator
// deliveries. At-least-once delivery is expected; duplicates by event
// id settle nothing.
func (s *PaymentService) HandleProviderEvent(ctx context.Context, ev *models.ProviderEvent) error {
	if ev == nil || ev.EventID == "" || ev.IntentID == "" {
		return status.Validation("provider event requires event id and intent id")
	}
	if ev.Outcome != models.OutcomeSuccess && ev.Outcome != models.OutcomeFailure {
		return status.Validation("provider event outcome must be success or failure")
	}
	_, err := s.Settle(ctx, SettleRequest{
		IntentID:      ev.IntentID,
		Outcome:       ev.Outcome,
		Caller:        Caller{Trusted: true},
		ProviderEvent: ev,
	})
	return err
}

// GetIntent is an authorized read. An overdue pending intent is
// expired lazily so pollers never observe a pending row past its TTL.
func (s *PaymentService) GetIntent(ctx context.Context, id string, caller Caller) (*models.PaymentIntent, error) {
	pi, err := s.store.Payments().GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.finishRead(ctx, pi, caller)
}

// FindByReference is an authorized lookup by (referenceType, referenceId).
func (s *PaymentService) FindByReference(ctx context.Context, refType, refID string, caller Caller) (*models.PaymentIntent, error) {
	pi, err := s.store.Payments().FindIntentByReference(ctx, refType, refID)
	if err != nil {
		return nil, err
	}
	if pi == nil {
		return nil, status.NotFound("payment intent not found")
	}
	return s.finishRead(ctx, pi, caller)
}

// ListEvents returns the audit trail for an intent.
func (s *PaymentService) ListEvents(ctx context.Context, intentID string, caller Caller) ([]*models.PaymentEvent, error) {
	pi, err := s.store.Payments().GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.finishRead(ctx, pi, caller); err != nil {
		return nil, err
	}
	return s.store.Payments().ListEvents(ctx, intentID)
}

func (s *PaymentService) finishRead(ctx context.Context, pi *models.PaymentIntent, caller Caller) (*models.PaymentIntent, error) {
	booking, err := s.store.Bookings().GetBooking(ctx, pi.ReferenceID)
	if err != nil {
		return nil, err
	}
	if err := authorizeCaller(booking, caller); err != nil {
		return nil, err
	}

	if !pi.Overdue(s.clock.Now()) {
		return pi, nil
	}
	// Lazy expiry on read.
	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		cur, err := tx.Payments().GetIntent(ctx, pi.ID)
		if err != nil {
			return err
		}
		if !cur.Overdue(s.clock.Now()) {
			pi = cur
			return nil
		}
		if err := s.expireIntentTx(ctx, tx, cur, s.clock.Now()); err != nil {
			return err
		}
		pi = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pi, nil
}

// expireIntentTx moves an overdue pending intent to expired and, when
// the referenced booking is still a hold, releases the slot right away
// rather than waiting for the hold's own TTL.
func (s *PaymentService) expireIntentTx(ctx context.Context, tx store.Store, pi *models.PaymentIntent, now time.Time) error {
	pi.Status = models.IntentExpired
	pi.ExpiresAt = nil
	if err := tx.Payments().UpdateIntent(ctx, pi); err != nil {
		return err
	}
	if err := s.appendEvent(ctx, tx, pi.ID, models.EventExpired, nil); err != nil {
		return err
	}

	b, err := tx.Bookings().GetBooking(ctx, pi.ReferenceID)
	if err != nil {
		if status.CodeOf(err) == status.CodeNotFound {
			return nil
		}
		return err
	}
	if b.Status != models.BookingHold {
		return nil
	}
	b.Status = models.BookingCancelled
	b.ExpiresAt = nil
	return tx.Bookings().UpdateBooking(ctx, b)
}

func (s *PaymentService) appendTransaction(ctx context.Context, tx store.Store, pi *models.PaymentIntent, req SettleRequest) error {
	id, err := newID("ptx")
	if err != nil {
		return err
	}
	txStatus := models.TxSuccess
	if req.Outcome == models.OutcomeFailure {
		txStatus = models.TxFailed
	}
	record := &models.PaymentTransaction{
		ID:       id,
		IntentID: pi.ID,
		Provider: string(s.provider.GetName()),
		Status:   txStatus,
		Amount:   pi.Amount,
	}
	if req.ProviderEvent != nil {
		record.Provider = req.ProviderEvent.Provider
		record.ProviderEventID = req.ProviderEvent.EventID
		record.ProviderRef = req.ProviderEvent.EventID
		record.RawResponse = req.ProviderEvent.Raw
	}
	return tx.Payments().AppendTransaction(ctx, record)
}

func (s *PaymentService) appendEvent(ctx context.Context, tx store.Store, intentID, eventType string, payload map[string]any) error {
	id, err := newID("pev")
	if err != nil {
		return err
	}
	body := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = string(raw)
	}
	return tx.Payments().AppendEvent(ctx, &models.PaymentEvent{
		ID:       id,
		IntentID: intentID,
		Type:     eventType,
		Payload:  body,
	})
}

// seenProviderEvent is the redis fast path for duplicate webhook
// deliveries. Best effort only; the payment_transactions row inside
// the settlement transaction is authoritative.
func (s *PaymentService) seenProviderEvent(ctx context.Context, ev *models.ProviderEvent) (bool, *models.PaymentIntent) {
	if s.redis == nil || ev == nil || ev.EventID == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, providerEventKey(ev.EventID)).Result()
	if err != nil || n == 0 {
		return false, nil
	}
	pi, err := s.store.Payments().GetIntent(ctx, ev.IntentID)
	if err != nil {
		return false, nil
	}
	return true, pi
}

func (s *PaymentService) markProviderEvent(ctx context.Context, ev *models.ProviderEvent) {
	if s.redis == nil || ev == nil || ev.EventID == "" {
		return
	}
	if err := s.redis.Set(ctx, providerEventKey(ev.EventID), ev.IntentID, seenEventTTL).Err(); err != nil {
		slog.Error("provider event marker set failed", "event_id", ev.EventID, "error", err)
	}
}

func providerEventKey(eventID string) string {
	return "pevt:" + eventID
}
