package notify

import (
	"context"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"court-booking/models"
	"court-booking/utils"
)

// Notifier delivers fire-and-forget booking/payment notifications.
// Implementations must never block the caller or surface errors into
// the owning transaction: delivery failures are logged and dropped.
type Notifier interface {
	HoldCreated(b *models.Booking)
	BookingConfirmed(b *models.Booking)
	BookingCancelled(b *models.Booking)
	PaymentSucceeded(pi *models.PaymentIntent)
	PaymentFailed(pi *models.PaymentIntent)
}

// PubNubNotifier publishes to per-owner channels (guest bookings go to
// the public bookings channel). Publishes run behind a circuit breaker
// so a degraded PubNub cannot pile up goroutines.
type PubNubNotifier struct {
	pn      *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		pn:      pn,
		breaker: utils.NewCircuitBreaker("pubnub-notify"),
	}
}

func (n *PubNubNotifier) publish(channel string, message map[string]any) {
	go func() {
		_, err := n.breaker.Execute(context.Background(), func() (interface{}, error) {
			_, _, err := n.pn.Publish().
				Channel(channel).
				Message(message).
				Execute()
			return nil, err
		})
		if err != nil {
			slog.Error("notify publish failed", "channel", channel, "type", message["type"], "error", err)
		}
	}()
}

func bookingChannel(ownerID string) string {
	if ownerID == "" {
		return "bookings"
	}
	return "user-" + ownerID
}

func (n *PubNubNotifier) HoldCreated(b *models.Booking) {
	n.publish(bookingChannel(b.OwnerID), map[string]any{
		"type":       "hold_created",
		"booking_id": b.ID,
		"court_id":   b.CourtID,
		"start_at":   b.StartAt,
		"end_at":     b.EndAt,
		"expires_at": b.ExpiresAt,
	})
}

func (n *PubNubNotifier) BookingConfirmed(b *models.Booking) {
	n.publish(bookingChannel(b.OwnerID), map[string]any{
		"type":       "booking_confirmed",
		"booking_id": b.ID,
		"court_id":   b.CourtID,
		"start_at":   b.StartAt,
		"end_at":     b.EndAt,
	})
}

func (n *PubNubNotifier) BookingCancelled(b *models.Booking) {
	n.publish(bookingChannel(b.OwnerID), map[string]any{
		"type":       "booking_cancelled",
		"booking_id": b.ID,
		"court_id":   b.CourtID,
	})
}

func (n *PubNubNotifier) PaymentSucceeded(pi *models.PaymentIntent) {
	n.publish(bookingChannel(pi.OwnerID), map[string]any{
		"type":      "payment_succeeded",
		"intent_id": pi.ID,
		"amount":    pi.Amount,
		"currency":  pi.Currency,
	})
}

func (n *PubNubNotifier) PaymentFailed(pi *models.PaymentIntent) {
	n.publish(bookingChannel(pi.OwnerID), map[string]any{
		"type":      "payment_failed",
		"intent_id": pi.ID,
	})
}

// Nop is the notifier used in tests and when PubNub is not configured.
type Nop struct{}

func (Nop) HoldCreated(*models.Booking)            {}
func (Nop) BookingConfirmed(*models.Booking)       {}
func (Nop) BookingCancelled(*models.Booking)       {}
func (Nop) PaymentSucceeded(*models.PaymentIntent) {}
func (Nop) PaymentFailed(*models.PaymentIntent)    {}
