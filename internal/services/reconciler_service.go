package services

import (
	"context"
	"log/slog"
	"time"

	"court-booking/config"
	"court-booking/internal/clock"
	"court-booking/internal/notify"
	"court-booking/internal/store"
	"court-booking/models"
	"court-booking/monitoring"
)

// ExpiryReconciler is the safety net behind lazy expiry: it sweeps
// overdue holds and overdue pending intents on fixed intervals so rows
// nobody reads still reach their terminal state.
type ExpiryReconciler struct {
	store    store.Store
	clock    clock.Clock
	payments *PaymentService
	notifier notify.Notifier
	cfg      *config.Config
}

func NewExpiryReconciler(st store.Store, clk clock.Clock, payments *PaymentService, notifier notify.Notifier, cfg *config.Config) *ExpiryReconciler {
	return &ExpiryReconciler{
		store:    st,
		clock:    clk,
		payments: payments,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Start runs both sweep loops until ctx is cancelled.
func (r *ExpiryReconciler) Start(ctx context.Context) {
	go r.loop(ctx, r.cfg.HoldSweepInterval, "holds", r.SweepHolds)
	go r.loop(ctx, r.cfg.IntentSweepInterval, "intents", r.SweepIntents)
}

func (r *ExpiryReconciler) loop(ctx context.Context, interval time.Duration, name string, sweep func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				slog.Error("sweep failed", "sweep", name, "error", err)
				continue
			}
			if n > 0 {
				slog.Info("sweep done", "sweep", name, "reaped", n)
			}
		}
	}
}

// SweepHolds cancels holds whose TTL has lapsed. One row failing is
// logged and skipped so the rest of the batch still lands.
func (r *ExpiryReconciler) SweepHolds(ctx context.Context) (int, error) {
	now := r.clock.Now()

	var expired []*models.Booking
	err := r.store.RunInTx(ctx, func(tx store.Store) error {
		rows, err := tx.Bookings().FindExpiredHolds(ctx, now, r.cfg.SweepBatch)
		if err != nil {
			return err
		}
		for _, b := range rows {
			b.Status = models.BookingCancelled
			b.ExpiresAt = nil
			if err := tx.Bookings().UpdateBooking(ctx, b); err != nil {
				slog.Error("hold sweep row failed", "booking_id", b.ID, "error", err)
				continue
			}
			expired = append(expired, b)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, b := range expired {
		monitoring.TrackSweep("holds")
		r.notifier.BookingCancelled(b)
	}
	return len(expired), nil
}

// SweepIntents expires overdue pending intents through the same
// transition settlement uses, releasing the referenced hold with them.
func (r *ExpiryReconciler) SweepIntents(ctx context.Context) (int, error) {
	now := r.clock.Now()

	reaped := 0
	err := r.store.RunInTx(ctx, func(tx store.Store) error {
		rows, err := tx.Payments().FindExpiredPending(ctx, now, r.cfg.SweepBatch)
		if err != nil {
			return err
		}
		for _, pi := range rows {
			if err := r.payments.expireIntentTx(ctx, tx, pi, now); err != nil {
				slog.Error("intent sweep row failed", "intent_id", pi.ID, "error", err)
				continue
			}
			reaped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := 0; i < reaped; i++ {
		monitoring.TrackSweep("intents")
	}
	return reaped, nil
}
