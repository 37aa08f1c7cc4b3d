package pbstore

import (
	"context"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"

	"court-booking/internal/store"
)

// Store is the PocketBase-backed implementation of store.Store. All
// SQL goes through dbx against the app's sqlite database; RunInTx maps
// to app.RunInTransaction, which executes on the non-concurrent
// connection and therefore serializes conflicting writers.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) Bookings() store.BookingStore {
	return &bookingStore{app: s.app}
}

func (s *Store) Payments() store.PaymentStore {
	return &paymentStore{app: s.app}
}

// txAttempts bounds retries on sqlite busy errors before the failure
// surfaces to the caller.
const txAttempts = 3

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = s.app.RunInTransaction(func(txApp core.App) error {
			return fn(New(txApp))
		})
		if err == nil || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

func retryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
