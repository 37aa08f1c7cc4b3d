package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"court-booking/internal/notify"
	"court-booking/models"
)

func TestSweepHolds(t *testing.T) {
	db, clk, resv, pay := newPaymentFixture(t)
	ctx := context.Background()
	rec := NewExpiryReconciler(db, clk, pay, notify.Nop{}, testConfig())

	// three holds on separate slots
	var ids []string
	for i := 0; i < 3; i++ {
		req := holdRequest(clk)
		req.Interval = slot(clk, time.Duration(i+1)*2*time.Hour, time.Hour)
		b, _, err := resv.CreateHold(ctx, req)
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}

	// nothing to reap while the holds are live
	n, err := rec.SweepHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(11 * time.Minute)

	n, err = rec.SweepHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range ids {
		b, err := db.Bookings().GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCancelled, b.Status)
		assert.Nil(t, b.ExpiresAt)
	}

	// second pass finds nothing
	n, err = rec.SweepHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepHolds_LeavesLiveAndConfirmed(t *testing.T) {
	db, clk, resv, pay := newPaymentFixture(t)
	ctx := context.Background()
	rec := NewExpiryReconciler(db, clk, pay, notify.Nop{}, testConfig())

	doomed, _, err := resv.CreateHold(ctx, holdRequest(clk))
	require.NoError(t, err)

	confirmedReq := holdRequest(clk)
	confirmedReq.Interval = slot(clk, 3*time.Hour, time.Hour)
	confirmed, _, err := resv.CreateHold(ctx, confirmedReq)
	require.NoError(t, err)
	_, err = resv.Confirm(ctx, confirmed.ID)
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)

	// a fresh hold placed halfway through survives the sweep
	lateReq := holdRequest(clk)
	lateReq.Interval = slot(clk, 5*time.Hour, time.Hour)
	late, _, err := resv.CreateHold(ctx, lateReq)
	require.NoError(t, err)

	clk.Advance(6 * time.Minute) // doomed is past TTL, late is not

	n, err := rec.SweepHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, _ := db.Bookings().GetBooking(ctx, doomed.ID)
	assert.Equal(t, models.BookingCancelled, b.Status)
	b, _ = db.Bookings().GetBooking(ctx, late.ID)
	assert.Equal(t, models.BookingHold, b.Status)
	b, _ = db.Bookings().GetBooking(ctx, confirmed.ID)
	assert.Equal(t, models.BookingConfirmed, b.Status)
}

func TestSweepIntents(t *testing.T) {
	db, clk, resv, pay := newPaymentFixture(t)
	ctx := context.Background()
	rec := NewExpiryReconciler(db, clk, pay, notify.Nop{}, testConfig())

	booking := placeHold(t, clk, resv)
	intent := openIntent(t, pay, booking.ID, "user1")

	n, err := rec.SweepIntents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(16 * time.Minute)

	n, err = rec.SweepIntents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cur, err := db.Payments().GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentExpired, cur.Status)
	assert.Nil(t, cur.ExpiresAt)

	// the sweep released the referenced hold as well
	b, err := db.Bookings().GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.Status)

	assert.Contains(t, eventTypes(t, pay, intent.ID), models.EventExpired)

	// terminal intents are not revisited
	n, err = rec.SweepIntents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepIntents_SettledBookingUntouched(t *testing.T) {
	db, clk, resv, pay := newPaymentFixture(t)
	ctx := context.Background()
	rec := NewExpiryReconciler(db, clk, pay, notify.Nop{}, testConfig())

	booking := placeHold(t, clk, resv)
	intent := openIntent(t, pay, booking.ID, "user1")
	_, err := pay.Settle(ctx, SettleRequest{IntentID: intent.ID, Outcome: models.OutcomeSuccess, Caller: trusted})
	require.NoError(t, err)

	clk.Advance(20 * time.Minute)

	n, err := rec.SweepIntents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	b, err := db.Bookings().GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)
}
