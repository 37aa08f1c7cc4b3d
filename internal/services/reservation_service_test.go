package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"court-booking/config"
	"court-booking/internal/clock"
	"court-booking/internal/notify"
	"court-booking/internal/status"
	"court-booking/internal/store/memory"
	"court-booking/models"
)

func testConfig() *config.Config {
	return &config.Config{
		HoldTTL:             10 * time.Minute,
		HoldGrace:           time.Minute,
		IntentTTL:           15 * time.Minute,
		DefaultCurrency:     "EUR",
		Provider:            "simulator",
		HoldSweepInterval:   time.Minute,
		IntentSweepInterval: time.Minute,
		SweepBatch:          200,
	}
}

func newReservationFixture(t *testing.T) (*memory.DB, *clock.Mock, *ReservationService) {
	t.Helper()
	db := memory.New()
	db.AddCourt(&models.Court{ID: "court1", Name: "Court 1", Status: models.CourtActive})
	clk := clock.NewMock(time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC))
	svc := NewReservationService(db, clk, notify.Nop{}, nil, testConfig())
	return db, clk, svc
}

func slot(clk *clock.Mock, startIn, length time.Duration) models.Interval {
	start := clk.Now().Add(startIn)
	return models.Interval{Start: start, End: start.Add(length)}
}

func holdRequest(clk *clock.Mock) CreateHoldRequest {
	return CreateHoldRequest{
		CourtID:  "court1",
		Interval: slot(clk, time.Hour, time.Hour),
		Price:    decimal.NewFromInt(20),
		Currency: "EUR",
		OwnerID:  "user1",
	}
}

func TestCreateHold_Success(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	booking, token, err := svc.CreateHold(ctx, holdRequest(clk))

	require.NoError(t, err)
	assert.Empty(t, token) // authenticated owner, no guest token
	assert.Equal(t, models.BookingHold, booking.Status)
	assert.Equal(t, "user1", booking.OwnerID)
	require.NotNil(t, booking.ExpiresAt)
	assert.Equal(t, clk.Now().Add(10*time.Minute), *booking.ExpiresAt)

	stored, err := svc.Get(ctx, booking.ID, Caller{OwnerID: "user1"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingHold, stored.Status)
}

func TestCreateHold_GuestCheckoutToken(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	req := holdRequest(clk)
	req.OwnerID = ""
	req.CustomerName = "Walk In"
	req.CustomerPhone = "+3561234"

	booking, token, err := svc.CreateHold(ctx, req)

	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(booking.CheckoutHash), []byte(token)))

	// the token authorizes reads, a wrong token does not
	_, err = svc.Get(ctx, booking.ID, Caller{CheckoutToken: token})
	assert.NoError(t, err)
	_, err = svc.Get(ctx, booking.ID, Caller{CheckoutToken: "wrong"})
	assert.Equal(t, status.CodeNotFound, status.CodeOf(err))
}

func TestCreateHold_Validation(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	t.Run("inverted interval", func(t *testing.T) {
		req := holdRequest(clk)
		req.Interval = models.Interval{Start: req.Interval.End, End: req.Interval.Start}
		_, _, err := svc.CreateHold(ctx, req)
		assert.Equal(t, status.CodeValidation, status.CodeOf(err))
	})

	t.Run("start in the past beyond grace", func(t *testing.T) {
		req := holdRequest(clk)
		req.Interval = slot(clk, -2*time.Minute, time.Hour)
		_, _, err := svc.CreateHold(ctx, req)
		assert.Equal(t, status.CodeValidation, status.CodeOf(err))
	})

	t.Run("start in the past within grace", func(t *testing.T) {
		req := holdRequest(clk)
		req.Interval = slot(clk, -30*time.Second, time.Hour)
		_, _, err := svc.CreateHold(ctx, req)
		assert.NoError(t, err)
	})

	t.Run("negative price", func(t *testing.T) {
		req := holdRequest(clk)
		req.Interval = slot(clk, 5*time.Hour, time.Hour)
		req.Price = decimal.NewFromInt(-1)
		_, _, err := svc.CreateHold(ctx, req)
		assert.Equal(t, status.CodeValidation, status.CodeOf(err))
	})
}

func TestCreateHold_CourtState(t *testing.T) {
	db, clk, svc := newReservationFixture(t)
	ctx := context.Background()
	db.AddCourt(&models.Court{ID: "closed", Name: "Closed", Status: models.CourtMaintenance})

	req := holdRequest(clk)
	req.CourtID = "closed"
	_, _, err := svc.CreateHold(ctx, req)
	assert.Equal(t, status.CodeInvalidState, status.CodeOf(err))

	req.CourtID = "missing"
	_, _, err = svc.CreateHold(ctx, req)
	assert.Equal(t, status.CodeNotFound, status.CodeOf(err))
}

func TestCreateHold_OverlapConflict(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	_, _, err := svc.CreateHold(ctx, holdRequest(clk))
	require.NoError(t, err)

	// overlapping attempt loses with reason occupied
	req := holdRequest(clk)
	req.Interval = slot(clk, 90*time.Minute, time.Hour)
	req.OwnerID = "user2"
	_, _, err = svc.CreateHold(ctx, req)
	require.Equal(t, status.CodeConflict, status.CodeOf(err))
	var se *status.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status.ReasonOccupied, se.Reason)

	// back-to-back slot is fine (half-open intervals)
	req.Interval = slot(clk, 2*time.Hour, time.Hour)
	_, _, err = svc.CreateHold(ctx, req)
	assert.NoError(t, err)
}

func TestCreateHold_BlockedCourtWins(t *testing.T) {
	db, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	iv := slot(clk, time.Hour, time.Hour)
	db.AddBlock(&models.CourtBlock{
		ID: "blk1", CourtID: "court1",
		StartAt: iv.Start, EndAt: iv.End,
		Blocking: true, Reason: "resurfacing",
	})

	_, _, err := svc.CreateHold(ctx, holdRequest(clk))
	require.Equal(t, status.CodeConflict, status.CodeOf(err))
	var se *status.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status.ReasonBlocked, se.Reason)
}

func TestCreateHold_NonBlockingBlockIgnored(t *testing.T) {
	db, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	iv := slot(clk, time.Hour, time.Hour)
	db.AddBlock(&models.CourtBlock{
		ID: "blk1", CourtID: "court1",
		StartAt: iv.Start, EndAt: iv.End,
		Blocking: false, Reason: "league night, bookable",
	})

	_, _, err := svc.CreateHold(ctx, holdRequest(clk))
	assert.NoError(t, err)
}

func TestCreateHold_ExpiredHoldFreesSlot(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	first, _, err := svc.CreateHold(ctx, holdRequest(clk))
	require.NoError(t, err)

	// while the hold is live the slot is taken
	req := holdRequest(clk)
	req.OwnerID = "user2"
	_, _, err = svc.CreateHold(ctx, req)
	require.Equal(t, status.CodeConflict, status.CodeOf(err))

	// past the TTL the expired hold no longer blocks, no sweep needed
	clk.Advance(11 * time.Minute)
	second, _, err := svc.CreateHold(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateHold_ConcurrentSameSlot(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.CreateHold(ctx, holdRequest(clk))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, status.CodeConflict, status.CodeOf(err))
		}
	}
	assert.Equal(t, 1, successes)
}

func TestConfirm(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	booking, _, err := svc.CreateHold(ctx, holdRequest(clk))
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
	assert.Nil(t, confirmed.ExpiresAt)

	// idempotent
	again, err := svc.Confirm(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, again.Status)
}

func TestConfirm_ExpiredHold(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	booking, _, err := svc.CreateHold(ctx, holdRequest(clk))
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)

	_, err = svc.Confirm(ctx, booking.ID)
	assert.Equal(t, status.CodeExpired, status.CodeOf(err))
}

func TestConfirm_CancelledBooking(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	booking, _, err := svc.CreateHold(ctx, holdRequest(clk))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, booking.ID, Caller{OwnerID: "user1"})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, booking.ID)
	assert.Equal(t, status.CodeInvalidState, status.CodeOf(err))
}

func TestCancel(t *testing.T) {
	_, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	booking, _, err := svc.CreateHold(ctx, holdRequest(clk))
	require.NoError(t, err)

	// foreign caller is told nothing exists
	_, err = svc.Cancel(ctx, booking.ID, Caller{OwnerID: "someone-else"})
	assert.Equal(t, status.CodeNotFound, status.CodeOf(err))

	cancelled, err := svc.Cancel(ctx, booking.ID, Caller{OwnerID: "user1"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Nil(t, cancelled.ExpiresAt)

	// idempotent
	again, err := svc.Cancel(ctx, booking.ID, Caller{OwnerID: "user1"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, again.Status)

	// cancelled slot can be rebooked
	_, _, err = svc.CreateHold(ctx, holdRequest(clk))
	assert.NoError(t, err)
}

func TestAvailability(t *testing.T) {
	db, clk, svc := newReservationFixture(t)
	ctx := context.Background()

	_, _, err := svc.CreateHold(ctx, holdRequest(clk))
	require.NoError(t, err)

	blockStart := clk.Now().Add(4 * time.Hour)
	db.AddBlock(&models.CourtBlock{
		ID: "blk1", CourtID: "court1",
		StartAt: blockStart, EndAt: blockStart.Add(time.Hour),
		Blocking: true, Reason: "maintenance",
	})

	window := models.Interval{Start: clk.Now(), End: clk.Now().Add(8 * time.Hour)}
	busy, err := svc.Availability(ctx, "court1", window)
	require.NoError(t, err)
	assert.Len(t, busy, 2)

	// once the hold expires only the block remains busy
	clk.Advance(11 * time.Minute)
	busy, err = svc.Availability(ctx, "court1", window)
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, blockStart, busy[0].Start)
}
