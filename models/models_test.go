package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(h, m int) time.Time {
	return time.Date(2025, 7, 14, h, m, 0, 0, time.UTC)
}

func TestInterval_Overlaps(t *testing.T) {
	base := Interval{Start: ts(10, 0), End: ts(11, 0)}

	tests := []struct {
		name     string
		other    Interval
		expected bool
	}{
		{
			name:     "identical",
			other:    Interval{Start: ts(10, 0), End: ts(11, 0)},
			expected: true,
		},
		{
			name:     "partial overlap at end",
			other:    Interval{Start: ts(10, 30), End: ts(11, 30)},
			expected: true,
		},
		{
			name:     "partial overlap at start",
			other:    Interval{Start: ts(9, 30), End: ts(10, 30)},
			expected: true,
		},
		{
			name:     "contained",
			other:    Interval{Start: ts(10, 15), End: ts(10, 45)},
			expected: true,
		},
		{
			name:     "containing",
			other:    Interval{Start: ts(9, 0), End: ts(12, 0)},
			expected: true,
		},
		{
			name:     "back to back before",
			other:    Interval{Start: ts(9, 0), End: ts(10, 0)},
			expected: false,
		},
		{
			name:     "back to back after",
			other:    Interval{Start: ts(11, 0), End: ts(12, 0)},
			expected: false,
		},
		{
			name:     "disjoint",
			other:    Interval{Start: ts(13, 0), End: ts(14, 0)},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, base.Overlaps(tt.other))
			assert.Equal(t, tt.expected, tt.other.Overlaps(base))
		})
	}
}

func TestInterval_Valid(t *testing.T) {
	assert.True(t, Interval{Start: ts(10, 0), End: ts(11, 0)}.Valid())
	assert.False(t, Interval{Start: ts(11, 0), End: ts(10, 0)}.Valid())
	assert.False(t, Interval{Start: ts(10, 0), End: ts(10, 0)}.Valid())
}

func TestBooking_Blocking(t *testing.T) {
	now := ts(10, 0)
	future := ts(10, 30)
	past := ts(9, 30)

	confirmed := &Booking{Status: BookingConfirmed}
	assert.True(t, confirmed.Blocking(now))

	liveHold := &Booking{Status: BookingHold, ExpiresAt: &future}
	assert.True(t, liveHold.Blocking(now))
	assert.True(t, liveHold.LiveHold(now))

	expiredHold := &Booking{Status: BookingHold, ExpiresAt: &past}
	assert.False(t, expiredHold.Blocking(now))
	assert.False(t, expiredHold.LiveHold(now))

	// expiry boundary is inclusive: a hold expiring exactly now is gone
	boundary := &Booking{Status: BookingHold, ExpiresAt: &now}
	assert.False(t, boundary.Blocking(now))

	cancelled := &Booking{Status: BookingCancelled}
	assert.False(t, cancelled.Blocking(now))
}

func TestPaymentIntent_Overdue(t *testing.T) {
	now := ts(10, 0)
	past := ts(9, 0)
	future := ts(11, 0)

	pending := &PaymentIntent{Status: IntentPending, ExpiresAt: &future}
	assert.False(t, pending.Overdue(now))
	assert.False(t, pending.Terminal())

	overdue := &PaymentIntent{Status: IntentPending, ExpiresAt: &past}
	assert.True(t, overdue.Overdue(now))

	atBoundary := &PaymentIntent{Status: IntentPending, ExpiresAt: &now}
	assert.True(t, atBoundary.Overdue(now))

	// terminal intents are never overdue even with a stale expires_at
	succeeded := &PaymentIntent{Status: IntentSucceeded, ExpiresAt: &past}
	assert.False(t, succeeded.Overdue(now))
	assert.True(t, succeeded.Terminal())
}

func TestCourt_Bookable(t *testing.T) {
	assert.True(t, (&Court{Status: CourtActive}).Bookable())
	assert.False(t, (&Court{Status: CourtMaintenance}).Bookable())
	assert.False(t, (&Court{Status: CourtRetired}).Bookable())
}
