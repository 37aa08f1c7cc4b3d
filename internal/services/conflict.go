package services

import (
	"context"
	"time"

	"court-booking/internal/status"
	"court-booking/internal/store"
	"court-booking/models"
)

// ConflictChecker decides whether an interval on a court is takeable.
// It must run inside the caller's transaction so the answer cannot go
// stale before the insert that depends on it.
type ConflictChecker struct{}

func NewConflictChecker() *ConflictChecker {
	return &ConflictChecker{}
}

// Check returns nil when the interval is free. Administrative blocks
// win over bookings: a blocked slot reports "blocked" even if a stale
// hold also overlaps.
func (c *ConflictChecker) Check(ctx context.Context, tx store.Store, courtID string, iv models.Interval, now time.Time) error {
	blocks, err := tx.Bookings().FindBlocks(ctx, courtID, iv)
	if err != nil {
		return err
	}
	for _, cb := range blocks {
		if cb.Blocking {
			return status.Conflict(status.ReasonBlocked, "court is blocked for this interval")
		}
	}

	overlapping, err := tx.Bookings().FindOverlapping(ctx, courtID, iv, now)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		return status.Conflict(status.ReasonOccupied, "interval overlaps an existing booking")
	}
	return nil
}
