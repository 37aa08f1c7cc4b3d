package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"court-booking/internal/status"
	"court-booking/models"
)

type bookingStore struct {
	app core.App
}

type bookingRow struct {
	ID            string         `db:"id"`
	Court         string         `db:"court"`
	StartAt       types.DateTime `db:"start_at"`
	EndAt         types.DateTime `db:"end_at"`
	Status        string         `db:"status"`
	ExpiresAt     types.DateTime `db:"expires_at"`
	Price         float64        `db:"price"`
	Currency      string         `db:"currency"`
	Owner         string         `db:"owner"`
	CustomerName  string         `db:"customer_name"`
	CustomerPhone string         `db:"customer_phone"`
	CheckoutHash  string         `db:"checkout_hash"`
	Created       types.DateTime `db:"created"`
	Updated       types.DateTime `db:"updated"`
}

func (r *bookingRow) toModel() *models.Booking {
	b := &models.Booking{
		ID:            r.ID,
		CourtID:       r.Court,
		StartAt:       r.StartAt.Time(),
		EndAt:         r.EndAt.Time(),
		Status:        r.Status,
		Price:         decimal.NewFromFloat(r.Price),
		Currency:      r.Currency,
		OwnerID:       r.Owner,
		CustomerName:  r.CustomerName,
		CustomerPhone: r.CustomerPhone,
		CheckoutHash:  r.CheckoutHash,
		CreatedAt:     r.Created.Time(),
		UpdatedAt:     r.Updated.Time(),
	}
	if !r.ExpiresAt.IsZero() {
		t := r.ExpiresAt.Time()
		b.ExpiresAt = &t
	}
	return b
}

func dt(t time.Time) types.DateTime {
	d, _ := types.ParseDateTime(t.UTC())
	return d
}

func optDT(t *time.Time) any {
	if t == nil {
		return ""
	}
	return dt(*t)
}

func (s *bookingStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	now := dt(time.Now())
	price, _ := b.Price.Float64()
	_, err := s.app.DB().Insert("bookings", dbx.Params{
		"id":             b.ID,
		"court":          b.CourtID,
		"start_at":       dt(b.StartAt),
		"end_at":         dt(b.EndAt),
		"status":         b.Status,
		"expires_at":     optDT(b.ExpiresAt),
		"price":          price,
		"currency":       b.Currency,
		"owner":          b.OwnerID,
		"customer_name":  b.CustomerName,
		"customer_phone": b.CustomerPhone,
		"checkout_hash":  b.CheckoutHash,
		"created":        now,
		"updated":        now,
	}).WithContext(ctx).Execute()
	return err
}

func (s *bookingStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var row bookingRow
	err := s.app.DB().NewQuery(
		"SELECT * FROM bookings WHERE id = {:id}",
	).Bind(dbx.Params{"id": id}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("booking not found")
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *bookingStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	_, err := s.app.DB().Update("bookings", dbx.Params{
		"status":     b.Status,
		"expires_at": optDT(b.ExpiresAt),
		"updated":    dt(time.Now()),
	}, dbx.HashExp{"id": b.ID}).WithContext(ctx).Execute()
	return err
}

func (s *bookingStore) FindOverlapping(ctx context.Context, courtID string, iv models.Interval, now time.Time) ([]*models.Booking, error) {
	var rows []bookingRow
	err := s.app.DB().NewQuery(`
		SELECT * FROM bookings
		WHERE court = {:court}
		  AND start_at < {:end} AND end_at > {:start}
		  AND (status = {:confirmed} OR (status = {:hold} AND expires_at > {:now}))
		ORDER BY start_at`,
	).Bind(dbx.Params{
		"court":     courtID,
		"start":     dt(iv.Start),
		"end":       dt(iv.End),
		"confirmed": models.BookingConfirmed,
		"hold":      models.BookingHold,
		"now":       dt(now),
	}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Booking, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (s *bookingStore) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	var rows []bookingRow
	err := s.app.DB().NewQuery(`
		SELECT * FROM bookings
		WHERE status = {:hold} AND expires_at != '' AND expires_at <= {:now}
		ORDER BY expires_at
		LIMIT {:limit}`,
	).Bind(dbx.Params{
		"hold":  models.BookingHold,
		"now":   dt(now),
		"limit": limit,
	}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Booking, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

type courtRow struct {
	ID     string `db:"id"`
	Name   string `db:"name"`
	Club   string `db:"club"`
	Status string `db:"status"`
}

func (s *bookingStore) GetCourt(ctx context.Context, id string) (*models.Court, error) {
	var row courtRow
	err := s.app.DB().NewQuery(
		"SELECT id, name, club, status FROM courts WHERE id = {:id}",
	).Bind(dbx.Params{"id": id}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("court not found")
	}
	if err != nil {
		return nil, err
	}
	return &models.Court{ID: row.ID, Name: row.Name, ClubID: row.Club, Status: row.Status}, nil
}

type blockRow struct {
	ID       string         `db:"id"`
	Court    string         `db:"court"`
	StartAt  types.DateTime `db:"start_at"`
	EndAt    types.DateTime `db:"end_at"`
	Blocking bool           `db:"blocking"`
	Reason   string         `db:"reason"`
}

func (s *bookingStore) FindBlocks(ctx context.Context, courtID string, iv models.Interval) ([]*models.CourtBlock, error) {
	var rows []blockRow
	err := s.app.DB().NewQuery(`
		SELECT id, court, start_at, end_at, blocking, reason FROM court_blocks
		WHERE court = {:court} AND start_at < {:end} AND end_at > {:start}`,
	).Bind(dbx.Params{
		"court": courtID,
		"start": dt(iv.Start),
		"end":   dt(iv.End),
	}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.CourtBlock, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.CourtBlock{
			ID:       r.ID,
			CourtID:  r.Court,
			StartAt:  r.StartAt.Time(),
			EndAt:    r.EndAt.Time(),
			Blocking: r.Blocking,
			Reason:   r.Reason,
		})
	}
	return out, nil
}
