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

type paymentStore struct {
	app core.App
}

type intentRow struct {
	ID            string         `db:"id"`
	Owner         string         `db:"owner"`
	Amount        float64        `db:"amount"`
	Currency      string         `db:"currency"`
	Status        string         `db:"status"`
	ReferenceType string         `db:"reference_type"`
	ReferenceID   string         `db:"reference_id"`
	ExpiresAt     types.DateTime `db:"expires_at"`
	PaidAt        types.DateTime `db:"paid_at"`
	Created       types.DateTime `db:"created"`
	Updated       types.DateTime `db:"updated"`
}

func (r *intentRow) toModel() *models.PaymentIntent {
	pi := &models.PaymentIntent{
		ID:            r.ID,
		OwnerID:       r.Owner,
		Amount:        decimal.NewFromFloat(r.Amount),
		Currency:      r.Currency,
		Status:        r.Status,
		ReferenceType: r.ReferenceType,
		ReferenceID:   r.ReferenceID,
		CreatedAt:     r.Created.Time(),
		UpdatedAt:     r.Updated.Time(),
	}
	if !r.ExpiresAt.IsZero() {
		t := r.ExpiresAt.Time()
		pi.ExpiresAt = &t
	}
	if !r.PaidAt.IsZero() {
		t := r.PaidAt.Time()
		pi.PaidAt = &t
	}
	return pi
}

func (s *paymentStore) CreateIntent(ctx context.Context, pi *models.PaymentIntent) error {
	now := dt(time.Now())
	amount, _ := pi.Amount.Float64()
	_, err := s.app.DB().Insert("payment_intents", dbx.Params{
		"id":             pi.ID,
		"owner":          pi.OwnerID,
		"amount":         amount,
		"currency":       pi.Currency,
		"status":         pi.Status,
		"reference_type": pi.ReferenceType,
		"reference_id":   pi.ReferenceID,
		"expires_at":     optDT(pi.ExpiresAt),
		"paid_at":        optDT(pi.PaidAt),
		"created":        now,
		"updated":        now,
	}).WithContext(ctx).Execute()
	return err
}

func (s *paymentStore) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var row intentRow
	err := s.app.DB().NewQuery(
		"SELECT * FROM payment_intents WHERE id = {:id}",
	).Bind(dbx.Params{"id": id}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("payment intent not found")
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *paymentStore) UpdateIntent(ctx context.Context, pi *models.PaymentIntent) error {
	_, err := s.app.DB().Update("payment_intents", dbx.Params{
		"status":     pi.Status,
		"expires_at": optDT(pi.ExpiresAt),
		"paid_at":    optDT(pi.PaidAt),
		"updated":    dt(time.Now()),
	}, dbx.HashExp{"id": pi.ID}).WithContext(ctx).Execute()
	return err
}

// FindIntentByReference returns (nil, nil) when no intent exists for
// the reference.
func (s *paymentStore) FindIntentByReference(ctx context.Context, refType, refID string) (*models.PaymentIntent, error) {
	var row intentRow
	err := s.app.DB().NewQuery(`
		SELECT * FROM payment_intents
		WHERE reference_type = {:rt} AND reference_id = {:rid}
		ORDER BY created DESC
		LIMIT 1`,
	).Bind(dbx.Params{"rt": refType, "rid": refID}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *paymentStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.PaymentIntent, error) {
	var rows []intentRow
	err := s.app.DB().NewQuery(`
		SELECT * FROM payment_intents
		WHERE status = {:pending} AND expires_at != '' AND expires_at <= {:now}
		ORDER BY expires_at
		LIMIT {:limit}`,
	).Bind(dbx.Params{
		"pending": models.IntentPending,
		"now":     dt(now),
		"limit":   limit,
	}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.PaymentIntent, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (s *paymentStore) AppendTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	amount, _ := tx.Amount.Float64()
	_, err := s.app.DB().Insert("payment_transactions", dbx.Params{
		"id":                tx.ID,
		"intent":            tx.IntentID,
		"provider":          tx.Provider,
		"provider_ref":      tx.ProviderRef,
		"provider_event_id": tx.ProviderEventID,
		"status":            tx.Status,
		"amount":            amount,
		"raw_response":      tx.RawResponse,
		"created":           dt(time.Now()),
	}).WithContext(ctx).Execute()
	return err
}

type txRow struct {
	ID              string         `db:"id"`
	Intent          string         `db:"intent"`
	Provider        string         `db:"provider"`
	ProviderRef     string         `db:"provider_ref"`
	ProviderEventID string         `db:"provider_event_id"`
	Status          string         `db:"status"`
	Amount          float64        `db:"amount"`
	RawResponse     string         `db:"raw_response"`
	Created         types.DateTime `db:"created"`
}

// FindTransactionByProviderEvent returns (nil, nil) when the provider
// event has not been processed yet.
func (s *paymentStore) FindTransactionByProviderEvent(ctx context.Context, providerEventID string) (*models.PaymentTransaction, error) {
	var row txRow
	err := s.app.DB().NewQuery(
		"SELECT * FROM payment_transactions WHERE provider_event_id = {:eid} LIMIT 1",
	).Bind(dbx.Params{"eid": providerEventID}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.PaymentTransaction{
		ID:              row.ID,
		IntentID:        row.Intent,
		Provider:        row.Provider,
		ProviderRef:     row.ProviderRef,
		ProviderEventID: row.ProviderEventID,
		Status:          row.Status,
		Amount:          decimal.NewFromFloat(row.Amount),
		RawResponse:     row.RawResponse,
		CreatedAt:       row.Created.Time(),
	}, nil
}

func (s *paymentStore) AppendEvent(ctx context.Context, ev *models.PaymentEvent) error {
	_, err := s.app.DB().Insert("payment_events", dbx.Params{
		"id":      ev.ID,
		"intent":  ev.IntentID,
		"type":    ev.Type,
		"payload": ev.Payload,
		"created": dt(time.Now()),
	}).WithContext(ctx).Execute()
	return err
}

type eventRow struct {
	ID      string         `db:"id"`
	Intent  string         `db:"intent"`
	Type    string         `db:"type"`
	Payload string         `db:"payload"`
	Created types.DateTime `db:"created"`
}

func (s *paymentStore) ListEvents(ctx context.Context, intentID string) ([]*models.PaymentEvent, error) {
	var rows []eventRow
	err := s.app.DB().NewQuery(
		"SELECT * FROM payment_events WHERE intent = {:intent} ORDER BY created",
	).Bind(dbx.Params{"intent": intentID}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.PaymentEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.PaymentEvent{
			ID:        r.ID,
			IntentID:  r.Intent,
			Type:      r.Type,
			Payload:   r.Payload,
			CreatedAt: r.Created.Time(),
		})
	}
	return out, nil
}
