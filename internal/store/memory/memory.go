package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"court-booking/internal/status"
	"court-booking/internal/store"
	"court-booking/models"
)

// DB is an in-memory store.Store. A single mutex serializes every
// transaction, which makes it at least as strict as the sqlite
// single-writer model the production store runs on. Transactions
// snapshot the maps up front and restore them on error. Nested
// RunInTx joins the outer transaction; the services only ever nest by
// passing the tx store around, never by reopening.
type DB struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	courts   map[string]*models.Court
	blocks   map[string]*models.CourtBlock
	intents  map[string]*models.PaymentIntent
	txs      map[string]*models.PaymentTransaction
	events   []*models.PaymentEvent
	seq      int
}

func New() *DB {
	return &DB{
		bookings: make(map[string]*models.Booking),
		courts:   make(map[string]*models.Court),
		blocks:   make(map[string]*models.CourtBlock),
		intents:  make(map[string]*models.PaymentIntent),
		txs:      make(map[string]*models.PaymentTransaction),
	}
}

// AddCourt seeds catalog data for tests.
func (db *DB) AddCourt(c *models.Court) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *c
	db.courts[c.ID] = &cp
}

// AddBlock seeds an administrative block for tests.
func (db *DB) AddBlock(cb *models.CourtBlock) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *cb
	db.blocks[cb.ID] = &cp
}

func (db *DB) RunInTx(_ context.Context, fn func(tx store.Store) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.clone()
	err := fn(&txView{db: db})
	if err != nil {
		db.restore(snapshot)
	}
	return err
}

func (db *DB) Bookings() store.BookingStore {
	return &bookingStore{db: db}
}

func (db *DB) Payments() store.PaymentStore {
	return &paymentStore{db: db}
}

// txView is the transaction-bound face of the DB. The transaction
// mutex is already held, so its stores skip locking.
type txView struct {
	db *DB
}

func (v *txView) RunInTx(_ context.Context, fn func(tx store.Store) error) error {
	return fn(v)
}

func (v *txView) Bookings() store.BookingStore {
	return &bookingStore{db: v.db, intx: true}
}

func (v *txView) Payments() store.PaymentStore {
	return &paymentStore{db: v.db, intx: true}
}

type state struct {
	bookings map[string]*models.Booking
	intents  map[string]*models.PaymentIntent
	txs      map[string]*models.PaymentTransaction
	events   []*models.PaymentEvent
}

func (db *DB) clone() *state {
	s := &state{
		bookings: make(map[string]*models.Booking, len(db.bookings)),
		intents:  make(map[string]*models.PaymentIntent, len(db.intents)),
		txs:      make(map[string]*models.PaymentTransaction, len(db.txs)),
		events:   append([]*models.PaymentEvent(nil), db.events...),
	}
	for k, v := range db.bookings {
		cp := *v
		s.bookings[k] = &cp
	}
	for k, v := range db.intents {
		cp := *v
		s.intents[k] = &cp
	}
	for k, v := range db.txs {
		cp := *v
		s.txs[k] = &cp
	}
	return s
}

func (db *DB) restore(s *state) {
	db.bookings = s.bookings
	db.intents = s.intents
	db.txs = s.txs
	db.events = s.events
}

type bookingStore struct {
	db   *DB
	intx bool
}

func (s *bookingStore) lock() func() {
	if s.intx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

func (s *bookingStore) CreateBooking(_ context.Context, b *models.Booking) error {
	defer s.lock()()
	cp := *b
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.db.bookings[b.ID] = &cp
	return nil
}

func (s *bookingStore) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	defer s.lock()()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, status.NotFound("booking not found")
	}
	cp := *b
	return &cp, nil
}

func (s *bookingStore) UpdateBooking(_ context.Context, b *models.Booking) error {
	defer s.lock()()
	cur, ok := s.db.bookings[b.ID]
	if !ok {
		return status.NotFound("booking not found")
	}
	cur.Status = b.Status
	cur.ExpiresAt = b.ExpiresAt
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *bookingStore) FindOverlapping(_ context.Context, courtID string, iv models.Interval, now time.Time) ([]*models.Booking, error) {
	defer s.lock()()
	var out []*models.Booking
	for _, b := range s.db.bookings {
		if b.CourtID != courtID || !b.Blocking(now) {
			continue
		}
		if b.Interval().Overlaps(iv) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *bookingStore) FindExpiredHolds(_ context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	defer s.lock()()
	var out []*models.Booking
	for _, b := range s.db.bookings {
		if len(out) >= limit {
			break
		}
		if b.Status == models.BookingHold && b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *bookingStore) GetCourt(_ context.Context, id string) (*models.Court, error) {
	defer s.lock()()
	c, ok := s.db.courts[id]
	if !ok {
		return nil, status.NotFound("court not found")
	}
	cp := *c
	return &cp, nil
}

func (s *bookingStore) FindBlocks(_ context.Context, courtID string, iv models.Interval) ([]*models.CourtBlock, error) {
	defer s.lock()()
	var out []*models.CourtBlock
	for _, cb := range s.db.blocks {
		if cb.CourtID == courtID && cb.Interval().Overlaps(iv) {
			cp := *cb
			out = append(out, &cp)
		}
	}
	return out, nil
}

type paymentStore struct {
	db   *DB
	intx bool
}

func (s *paymentStore) lock() func() {
	if s.intx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

func (s *paymentStore) CreateIntent(_ context.Context, pi *models.PaymentIntent) error {
	defer s.lock()()
	// Mirror of the partial unique (reference_type, reference_id)
	// index: at most one non-terminal intent per reference.
	for _, cur := range s.db.intents {
		if cur.ReferenceType == pi.ReferenceType && cur.ReferenceID == pi.ReferenceID && !cur.Terminal() {
			return status.Conflict("duplicate", "intent already exists for reference")
		}
	}
	cp := *pi
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.db.intents[pi.ID] = &cp
	return nil
}

func (s *paymentStore) GetIntent(_ context.Context, id string) (*models.PaymentIntent, error) {
	defer s.lock()()
	pi, ok := s.db.intents[id]
	if !ok {
		return nil, status.NotFound("payment intent not found")
	}
	cp := *pi
	return &cp, nil
}

func (s *paymentStore) UpdateIntent(_ context.Context, pi *models.PaymentIntent) error {
	defer s.lock()()
	cur, ok := s.db.intents[pi.ID]
	if !ok {
		return status.NotFound("payment intent not found")
	}
	cur.Status = pi.Status
	cur.ExpiresAt = pi.ExpiresAt
	cur.PaidAt = pi.PaidAt
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *paymentStore) FindIntentByReference(_ context.Context, refType, refID string) (*models.PaymentIntent, error) {
	defer s.lock()()
	var latest *models.PaymentIntent
	for _, pi := range s.db.intents {
		if pi.ReferenceType != refType || pi.ReferenceID != refID {
			continue
		}
		if latest == nil || pi.CreatedAt.After(latest.CreatedAt) {
			latest = pi
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *paymentStore) FindExpiredPending(_ context.Context, now time.Time, limit int) ([]*models.PaymentIntent, error) {
	defer s.lock()()
	var out []*models.PaymentIntent
	for _, pi := range s.db.intents {
		if len(out) >= limit {
			break
		}
		if pi.Overdue(now) {
			cp := *pi
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *paymentStore) AppendTransaction(_ context.Context, tx *models.PaymentTransaction) error {
	defer s.lock()()
	cp := *tx
	cp.CreatedAt = time.Now()
	s.db.txs[tx.ID] = &cp
	return nil
}

func (s *paymentStore) FindTransactionByProviderEvent(_ context.Context, providerEventID string) (*models.PaymentTransaction, error) {
	defer s.lock()()
	for _, tx := range s.db.txs {
		if tx.ProviderEventID != "" && tx.ProviderEventID == providerEventID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *paymentStore) AppendEvent(_ context.Context, ev *models.PaymentEvent) error {
	defer s.lock()()
	cp := *ev
	cp.CreatedAt = time.Now()
	s.db.seq++
	if cp.ID == "" {
		cp.ID = fmt.Sprintf("ev-%d", s.db.seq)
	}
	s.db.events = append(s.db.events, &cp)
	return nil
}

func (s *paymentStore) ListEvents(_ context.Context, intentID string) ([]*models.PaymentEvent, error) {
	defer s.lock()()
	var out []*models.PaymentEvent
	for _, ev := range s.db.events {
		if ev.IntentID == intentID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}
