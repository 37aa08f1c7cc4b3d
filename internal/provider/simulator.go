package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"court-booking/models"
	"court-booking/utils"
)

// Simulator is the development provider. It accepts every checkout and
// reports whatever outcome a test or the dev simulate endpoint pushes
// through Deliver. Deliveries go through the event channel like a real
// webhook would, so the whole settlement path is exercised.
type Simulator struct {
	mu     sync.Mutex
	events chan *models.ProviderEvent
	closed bool
}

func NewSimulator() *Simulator {
	return &Simulator{}
}

func (s *Simulator) GetName() Name {
	return ProviderSimulator
}

func (s *Simulator) CreateCheckout(_ context.Context, req *CheckoutRequest) (*Checkout, error) {
	ref, err := utils.GenerateCode(6)
	if err != nil {
		return nil, err
	}
	payload := fmt.Sprintf(`{"intent_id":%q,"amount":%q,"currency":%q,"reference":%q}`,
		req.IntentID, req.Amount.String(), req.Currency, req.Reference)
	return &Checkout{ProviderRef: "sim_" + ref, Payload: payload}, nil
}

func (s *Simulator) SetEventChannel(ch chan *models.ProviderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = ch
}

// Deliver pushes a settlement outcome, generating an event id when the
// caller does not supply one. Duplicate deliveries with the same event
// id are legal; the consumer must de-duplicate.
func (s *Simulator) Deliver(ev *models.ProviderEvent) error {
	s.mu.Lock()
	ch := s.events
	closed := s.closed
	s.mu.Unlock()

	if closed || ch == nil {
		return fmt.Errorf("simulator: event channel not set")
	}
	if ev.EventID == "" {
		ev.EventID = fmt.Sprintf("sim_evt_%d", time.Now().UnixNano())
	}
	ev.Provider = string(ProviderSimulator)

	select {
	case ch <- ev:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("simulator: event channel full")
	}
}

func (s *Simulator) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
