package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"court-booking/internal/provider"
	"court-booking/internal/services"
	"court-booking/models"
)

type PaymentHandler struct {
	app       *pocketbase.PocketBase
	payments  *services.PaymentService
	simulator *provider.Simulator // nil outside development
}

func NewPaymentHandler(app *pocketbase.PocketBase, payments *services.PaymentService, simulator *provider.Simulator) *PaymentHandler {
	return &PaymentHandler{
		app:       app,
		payments:  payments,
		simulator: simulator,
	}
}

// CreateIntent - start (or resume) payment for a booking
func (h *PaymentHandler) CreateIntent(e *core.RequestEvent) error {
	var req services.CreateIntentRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.Caller = callerFrom(e)

	intent, checkout, err := h.payments.CreateIntent(e.Request.Context(), req)
	if err != nil {
		return apiError(err)
	}

	resp := map[string]any{"intent": intent}
	if checkout != nil {
		resp["checkout"] = checkout
	}
	return e.JSON(http.StatusCreated, resp)
}

// GetIntent - fetch intent status (polled by clients after checkout)
func (h *PaymentHandler) GetIntent(e *core.RequestEvent) error {
	intentID := e.Request.PathValue("intentId")

	intent, err := h.payments.GetIntent(e.Request.Context(), intentID, callerFrom(e))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"intent": intent})
}

// GetIntentByReference - lookup the intent attached to a booking
func (h *PaymentHandler) GetIntentByReference(e *core.RequestEvent) error {
	refType := e.Request.URL.Query().Get("reference_type")
	refID := e.Request.URL.Query().Get("reference_id")
	if refType == "" || refID == "" {
		return apis.NewBadRequestError("reference_type and reference_id are required", nil)
	}

	intent, err := h.payments.FindByReference(e.Request.Context(), refType, refID, callerFrom(e))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"intent": intent})
}

// ListIntentEvents - audit trail for an intent
func (h *PaymentHandler) ListIntentEvents(e *core.RequestEvent) error {
	intentID := e.Request.PathValue("intentId")

	events, err := h.payments.ListEvents(e.Request.Context(), intentID, callerFrom(e))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"events": events})
}

// Webhook - provider settlement callbacks, delivered at least once
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	var ev models.ProviderEvent
	if err := e.BindBody(&ev); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.payments.HandleProviderEvent(e.Request.Context(), &ev); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "ok"})
}

// SimulatePayment - push an outcome through the simulator (development only)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	if h.simulator == nil {
		return apis.NewNotFoundError("Not found", nil)
	}

	var req struct {
		IntentID string `json:"intent_id"`
		Outcome  string `json:"outcome"`
		EventID  string `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	err := h.simulator.Deliver(&models.ProviderEvent{
		EventID:  req.EventID,
		IntentID: req.IntentID,
		Outcome:  req.Outcome,
	})
	if err != nil {
		return apis.NewInternalServerError("Simulation delivery failed", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Payment simulation sent"})
}
