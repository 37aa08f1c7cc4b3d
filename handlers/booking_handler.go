package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"court-booking/internal/services"
	"court-booking/models"
)

type BookingHandler struct {
	app          *pocketbase.PocketBase
	reservations *services.ReservationService
}

func NewBookingHandler(app *pocketbase.PocketBase, reservations *services.ReservationService) *BookingHandler {
	return &BookingHandler{
		app:          app,
		reservations: reservations,
	}
}

// CreateHold - place a time-limited hold on a court slot
func (h *BookingHandler) CreateHold(e *core.RequestEvent) error {
	var req struct {
		CourtID       string    `json:"court_id"`
		StartAt       time.Time `json:"start_at"`
		EndAt         time.Time `json:"end_at"`
		Price         string    `json:"price"`
		Currency      string    `json:"currency"`
		CustomerName  string    `json:"customer_name"`
		CustomerPhone string    `json:"customer_phone"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	price := decimal.Zero
	if req.Price != "" {
		var err error
		price, err = decimal.NewFromString(req.Price)
		if err != nil {
			return apis.NewBadRequestError("Invalid price", err)
		}
	}

	caller := callerFrom(e)
	booking, checkoutToken, err := h.reservations.CreateHold(e.Request.Context(), services.CreateHoldRequest{
		CourtID:       req.CourtID,
		Interval:      models.Interval{Start: req.StartAt, End: req.EndAt},
		Price:         price,
		Currency:      req.Currency,
		OwnerID:       caller.OwnerID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		return apiError(err)
	}

	resp := map[string]any{"booking": booking}
	if checkoutToken != "" {
		// Shown exactly once; only its hash is stored.
		resp["checkout_token"] = checkoutToken
	}
	return e.JSON(http.StatusCreated, resp)
}

// GetBooking - fetch a single booking
func (h *BookingHandler) GetBooking(e *core.RequestEvent) error {
	bookingID := e.Request.PathValue("bookingId")

	booking, err := h.reservations.Get(e.Request.Context(), bookingID, callerFrom(e))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"booking": booking})
}

// CancelBooking - release a hold or cancel a confirmed booking
func (h *BookingHandler) CancelBooking(e *core.RequestEvent) error {
	bookingID := e.Request.PathValue("bookingId")

	booking, err := h.reservations.Cancel(e.Request.Context(), bookingID, callerFrom(e))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"booking": booking})
}

// GetAvailability - busy intervals for a court within a window
func (h *BookingHandler) GetAvailability(e *core.RequestEvent) error {
	courtID := e.Request.PathValue("courtId")

	from, err := time.Parse(time.RFC3339, e.Request.URL.Query().Get("from"))
	if err != nil {
		return apis.NewBadRequestError("Invalid 'from' timestamp", err)
	}
	to, err := time.Parse(time.RFC3339, e.Request.URL.Query().Get("to"))
	if err != nil {
		return apis.NewBadRequestError("Invalid 'to' timestamp", err)
	}

	busy, err := h.reservations.Availability(e.Request.Context(), courtID, models.Interval{Start: from, End: to})
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"court_id": courtID,
		"busy":     busy,
	})
}
