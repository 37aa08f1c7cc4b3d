package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"court-booking/internal/services"
	"court-booking/internal/status"
)

// apiError translates service errors to HTTP responses. The stable
// code (and conflict reason) rides along in the response data so
// clients can branch without parsing messages.
func apiError(err error) error {
	var se *status.Error
	code := status.CodeOf(err)
	data := map[string]any{"code": string(code)}
	if errors.As(err, &se) && se.Reason != "" {
		data["reason"] = se.Reason
	}

	switch code {
	case status.CodeValidation:
		return apis.NewBadRequestError(err.Error(), data)
	case status.CodeConflict, status.CodeInvalidState, status.CodeAlreadySettled:
		return apis.NewApiError(http.StatusConflict, err.Error(), data)
	case status.CodeExpired:
		return apis.NewApiError(http.StatusGone, err.Error(), data)
	case status.CodeNotFound:
		return apis.NewNotFoundError(err.Error(), data)
	default:
		return apis.NewInternalServerError("internal error", nil)
	}
}

// callerFrom builds the service caller identity from the request:
// record auth when present, otherwise the guest checkout token header.
func callerFrom(e *core.RequestEvent) services.Caller {
	caller := services.Caller{
		CheckoutToken: e.Request.Header.Get("X-Checkout-Token"),
	}
	if e.Auth != nil {
		caller.OwnerID = e.Auth.Id
	}
	return caller
}
