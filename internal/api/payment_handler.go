package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/carouselmaker/internal/api/shared"
	"github.com/phrazzld/carouselmaker/internal/service"
)

// PaymentHandler receives payment gateway callbacks. The route is guarded
// by the webhook secret middleware.
type PaymentHandler struct {
	payments service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Webhook handles POST /webhook/payments. Redelivery of a credited payment
// is acknowledged with 200 so the gateway stops retrying.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	res, err := h.payments.HandleNotification(r.Context(), service.PaymentNotification{
		Event:      req.Event,
		PaymentID:  req.PaymentID,
		TelegramID: req.TelegramID,
		Credits:    req.Credits,
	})
	switch {
	case errors.Is(err, service.ErrDuplicatePayment):
		shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{Status: "duplicate"})
	case err != nil:
		HandleAPIError(w, r, err, "")
	case !res.Credited:
		shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{Status: "ignored"})
	default:
		shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{Status: "ok"})
	}
}
