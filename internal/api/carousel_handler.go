package api

import (
	"net/http"

	"github.com/phrazzld/carouselmaker/internal/api/shared"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/service"
)

// CarouselHandler handles carousel generation requests
type CarouselHandler struct {
	carousels service.CarouselService
}

// NewCarouselHandler creates a new CarouselHandler
func NewCarouselHandler(carousels service.CarouselService) *CarouselHandler {
	return &CarouselHandler{carousels: carousels}
}

// CreateGeneration handles POST /api/generations. The carousel is produced
// in the background, so a successful request answers 202 Accepted.
func (h *CarouselHandler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req CreateGenerationRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}
	if req.Style == "" {
		req.Style = domain.DefaultStyle
	}

	sub, err := h.carousels.Request(r.Context(), service.CarouselRequest{
		TelegramID:      req.TelegramID,
		ChatID:          req.ChatID,
		InputText:       req.InputText,
		Style:           req.Style,
		StatusMessageID: req.StatusMessageID,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, sub)
}

// ListStyles handles GET /api/styles.
func ListStyles(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"styles":  domain.Styles(),
		"default": domain.DefaultStyle,
	})
}
