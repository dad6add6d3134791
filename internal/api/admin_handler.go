package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/carouselmaker/internal/api/shared"
	"github.com/phrazzld/carouselmaker/internal/service"
)

// AdminHandler serves operator endpoints behind the admin key.
type AdminHandler struct {
	admin service.AdminService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(admin service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Grant handles POST /admin/users/{telegram_id}/grant.
func (h *AdminHandler) Grant(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegram_id"), 10, 64)
	if err != nil || telegramID <= 0 {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid telegram_id", err)
		return
	}

	var req GrantRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	user, err := h.admin.Grant(r.Context(), telegramID, req.Amount)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user, false))
}
