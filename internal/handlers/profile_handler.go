package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/folio/backend/internal/middleware"
	"github.com/folio/backend/internal/models"
	"github.com/folio/backend/internal/services"
)

// ProfileHandler serves the end-user suspension status and profile completion.
type ProfileHandler struct {
	suspension *services.SuspensionService
	timeout    time.Duration
	log        *zap.Logger
}

func NewProfileHandler(suspension *services.SuspensionService, timeout time.Duration, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{suspension: suspension, timeout: timeout, log: log.Named("profile_handler")}
}

func (h *ProfileHandler) ProfileStatus(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	st, err := h.suspension.ProfileStatus(ctx, id.UserID, id.Email, id.Name)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load profile status")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(st))
}

func (h *ProfileHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.CompleteProfileRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	st, err := h.suspension.CompleteProfile(ctx, userID, &req)
	if errors.Is(err, services.ErrProfileIncomplete) {
		writeJSON(w, http.StatusUnprocessableEntity, models.APIResponse{
			Success: false,
			Data:    st,
			Error:   "Profile is still incomplete",
		})
		return
	}
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to complete profile")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(st))
}
