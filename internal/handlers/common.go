package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/folio/backend/internal/models"
	"github.com/folio/backend/internal/services"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func contextWithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 15 * time.Second
	}
	return context.WithTimeout(parent, d)
}

// decodeBody rejects unknown fields and trailing data. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// writeServiceError maps service errors onto status codes. Unknown errors are logged and
// reported as 500 with the fallback message.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("User not found"))
	case errors.Is(err, services.ErrLogNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Log not found"))
	case errors.Is(err, services.ErrNotificationNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Notification not found"))
	case errors.Is(err, services.ErrReasonRequired):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{
			"reason": "Reason is required",
		}))
	case errors.Is(err, services.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("Record changed concurrently, try again"))
	case errors.Is(err, services.ErrDeletionPending):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("Account is being deleted"))
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(fallback, zap.Error(err))
		writeJSON(w, http.StatusGatewayTimeout, models.NewErrorResponse("Request timed out"))
	default:
		log.Error(fallback, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(fallback))
	}
}
