package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/folio/backend/internal/models"
	"github.com/folio/backend/internal/services"
)

type NotificationHandler struct {
	dispatcher *services.NotificationDispatcher
	timeout    time.Duration
	log        *zap.Logger
}

func NewNotificationHandler(dispatcher *services.NotificationDispatcher, timeout time.Duration, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher, timeout: timeout, log: log.Named("notification_handler")}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.NotificationStatusFilter(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = models.NotificationStatusAll
	case models.NotificationStatusAll, models.NotificationStatusRead, models.NotificationStatusUnread:
	default:
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{
			"status": "Status must be all, read or unread",
		}))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.dispatcher.List(ctx, status)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	st, err := h.dispatcher.Stats(ctx)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load notification stats")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(st))
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.dispatcher.MarkRead(ctx, id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to mark notification read")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(n))
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.dispatcher.MarkAllRead(ctx)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to mark notifications read")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]int64{"updated": n}))
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.dispatcher.Delete(ctx, id); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete notification")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(nil))
}

func (h *NotificationHandler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.dispatcher.CheckContent(ctx)
	if err != nil {
		writeServiceError(w, h.log, err, "Content check failed")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}
