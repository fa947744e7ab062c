package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/folio/backend/internal/middleware"
	"github.com/folio/backend/internal/models"
	"github.com/folio/backend/internal/services"
)

// ConsistencyHandler serves the admin inconsistency review endpoints.
type ConsistencyHandler struct {
	checker    *services.ConsistencyChecker
	review     *services.AdminReview
	suspension *services.SuspensionService
	timeout    time.Duration
	log        *zap.Logger
}

func NewConsistencyHandler(checker *services.ConsistencyChecker, review *services.AdminReview, suspension *services.SuspensionService, timeout time.Duration, log *zap.Logger) *ConsistencyHandler {
	return &ConsistencyHandler{
		checker:    checker,
		review:     review,
		suspension: suspension,
		timeout:    timeout,
		log:        log.Named("consistency_handler"),
	}
}

func (h *ConsistencyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	st, err := h.review.Stats(ctx)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(st))
}

// parseLogFilter reads status, type and page. Page 0 means unpaged.
func parseLogFilter(r *http.Request) (models.LogFilter, int, map[string]string) {
	errs := make(map[string]string)
	q := r.URL.Query()

	f := models.LogFilter{Status: models.LogStatusAll}
	switch s := models.LogStatusFilter(q.Get("status")); s {
	case "", models.LogStatusAll:
	case models.LogStatusResolved, models.LogStatusUnresolved:
		f.Status = s
	default:
		errs["status"] = "Status must be all, resolved or unresolved"
	}

	if t := q.Get("type"); t != "" && t != "all" {
		if lt := models.LogType(t); lt.Valid() {
			f.Type = lt
		} else {
			errs["type"] = "Unknown log type"
		}
	}

	page := 0
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			errs["page"] = "Page must be a positive integer"
		} else {
			page = n
		}
	}
	return f, page, errs
}

func (h *ConsistencyHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter, page, errs := parseLogFilter(r)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.review.ListLogs(ctx, filter, page)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list logs")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}

func (h *ConsistencyHandler) ExportLogs(w http.ResponseWriter, r *http.Request) {
	filter, _, errs := parseLogFilter(r)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	// Buffer so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if _, err := h.review.ExportCSV(ctx, filter, &buf); err != nil {
		writeServiceError(w, h.log, err, "Failed to export logs")
		return
	}
	name := fmt.Sprintf("inconsistency-logs-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// UserLogs and ResolveLog share the {id} segment: a user id here, a log id there.
func (h *ConsistencyHandler) UserLogs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.review.UserLogs(ctx, userID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load user logs")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}

func (h *ConsistencyHandler) ResolveLog(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "id")

	var req models.ResolveLogRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	l, err := h.review.ResolveLog(ctx, logID, req.Notes, actorOf(r))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to resolve log")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(l))
}

func (h *ConsistencyHandler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	// A full pass can outlast the usual request timeout.
	ctx, cancel := contextWithTimeout(r.Context(), 4*h.timeout)
	defer cancel()

	sum, err := h.checker.RunAll(ctx)
	if err != nil {
		writeServiceError(w, h.log, err, "Consistency check failed")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sum))
}

func (h *ConsistencyHandler) DeletedAccounts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	accounts, err := h.review.DeletedAccounts(ctx)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list deleted accounts")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"accounts": accounts,
	}))
}

func (h *ConsistencyHandler) RestoreUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req models.RestoreUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	u, err := h.suspension.Restore(ctx, userID, actorOf(r), req.Reason)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to restore user")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"userId":      u.UserID,
		"isSuspended": u.IsSuspended,
	}))
}

// actorOf names the admin in audit fields, preferring the email.
func actorOf(r *http.Request) string {
	if email := middleware.GetUserEmail(r.Context()); email != "" {
		return email
	}
	return middleware.GetUserID(r.Context())
}
