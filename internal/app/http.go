package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"alertcenter/internal/channel"
	"alertcenter/internal/clock"
	"alertcenter/internal/domain"
	"alertcenter/internal/store"
)

// APIHandler exposes the alert management endpoints under /v1.
// Params: store, orchestrator, scheduler, in-app feed, clock, and body limit.
// Returns: HTTP handler mounted on the admin mux.
type APIHandler struct {
	store        store.Store
	orchestrator *Orchestrator
	scheduler    *Scheduler
	feed         *channel.InApp
	clock        clock.Clock
	logger       *slog.Logger
	maxBodySize  int64
}

// NewAPIHandler creates the /v1 API handler.
// Params: runtime components and max request body size in bytes.
// Returns: configured handler.
func NewAPIHandler(st store.Store, orch *Orchestrator, sched *Scheduler, feed *channel.InApp, clk clock.Clock, logger *slog.Logger, maxBodySize int64) *APIHandler {
	return &APIHandler{
		store:        st,
		orchestrator: orch,
		scheduler:    sched,
		feed:         feed,
		clock:        clk,
		logger:       logger,
		maxBodySize:  maxBodySize,
	}
}

// Register mounts the API routes on the mux.
// Params: target mux.
// Returns: nothing.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/alerts", h.createAlert)
	mux.HandleFunc("GET /v1/alerts/{id}", h.getAlert)
	mux.HandleFunc("POST /v1/alerts/{id}/deliver", h.deliverAlert)
	mux.HandleFunc("POST /v1/alerts/{id}/archive", h.archiveAlert)
	mux.HandleFunc("POST /v1/alerts/{id}/read", h.markRead)
	mux.HandleFunc("POST /v1/alerts/{id}/snooze", h.snooze)
	mux.HandleFunc("GET /v1/alerts/{id}/deliveries", h.listDeliveries)
	mux.HandleFunc("GET /v1/feed/{user}", h.userFeed)
	mux.HandleFunc("GET /v1/scheduler", h.schedulerStatus)
}

// createAlertRequest is the POST /v1/alerts body.
// Params: alert fields; timestamps are RFC 3339.
// Returns: decoded creation request.
type createAlertRequest struct {
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	Severity         string     `json:"severity"`
	Visibility       string     `json:"visibility"`
	VisibilityTarget string     `json:"visibility_target,omitempty"`
	StartsAt         *time.Time `json:"starts_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemindersEnabled bool       `json:"reminders_enabled"`
}

// createAlert stores a new alert without delivering it.
// Params: request with createAlertRequest body.
// Returns: 201 with the stored alert, 400 on validation failures.
func (h *APIHandler) createAlert(writer http.ResponseWriter, request *http.Request) {
	var body createAlertRequest
	if !h.decode(writer, request, &body) {
		return
	}

	severity, err := domain.ParseSeverity(body.Severity)
	if err != nil {
		h.writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	now := h.clock.Now()
	alert := domain.Alert{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(body.Title),
		Message:          body.Message,
		Severity:         severity,
		Visibility:       domain.Visibility(strings.ToLower(strings.TrimSpace(body.Visibility))),
		VisibilityTarget: strings.TrimSpace(body.VisibilityTarget),
		StartsAt:         body.StartsAt,
		ExpiresAt:        body.ExpiresAt,
		RemindersEnabled: body.RemindersEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := alert.Validate(); err != nil {
		h.writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateAlert(request.Context(), alert); err != nil {
		h.storeError(writer, err)
		return
	}
	h.writeJSON(writer, http.StatusCreated, alert)
}

// getAlert returns one alert by id.
// Params: request with {id} path value.
// Returns: 200 with the alert, 404 when absent.
func (h *APIHandler) getAlert(writer http.ResponseWriter, request *http.Request) {
	alert, err := h.store.GetAlert(request.Context(), request.PathValue("id"))
	if err != nil {
		h.storeError(writer, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, alert)
}

// deliverRequest is the optional POST deliver body.
// Params: optional single recipient target.
// Returns: decoded delivery request.
type deliverRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// deliverAlert triggers fan-out for one alert, or a single-user delivery
// when the body names a user.
// Params: request with {id} path value and optional deliverRequest body.
// Returns: 202 on success, 404 for missing or archived alerts.
func (h *APIHandler) deliverAlert(writer http.ResponseWriter, request *http.Request) {
	var body deliverRequest
	if request.ContentLength != 0 && !h.decode(writer, request, &body) {
		return
	}

	alertID := request.PathValue("id")
	var err error
	if body.UserID != "" {
		err = h.orchestrator.DeliverToUser(request.Context(), alertID, body.UserID)
	} else {
		err = h.orchestrator.DeliverAlert(request.Context(), alertID)
	}
	if err != nil {
		h.storeError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusAccepted)
}

// archiveAlert archives one alert so no further delivery can target it.
// Params: request with {id} path value.
// Returns: 204 on success, 404 when absent.
func (h *APIHandler) archiveAlert(writer http.ResponseWriter, request *http.Request) {
	if err := h.store.ArchiveAlert(request.Context(), request.PathValue("id"), h.clock.Now()); err != nil {
		h.storeError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// preferenceRequest is the read/snooze body.
// Params: acting user and snooze length.
// Returns: decoded preference request.
type preferenceRequest struct {
	UserID string `json:"user_id"`
	Hours  int    `json:"hours,omitempty"`
}

// markRead marks the alert read for the named user.
// Params: request with {id} path value and preferenceRequest body.
// Returns: 204 on success; repeating the call is a no-op.
func (h *APIHandler) markRead(writer http.ResponseWriter, request *http.Request) {
	var body preferenceRequest
	if !h.decode(writer, request, &body) {
		return
	}
	if body.UserID == "" {
		h.writeError(writer, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := h.orchestrator.MarkAsRead(request.Context(), body.UserID, request.PathValue("id")); err != nil {
		h.storeError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// snooze suppresses the alert for the named user.
// Params: request with {id} path value and preferenceRequest body; hours
// of zero applies the default snooze policy.
// Returns: 204 on success, 400 for negative hours.
func (h *APIHandler) snooze(writer http.ResponseWriter, request *http.Request) {
	var body preferenceRequest
	if !h.decode(writer, request, &body) {
		return
	}
	if body.UserID == "" {
		h.writeError(writer, http.StatusBadRequest, "user_id is required")
		return
	}
	if body.Hours < 0 {
		h.writeError(writer, http.StatusBadRequest, "hours must not be negative")
		return
	}
	if err := h.orchestrator.Snooze(request.Context(), body.UserID, request.PathValue("id"), body.Hours); err != nil {
		h.storeError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// listDeliveries returns the delivery history for one alert, optionally
// filtered to one user with ?user=<id>.
// Params: request with {id} path value.
// Returns: 200 with the delivery list.
func (h *APIHandler) listDeliveries(writer http.ResponseWriter, request *http.Request) {
	deliveries, err := h.store.ListDeliveries(request.Context(), request.PathValue("id"), request.URL.Query().Get("user"))
	if err != nil {
		h.storeError(writer, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, deliveries)
}

// userFeed returns the in-app feed for one user, oldest first.
// Params: request with {user} path value.
// Returns: 200 with the notification list.
func (h *APIHandler) userFeed(writer http.ResponseWriter, request *http.Request) {
	h.writeJSON(writer, http.StatusOK, h.feed.Feed(request.PathValue("user")))
}

// schedulerStatus reports the reminder scheduler state.
// Params: none.
// Returns: 200 with the status snapshot.
func (h *APIHandler) schedulerStatus(writer http.ResponseWriter, _ *http.Request) {
	h.writeJSON(writer, http.StatusOK, h.scheduler.Status())
}

// decode reads and unmarshals a bounded JSON request body.
// Params: response writer, request, and destination.
// Returns: false after writing a 400 response on failure.
func (h *APIHandler) decode(writer http.ResponseWriter, request *http.Request, dest any) bool {
	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		h.writeError(writer, http.StatusBadRequest, "read body: "+err.Error())
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		h.writeError(writer, http.StatusBadRequest, "decode body: "+err.Error())
		return false
	}
	return true
}

// storeError maps a store error onto an HTTP status.
// Params: response writer and store error.
// Returns: 404 for missing records, 500 otherwise.
func (h *APIHandler) storeError(writer http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		h.writeError(writer, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("api request failed", "error", err)
	h.writeError(writer, http.StatusInternalServerError, "internal error")
}

// writeError writes a JSON error body with the given status.
// Params: response writer, status code, and message.
// Returns: nothing.
func (h *APIHandler) writeError(writer http.ResponseWriter, status int, message string) {
	h.writeJSON(writer, status, map[string]string{"error": message})
}

// writeJSON encodes the payload with the given status.
// Params: response writer, status code, and payload.
// Returns: nothing; encode failures are logged.
func (h *APIHandler) writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}
