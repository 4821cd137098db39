// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

// ClientAuthenticator extracts the caller's identity from HTTP requests.
// Implementations should validate auth (e.g., JWT) and provide all three
// identifiers.
type ClientAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
	GetBusinessID(r *http.Request) (string, error)
	GetDeviceID(r *http.Request) (string, error)
}

// HTTPSyncHandlers provides HTTP handlers for the offline sync API. The
// executor given at construction performs the actual replays for the
// sync-now endpoints.
type HTTPSyncHandlers struct {
	service       *SyncService
	executor      Executor
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

// NewHTTPSyncHandlers creates a new instance of sync handlers
func NewHTTPSyncHandlers(service *SyncService, executor Executor, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPSyncHandlers {
	return &HTTPSyncHandlers{
		service:       service,
		executor:      executor,
		authenticator: authenticator,
		logger:        logger,
	}
}

// identity resolves the caller triple or writes a 401.
func (h *HTTPSyncHandlers) identity(w http.ResponseWriter, r *http.Request) (userID, businessID, deviceID string, ok bool) {
	var err error
	if userID, err = h.authenticator.GetUserID(r); err == nil {
		if businessID, err = h.authenticator.GetBusinessID(r); err == nil {
			if deviceID, err = h.authenticator.GetDeviceID(r); err == nil {
				return userID, businessID, deviceID, true
			}
		}
	}
	h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
	return "", "", "", false
}

// HandleEnqueue captures a failed live call as a queued offline operation
func (h *HTTPSyncHandlers) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	userID, businessID, deviceID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse enqueue request")
		return
	}

	op, err := h.service.Enqueue(r.Context(), userID, businessID, deviceID, &req)
	if err != nil {
		h.writeServiceError(w, err, "enqueue_failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, op.ToOperationResponse())
}

// HandleSyncNow replays the business's pending queue through the executor
func (h *HTTPSyncHandlers) HandleSyncNow(w http.ResponseWriter, r *http.Request) {
	_, businessID, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	result, err := h.service.SyncPending(r.Context(), businessID, h.executor, SyncTypeManual)
	if err != nil {
		h.writeServiceError(w, err, "sync_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleReplayOperation replays one pending operation through the executor
func (h *HTTPSyncHandlers) HandleReplayOperation(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := h.identity(w, r); !ok {
		return
	}

	op, err := h.service.SyncOne(r.Context(), r.PathValue("id"), h.executor, SyncTypeManual)
	if err != nil {
		h.writeServiceError(w, err, "sync_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, op.ToOperationResponse())
}

// HandleGetOperation returns one queued operation
func (h *HTTPSyncHandlers) HandleGetOperation(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := h.identity(w, r); !ok {
		return
	}

	op, err := h.service.GetOperation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "load_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, op.ToOperationResponse())
}

// HandleResolveConflict closes out a conflicted operation with a strategy
func (h *HTTPSyncHandlers) HandleResolveConflict(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := h.identity(w, r); !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse resolve request")
		return
	}

	op, err := h.service.ResolveConflict(r.Context(), req.OperationID, req.Strategy)
	if err != nil {
		h.writeServiceError(w, err, "resolve_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, op.ToOperationResponse())
}

// HandleRetryFailed resets the business's retryable failed operations
func (h *HTTPSyncHandlers) HandleRetryFailed(w http.ResponseWriter, r *http.Request) {
	_, businessID, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	result, err := h.service.RetryFailed(r.Context(), businessID)
	if err != nil {
		h.writeServiceError(w, err, "retry_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleResetOperation reclaims one retry-exhausted failed operation
func (h *HTTPSyncHandlers) HandleResetOperation(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := h.identity(w, r); !ok {
		return
	}

	op, err := h.service.ResetFailed(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "reset_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, op.ToOperationResponse())
}

// HandleStatus returns the per-status queue tally for the business
func (h *HTTPSyncHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_, businessID, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	counts, err := h.service.GetSyncStatus(r.Context(), businessID)
	if err != nil {
		h.writeServiceError(w, err, "status_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, counts)
}

// HandleHistory returns recent sync attempts for one operation, newest first
func (h *HTTPSyncHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := h.identity(w, r); !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	recs, err := h.service.GetHistory(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.writeServiceError(w, err, "history_failed")
		return
	}
	out := make([]*HistoryResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ToHistoryResponse())
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HandleCleanup removes old synced operations for the business
func (h *HTTPSyncHandlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	_, businessID, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	days := 0
	if v := r.URL.Query().Get("retention_days"); v != "" {
		days, _ = strconv.Atoi(v)
	}
	deleted, err := h.service.CleanupSynced(r.Context(), businessID, days)
	if err != nil {
		h.writeServiceError(w, err, "cleanup_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// HandleGetConfig returns the business's offline policy
func (h *HTTPSyncHandlers) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	_, businessID, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	cfg, err := h.service.GetConfig(r.Context(), businessID)
	if err != nil {
		h.writeServiceError(w, err, "config_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// HandleUpdateConfig merge-updates the business's offline policy
func (h *HTTPSyncHandlers) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	_, businessID, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	var patch ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse config patch")
		return
	}

	cfg, err := h.service.UpdateConfig(r.Context(), businessID, &patch)
	if err != nil {
		h.writeServiceError(w, err, "config_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *HTTPSyncHandlers) writeServiceError(w http.ResponseWriter, err error, code string) {
	var vErr *ValidationError
	switch {
	case errors.Is(err, ErrOperationNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &vErr):
		h.writeError(w, http.StatusBadRequest, "validation_failed", vErr.Error())
	default:
		h.logger.Error("Request failed", "error", err, "code", code)
		h.writeError(w, http.StatusInternalServerError, code, "internal error")
	}
}

func (h *HTTPSyncHandlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}
