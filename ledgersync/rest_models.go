// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"encoding/json"
	"time"
)

// REST/JSON models for the HTTP API.
// user_id, business_id and device_id are derived from JWT claims, never from
// request bodies.

// EnqueueRequest captures a failed live call as a queued offline operation.
type EnqueueRequest struct {
	OperationType  string            `json:"operation_type"`        // sale, expense, record, payment, stock_adjustment
	OperationID    string            `json:"operation_id"`          // Client-generated idempotency key
	Endpoint       string            `json:"endpoint"`              // Replay target path
	Method         string            `json:"method"`                // POST, PUT, PATCH
	RequestBody    json.RawMessage   `json:"request_body"`          // Captured payload
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	ExecutedAt     *time.Time        `json:"executed_at,omitempty"` // When the client performed the action
	MaxRetries     int               `json:"max_retries,omitempty"` // 0 = service default
}

// BatchSyncResult is the tally returned by one batch sync run.
type BatchSyncResult struct {
	Success    int   `json:"success"`
	Failed     int   `json:"failed"`
	Conflict   int   `json:"conflict"`
	Total      int   `json:"total"`
	DurationMs int64 `json:"duration_ms"`
}

// RetryResult reports the outcome of a bulk retry pass over failed rows.
type RetryResult struct {
	Retried int      `json:"retried"`
	Skipped int      `json:"skipped"` // Rows at the max_retries ceiling
	Errors  []string `json:"errors,omitempty"`
}

// ResolveRequest asks for a conflict to be closed with a chosen strategy.
type ResolveRequest struct {
	OperationID string `json:"operation_id"` // Queue row id
	Strategy    string `json:"strategy"`     // client_wins, server_wins, merge, manual
}

// OperationResponse is the JSON projection of a queued operation.
type OperationResponse struct {
	ID                 string          `json:"id"`
	BusinessID         string          `json:"business_id"`
	OperationType      string          `json:"operation_type"`
	OperationID        string          `json:"operation_id"`
	Status             string          `json:"status"`
	SyncAttempts       int             `json:"sync_attempts"`
	MaxRetries         int             `json:"max_retries"`
	LastError          string          `json:"last_error,omitempty"`
	ErrorCode          string          `json:"error_code,omitempty"`
	ServerID           string          `json:"server_id,omitempty"`
	ConflictType       string          `json:"conflict_type,omitempty"`
	ConflictData       json.RawMessage `json:"conflict_data,omitempty"`
	ResolutionStrategy string          `json:"resolution_strategy,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	SyncedAt           *time.Time      `json:"synced_at,omitempty"`
	FailedAt           *time.Time      `json:"failed_at,omitempty"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
}

// ToOperationResponse converts a db entity to its JSON projection.
func (op *OfflineOperation) ToOperationResponse() *OperationResponse {
	return &OperationResponse{
		ID:                 op.ID,
		BusinessID:         op.BusinessID,
		OperationType:      op.OperationType,
		OperationID:        op.OperationID,
		Status:             op.Status,
		SyncAttempts:       op.SyncAttempts,
		MaxRetries:         op.MaxRetries,
		LastError:          op.LastError,
		ErrorCode:          op.ErrorCode,
		ServerID:           op.ServerID,
		ConflictType:       op.ConflictType,
		ConflictData:       op.ConflictData,
		ResolutionStrategy: op.ResolutionStrategy,
		CreatedAt:          op.CreatedAt,
		SyncedAt:           op.SyncedAt,
		FailedAt:           op.FailedAt,
		ResolvedAt:         op.ResolvedAt,
	}
}

// HistoryResponse is the JSON projection of one sync attempt record.
type HistoryResponse struct {
	ID           string          `json:"id"`
	QueueID      string          `json:"queue_id"`
	SyncType     string          `json:"sync_type"`
	Status       string          `json:"status"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	DeviceID     string          `json:"device_id,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
}

// ToHistoryResponse converts a db entity to its JSON projection.
func (r *SyncHistoryRecord) ToHistoryResponse() *HistoryResponse {
	return &HistoryResponse{
		ID:           r.ID,
		QueueID:      r.QueueID,
		SyncType:     r.SyncType,
		Status:       r.Status,
		ResponseData: r.ResponseData,
		DeviceID:     r.DeviceID,
		StartedAt:    r.StartedAt,
	}
}

// ConfigPatch is a merge-update of the per-business offline policy. Nil
// fields keep their stored value.
type ConfigPatch struct {
	OfflineModeEnabled      *bool   `json:"offline_mode_enabled,omitempty"`
	AutoSyncEnabled         *bool   `json:"auto_sync_enabled,omitempty"`
	SyncIntervalMinutes     *int    `json:"sync_interval_minutes,omitempty"`
	MaxQueueSize            *int    `json:"max_queue_size,omitempty"`
	RetryDelaySeconds       *int    `json:"retry_delay_seconds,omitempty"`
	DefaultConflictStrategy *string `json:"default_conflict_strategy,omitempty"`
	AllowSalesOffline       *bool   `json:"allow_sales_offline,omitempty"`
	AllowExpensesOffline    *bool   `json:"allow_expenses_offline,omitempty"`
	AllowStockAdjustOffline *bool   `json:"allow_stock_adjust_offline,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
