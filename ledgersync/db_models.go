// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"encoding/json"
	"time"
)

// Database entity models for the three sync relations.
// These models are shared by every Store implementation.

// OfflineOperation represents a row in ledger_sync.offline_operations.
// It is the unit of deferred work: a financial action captured while the
// client was offline, queued for replay against the authoritative backend.
type OfflineOperation struct {
	ID         string `db:"id"`          // UUID as string
	UserID     string `db:"user_id"`     // Owning user
	BusinessID string `db:"business_id"` // Owning business (queue scope)
	DeviceID   string `db:"device_id"`   // Capturing device

	OperationType string `db:"operation_type"` // sale, expense, record, payment, stock_adjustment
	OperationID   string `db:"operation_id"`   // Client-generated idempotency key

	Endpoint       string            `db:"endpoint"`        // Replay target path
	Method         string            `db:"method"`          // POST, PUT, PATCH
	RequestBody    json.RawMessage   `db:"request_body"`    // Captured request payload
	RequestHeaders map[string]string `db:"request_headers"` // Captured request headers (stored as JSON)

	ExecutedAt *time.Time `db:"executed_at"` // When the client performed the action
	CreatedAt  time.Time  `db:"created_at"`  // When the operation was enqueued
	SyncedAt   *time.Time `db:"synced_at"`   // When replay succeeded
	FailedAt   *time.Time `db:"failed_at"`   // When retries were exhausted
	ResolvedAt *time.Time `db:"resolved_at"` // When a conflict was resolved

	Status       string `db:"status"`        // pending, syncing, synced, conflict, failed
	SyncAttempts int    `db:"sync_attempts"` // Monotonically non-decreasing
	MaxRetries   int    `db:"max_retries"`   // Retry ceiling for this operation
	LastError    string `db:"last_error"`    // Message of the most recent failure
	ErrorCode    string `db:"error_code"`    // NETWORK_ERROR or SERVER_ERROR

	ServerResponse json.RawMessage `db:"server_response"` // Response recorded on success
	ServerID       string          `db:"server_id"`       // Authoritative record id assigned by the server

	ConflictType       string          `db:"conflict_type"`       // duplicate, version_mismatch, deleted
	ConflictData       json.RawMessage `db:"conflict_data"`       // Server-side state at detection time
	ResolutionStrategy string          `db:"resolution_strategy"` // client_wins, server_wins, merge, manual
}

// SyncHistoryRecord represents a row in ledger_sync.sync_history.
// One record is appended per sync attempt; records are never mutated.
type SyncHistoryRecord struct {
	ID           string          `db:"id"`            // UUID as string
	QueueID      string          `db:"queue_id"`      // OfflineOperation.ID
	UserID       string          `db:"user_id"`       // User on whose behalf the attempt ran
	SyncType     string          `db:"sync_type"`     // automatic or manual
	Status       string          `db:"status"`        // success or failed
	ResponseData json.RawMessage `db:"response_data"` // Raw outcome payload
	DeviceID     string          `db:"device_id"`     // Device that triggered the attempt
	StartedAt    time.Time       `db:"started_at"`    // Attempt start time
}

// OfflineConfig represents a row in ledger_sync.offline_config.
// One row per business; absent rows fall back to DefaultOfflineConfig.
type OfflineConfig struct {
	BusinessID              string `db:"business_id" json:"business_id"`
	OfflineModeEnabled      bool   `db:"offline_mode_enabled" json:"offline_mode_enabled"`
	AutoSyncEnabled         bool   `db:"auto_sync_enabled" json:"auto_sync_enabled"`
	SyncIntervalMinutes     int    `db:"sync_interval_minutes" json:"sync_interval_minutes"`
	MaxQueueSize            int    `db:"max_queue_size" json:"max_queue_size"`
	RetryDelaySeconds       int    `db:"retry_delay_seconds" json:"retry_delay_seconds"`
	DefaultConflictStrategy string `db:"default_conflict_strategy" json:"default_conflict_strategy"`
	AllowSalesOffline       bool   `db:"allow_sales_offline" json:"allow_sales_offline"`
	AllowExpensesOffline    bool   `db:"allow_expenses_offline" json:"allow_expenses_offline"`
	AllowStockAdjustOffline bool   `db:"allow_stock_adjust_offline" json:"allow_stock_adjust_offline"`
}

// DefaultOfflineConfig returns the policy applied to businesses without a
// stored config row.
func DefaultOfflineConfig(businessID string) *OfflineConfig {
	return &OfflineConfig{
		BusinessID:              businessID,
		OfflineModeEnabled:      true,
		AutoSyncEnabled:         true,
		SyncIntervalMinutes:     5,
		MaxQueueSize:            500,
		RetryDelaySeconds:       30,
		DefaultConflictStrategy: StrategyManual,
		AllowSalesOffline:       true,
		AllowExpensesOffline:    true,
		AllowStockAdjustOffline: true,
	}
}
