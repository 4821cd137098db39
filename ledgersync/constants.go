// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

// Status constants for queued operation lifecycle
const (
	StatusPending  = "pending"
	StatusSyncing  = "syncing"
	StatusSynced   = "synced"
	StatusConflict = "conflict"
	StatusFailed   = "failed"
)

// Operation type constants for the financial actions that can be queued offline
const (
	OpTypeSale            = "sale"
	OpTypeExpense         = "expense"
	OpTypeRecord          = "record"
	OpTypePayment         = "payment"
	OpTypeStockAdjustment = "stock_adjustment"
)

// Conflict type constants produced by the classifier
const (
	ConflictDuplicate       = "duplicate"
	ConflictVersionMismatch = "version_mismatch"
	ConflictDeleted         = "deleted"
)

// Resolution strategy constants
const (
	StrategyClientWins = "client_wins"
	StrategyServerWins = "server_wins"
	StrategyMerge      = "merge"
	StrategyManual     = "manual"
)

// Server error code constants understood by the classifier
const (
	CodeDuplicateOperation = "DUPLICATE_OPERATION"
	CodeVersionMismatch    = "VERSION_MISMATCH"
	CodeResourceNotFound   = "RESOURCE_NOT_FOUND"
)

// Error code constants recorded on an operation after a failed replay
const (
	CodeNetworkError = "NETWORK_ERROR"
	CodeServerError  = "SERVER_ERROR"
)

// Sync type constants for history records
const (
	SyncTypeAutomatic = "automatic"
	SyncTypeManual    = "manual"
)

// History status constants
const (
	HistorySuccess = "success"
	HistoryFailed  = "failed"
)
