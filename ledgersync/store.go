// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"time"
)

// StatusCounts is the per-status tally returned by CountOperations.
type StatusCounts struct {
	Pending      int        `json:"pending"`
	Syncing      int        `json:"syncing"`
	Synced       int        `json:"synced"`
	Conflict     int        `json:"conflict"`
	Failed       int        `json:"failed"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// Total returns the number of queued operations across all statuses.
func (c StatusCounts) Total() int {
	return c.Pending + c.Syncing + c.Synced + c.Conflict + c.Failed
}

// Store is the persistence port over the three sync relations. Every method
// is a single-statement read-modify-write; the engine never requires a
// transaction spanning two Store calls.
//
// Implementations: PGStore (authoritative Postgres deployment), SQLiteStore
// (embedded single-node deployment), MemStore (tests and demos).
type Store interface {
	// Offline operations
	InsertOperation(ctx context.Context, op *OfflineOperation) error
	// GetOperation returns ErrOperationNotFound when the id is unknown.
	GetOperation(ctx context.Context, id string) (*OfflineOperation, error)
	UpdateOperation(ctx context.Context, op *OfflineOperation) error
	// ClaimOperation atomically moves a pending operation to syncing.
	// Returns false when the row was not pending (already claimed or moved),
	// which callers must treat as "skip", not as an error.
	ClaimOperation(ctx context.Context, id string) (bool, error)
	// ListPending returns pending operations for a business ordered
	// oldest-created-first, up to limit.
	ListPending(ctx context.Context, businessID string, limit int) ([]*OfflineOperation, error)
	// ListRetryableFailed returns failed operations with
	// sync_attempts < max_retries ordered by failed_at ascending.
	ListRetryableFailed(ctx context.Context, businessID string) ([]*OfflineOperation, error)
	CountOperations(ctx context.Context, businessID string) (*StatusCounts, error)
	CountPending(ctx context.Context, businessID string) (int, error)
	// DeleteSyncedBefore removes synced operations older than cutoff and
	// returns the number of rows deleted. Other statuses are never touched.
	DeleteSyncedBefore(ctx context.Context, businessID string, cutoff time.Time) (int64, error)

	// Sync history (append-only)
	InsertHistory(ctx context.Context, rec *SyncHistoryRecord) error
	// ListHistory returns the most recent attempts for one operation,
	// newest first, up to limit.
	ListHistory(ctx context.Context, queueID string, limit int) ([]*SyncHistoryRecord, error)

	// Per-business offline policy; GetConfig returns (nil, nil) when no row
	// exists so callers can fall back to DefaultOfflineConfig.
	GetConfig(ctx context.Context, businessID string) (*OfflineConfig, error)
	SaveConfig(ctx context.Context, cfg *OfflineConfig) error
}
