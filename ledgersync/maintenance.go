// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"fmt"
	"time"
)

// GetSyncStatus returns the per-status queue tally for one business plus
// the most recent successful sync time.
func (s *SyncService) GetSyncStatus(ctx context.Context, businessID string) (*StatusCounts, error) {
	counts, err := s.store.CountOperations(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("count operations: %w", err)
	}
	return counts, nil
}

// CleanupSynced deletes synced operations older than the given number of
// days and returns the deleted count. retentionDays <= 0 falls back to the
// service default. Pending, syncing, conflict and failed rows are never
// touched: the engine never silently drops an unreplayed operation.
func (s *SyncService) CleanupSynced(ctx context.Context, businessID string, retentionDays int) (int64, error) {
	start := time.Now()
	if retentionDays <= 0 {
		retentionDays = s.config.RetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	deleted, err := s.store.DeleteSyncedBefore(ctx, businessID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete synced operations: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Retention cleanup removed synced operations",
			"business_id", businessID,
			"deleted", deleted,
			"retention_days", retentionDays)
	}
	s.observeStage(ctx, MetricsOpCleanup, MetricsStageTotal, start, int(deleted), false)
	return deleted, nil
}

// GetHistory returns the most recent sync attempts for one queued
// operation, newest first. limit <= 0 or > 100 falls back to 20.
func (s *SyncService) GetHistory(ctx context.Context, queueID string, limit int) ([]*SyncHistoryRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	recs, err := s.store.ListHistory(ctx, queueID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync history: %w", err)
	}
	return recs, nil
}
