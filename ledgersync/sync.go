// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SyncOperation drives a single queued operation through the outcome of one
// replay attempt. The caller supplies the replay response; classification
// and the lifecycle transition happen here.
//
// Re-invoking on an already-synced operation is a safe no-op. Operations
// sitting at conflict or failed are not eligible and fail validation.
func (s *SyncService) SyncOperation(
	ctx context.Context, id string, resp *ExecResponse, syncType string,
) (*OfflineOperation, error) {
	op, err := s.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}

	switch op.Status {
	case StatusSynced:
		// Idempotent: the outcome is already recorded.
		return op, nil
	case StatusPending:
		claimed, err := s.store.ClaimOperation(ctx, op.ID)
		if err != nil {
			return nil, fmt.Errorf("claim operation: %w", err)
		}
		if !claimed {
			return nil, &ValidationError{Field: "operation_id", Message: "operation is being processed by another sync"}
		}
		op.Status = StatusSyncing
	case StatusSyncing:
		// Already claimed by this caller (batch path).
	default:
		return nil, &ValidationError{Field: "operation_id", Message: fmt.Sprintf("operation in status %q cannot be synced", op.Status)}
	}

	if err := s.completeSync(ctx, op, resp, syncType); err != nil {
		return nil, err
	}
	return op, nil
}

// completeSync routes a replay response into the conflict or success
// transition and appends the matching history entry.
func (s *SyncService) completeSync(ctx context.Context, op *OfflineOperation, resp *ExecResponse, syncType string) error {
	if c := ClassifyConflict(resp); c != nil {
		if err := s.lifecycle.markConflict(ctx, op, c); err != nil {
			return fmt.Errorf("persist conflict: %w", err)
		}
		s.logger.Info("Conflict detected on replay",
			"operation_id", op.ID,
			"business_id", op.BusinessID,
			"conflict_type", c.Type)
		s.logHistory(ctx, op, syncType, HistoryFailed, conflictHistoryData(c))
		return nil
	}

	if err := s.lifecycle.markSynced(ctx, op, resp); err != nil {
		return fmt.Errorf("persist sync result: %w", err)
	}
	var data []byte
	if resp != nil {
		data = resp.Data
	}
	s.logHistory(ctx, op, syncType, HistorySuccess, data)
	return nil
}

// failSync records a failed replay attempt and its history entry.
func (s *SyncService) failSync(ctx context.Context, op *OfflineOperation, execErr error, syncType string) error {
	if err := s.lifecycle.markFailure(ctx, op, execErr); err != nil {
		return fmt.Errorf("persist failure: %w", err)
	}
	s.logger.Warn("Replay attempt failed",
		"operation_id", op.ID,
		"business_id", op.BusinessID,
		"attempts", op.SyncAttempts,
		"max_retries", op.MaxRetries,
		"status", op.Status,
		"error_code", op.ErrorCode)
	data, _ := json.Marshal(map[string]string{"error": op.LastError, "error_code": op.ErrorCode})
	s.logHistory(ctx, op, syncType, HistoryFailed, data)
	return nil
}

// SyncOne claims a single pending operation, replays it through the
// supplied executor and routes the outcome. Used by the manual
// operation-level replay entry point; batch callers use SyncPending.
func (s *SyncService) SyncOne(
	ctx context.Context, id string, exec Executor, syncType string,
) (*OfflineOperation, error) {
	if exec == nil {
		return nil, &ValidationError{Field: "executor", Message: "executor is required"}
	}
	op, err := s.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status == StatusSynced {
		return op, nil
	}
	if op.Status != StatusPending {
		return nil, &ValidationError{Field: "operation_id", Message: fmt.Sprintf("operation in status %q cannot be synced", op.Status)}
	}

	claimed, err := s.store.ClaimOperation(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("claim operation: %w", err)
	}
	if !claimed {
		return nil, &ValidationError{Field: "operation_id", Message: "operation is being processed by another sync"}
	}
	op.Status = StatusSyncing

	resp, execErr := exec.Execute(ctx, op)
	if execErr != nil {
		if err := s.failSync(ctx, op, execErr, syncType); err != nil {
			return nil, err
		}
		return op, nil
	}
	if err := s.completeSync(ctx, op, resp, syncType); err != nil {
		return nil, err
	}
	return op, nil
}

// SyncPending replays the pending queue of one business through the
// supplied executor. Operations are processed strictly sequentially in
// creation order: later operations may depend on server state mutated by
// earlier ones (a stock adjustment following a sale). Per-operation errors
// are isolated so one bad replay never aborts the rest of the batch.
func (s *SyncService) SyncPending(
	ctx context.Context, businessID string, exec Executor, syncType string,
) (*BatchSyncResult, error) {
	if exec == nil {
		return nil, &ValidationError{Field: "executor", Message: "executor is required"}
	}
	start := time.Now()
	result := &BatchSyncResult{}

	ops, err := s.store.ListPending(ctx, businessID, s.config.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}

		claimStart := time.Now()
		claimed, err := s.store.ClaimOperation(ctx, op.ID)
		s.observeStage(ctx, MetricsOpBatchSync, MetricsStageClaim, claimStart, 1, err != nil)
		if err != nil {
			s.logger.Error("Failed to claim operation", "error", err, "operation_id", op.ID)
			result.Failed++
			result.Total++
			continue
		}
		if !claimed {
			// Lost the race to a concurrent poller; not this batch's row.
			continue
		}
		op.Status = StatusSyncing
		result.Total++

		execStart := time.Now()
		resp, execErr := exec.Execute(ctx, op)
		s.observeStage(ctx, MetricsOpBatchSync, MetricsStageExecute, execStart, 1, execErr != nil)

		persistStart := time.Now()
		switch {
		case execErr != nil:
			if err := s.failSync(ctx, op, execErr, syncType); err != nil {
				s.logger.Error("Failed to persist replay failure", "error", err, "operation_id", op.ID)
			}
			result.Failed++
		default:
			wasConflict := ClassifyConflict(resp) != nil
			if err := s.completeSync(ctx, op, resp, syncType); err != nil {
				s.logger.Error("Failed to persist replay outcome", "error", err, "operation_id", op.ID)
				result.Failed++
				break
			}
			if wasConflict {
				result.Conflict++
			} else {
				result.Success++
			}
		}
		s.observeStage(ctx, MetricsOpBatchSync, MetricsStagePersist, persistStart, 1, false)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	s.logger.Info("Batch sync finished",
		"business_id", businessID,
		"total", result.Total,
		"success", result.Success,
		"failed", result.Failed,
		"conflict", result.Conflict,
		"duration_ms", result.DurationMs)
	s.observeStage(ctx, MetricsOpBatchSync, MetricsStageTotal, start, result.Total, result.Failed > 0)
	return result, nil
}

// conflictHistoryData builds the history payload for a conflict attempt.
func conflictHistoryData(c *Conflict) []byte {
	data, _ := json.Marshal(map[string]any{
		"conflict_type": c.Type,
		"conflict_data": json.RawMessage(c.Data),
	})
	return data
}
