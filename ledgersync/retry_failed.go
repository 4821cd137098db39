// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"fmt"
	"time"
)

// RetryFailed sends a business's retryable failed operations back to the
// pending queue, ordered by failed_at. Only rows with sync_attempts below
// their max_retries ceiling are selected; rows at the ceiling are skipped
// and stay parked until ResetFailed reclaims them.
//
// Each reset advances the attempt counter and clears last_error. Per-row
// failures are caught and reported without aborting the rest of the pass.
func (s *SyncService) RetryFailed(ctx context.Context, businessID string) (*RetryResult, error) {
	start := time.Now()
	result := &RetryResult{}

	ops, err := s.store.ListRetryableFailed(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list retryable operations: %w", err)
	}

	for _, op := range ops {
		if op.SyncAttempts >= op.MaxRetries {
			// The store query already filters on the ceiling; this guard
			// keeps the invariant even if a row moved between select and
			// reset.
			result.Skipped++
			continue
		}
		if err := s.lifecycle.markRetry(ctx, op); err != nil {
			s.logger.Error("Failed to reset operation for retry", "error", err, "operation_id", op.ID)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", op.ID, err))
			continue
		}
		result.Retried++
	}

	s.logger.Info("Retry pass finished",
		"business_id", businessID,
		"retried", result.Retried,
		"skipped", result.Skipped,
		"errors", len(result.Errors))
	s.observeStage(ctx, MetricsOpRetry, MetricsStageTotal, start, result.Retried, len(result.Errors) > 0)
	return result, nil
}
