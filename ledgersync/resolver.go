// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"fmt"
)

// ResolveConflict closes out a conflicted operation with a chosen strategy.
//
// client_wins sends the row back to pending for a fresh replay (the client
// version supersedes). Every other strategy marks the row synced: the
// server-side or manually reconciled state is accepted as final. "merge" is
// accepted as a policy value only; no content-level merge happens here, so
// callers choosing merge must supply an already-merged payload through a new
// operation.
//
// An unknown strategy fails validation before any write occurs.
func (s *SyncService) ResolveConflict(ctx context.Context, id, strategy string) (*OfflineOperation, error) {
	if err := validateStrategy(strategy); err != nil {
		return nil, err
	}

	op, err := s.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != StatusConflict {
		return nil, &ValidationError{Field: "operation_id", Message: fmt.Sprintf("operation in status %q has no conflict to resolve", op.Status)}
	}

	if err := s.lifecycle.markResolved(ctx, op, strategy); err != nil {
		return nil, fmt.Errorf("persist resolution: %w", err)
	}
	s.logger.Info("Conflict resolved",
		"operation_id", op.ID,
		"business_id", op.BusinessID,
		"conflict_type", op.ConflictType,
		"strategy", strategy,
		"status", op.Status)
	return op, nil
}

// ResetFailed is the administrative reclaim path for an operation parked at
// failed with an exhausted retry budget. The attempt counter is rewound to
// zero and the row re-enters the pending queue. Operations in any other
// status are untouched.
func (s *SyncService) ResetFailed(ctx context.Context, id string) (*OfflineOperation, error) {
	op, err := s.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != StatusFailed {
		return nil, &ValidationError{Field: "operation_id", Message: fmt.Sprintf("operation in status %q cannot be reset", op.Status)}
	}

	if err := s.lifecycle.markReset(ctx, op); err != nil {
		return nil, fmt.Errorf("persist reset: %w", err)
	}
	s.logger.Info("Failed operation reset for replay", "operation_id", op.ID, "business_id", op.BusinessID)
	return op, nil
}
