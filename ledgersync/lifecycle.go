// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"time"
)

// lifecycle owns every mutation of an operation row. All status changes in
// the engine flow through these methods, so the set of reachable transitions
// is exactly the edges encoded here:
//
//	pending  -> syncing              (orchestrator claim)
//	syncing  -> synced               (replay succeeded, no conflict)
//	syncing  -> conflict             (replay succeeded, conflict detected)
//	syncing  -> pending | failed     (replay failed; failed iff attempts >= max_retries)
//	conflict -> pending | synced     (resolution; pending iff client_wins)
//	failed   -> pending              (explicit retry, attempts < max_retries)
type lifecycle struct {
	store Store
	now   func() time.Time
}

// markSynced records a successful replay: synced status, server outcome,
// synced_at timestamp, and one more attempt on the counter.
func (l *lifecycle) markSynced(ctx context.Context, op *OfflineOperation, resp *ExecResponse) error {
	now := l.now()
	op.Status = StatusSynced
	op.SyncAttempts++
	op.SyncedAt = &now
	op.LastError = ""
	op.ErrorCode = ""
	if resp != nil {
		op.ServerResponse = resp.Data
		if resp.ServerID != "" {
			op.ServerID = resp.ServerID
		}
	}
	return l.store.UpdateOperation(ctx, op)
}

// markConflict records a detected conflict. The attempt counter is not
// advanced here: the replay call reached the server and was answered, and
// the row now waits on a resolution decision rather than a retry budget.
// resolution_strategy starts at "manual" and is only ever overwritten by an
// explicit resolution; conflict_type/conflict_data are never cleared.
func (l *lifecycle) markConflict(ctx context.Context, op *OfflineOperation, c *Conflict) error {
	op.Status = StatusConflict
	op.ConflictType = c.Type
	op.ConflictData = c.Data
	if op.ResolutionStrategy == "" {
		op.ResolutionStrategy = StrategyManual
	}
	return l.store.UpdateOperation(ctx, op)
}

// markFailure records a failed replay attempt. The error is classified into
// the closed NETWORK/SERVER taxonomy, the attempt counter advances, and the
// row either returns to pending or parks at failed once the retry budget is
// spent.
func (l *lifecycle) markFailure(ctx context.Context, op *OfflineOperation, execErr error) error {
	classified := ClassifyExecError(execErr)
	op.SyncAttempts++
	op.LastError = classified.Error()
	op.ErrorCode = errorCode(classified)
	if op.SyncAttempts >= op.MaxRetries {
		now := l.now()
		op.Status = StatusFailed
		op.FailedAt = &now
	} else {
		op.Status = StatusPending
	}
	return l.store.UpdateOperation(ctx, op)
}

// markResolved applies a resolution decision to a conflicted operation.
// client_wins sends the row back through the replay queue; every other
// strategy accepts the server-side state as final.
func (l *lifecycle) markResolved(ctx context.Context, op *OfflineOperation, strategy string) error {
	now := l.now()
	op.ResolutionStrategy = strategy
	op.ResolvedAt = &now
	if strategy == StrategyClientWins {
		op.Status = StatusPending
	} else {
		op.Status = StatusSynced
	}
	return l.store.UpdateOperation(ctx, op)
}

// markRetry sends a failed operation back to pending. Callers must have
// checked the retry budget; the attempt counter advances so a row cannot
// loop through retry forever.
func (l *lifecycle) markRetry(ctx context.Context, op *OfflineOperation) error {
	op.Status = StatusPending
	op.SyncAttempts++
	op.LastError = ""
	op.ErrorCode = ""
	return l.store.UpdateOperation(ctx, op)
}

// markReset is the administrative reclaim path for operations parked at
// failed with an exhausted retry budget. It rewinds the attempt counter so
// the row is eligible for replay again.
func (l *lifecycle) markReset(ctx context.Context, op *OfflineOperation) error {
	op.Status = StatusPending
	op.SyncAttempts = 0
	op.LastError = ""
	op.ErrorCode = ""
	op.FailedAt = nil
	return l.store.UpdateOperation(ctx, op)
}
