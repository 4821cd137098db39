// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// flakyStore fails updates for one specific operation id.
type flakyStore struct {
	Store
	failID string
}

func (f *flakyStore) UpdateOperation(ctx context.Context, op *OfflineOperation) error {
	if op.ID == f.failID {
		return errSimulatedStore
	}
	return f.Store.UpdateOperation(ctx, op)
}

// failedOperation enqueues an operation with the given retry ceiling and
// drives it through failures until it parks at failed.
func failedOperation(t *testing.T, svc *SyncService, businessID string, maxRetries, failures int) *OfflineOperation {
	t.Helper()
	ctx := context.Background()
	req := testEnqueueRequest(OpTypeSale)
	req.MaxRetries = maxRetries
	op, err := svc.Enqueue(ctx, "user-1", businessID, "device-1", req)
	require.NoError(t, err)

	for i := 0; i < failures; i++ {
		_, err := svc.SyncOne(ctx, op.ID, failExec(errTimeout), SyncTypeAutomatic)
		require.NoError(t, err)
	}
	cur, err := svc.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	return cur
}

func TestRetryFailedResetsRetryableOperations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// A failed row only has budget remaining when its ceiling was raised
	// after it parked, so build exactly that.
	op := failedOperation(t, svc, "biz-1", 2, 2)
	require.Equal(t, StatusFailed, op.Status)
	require.Equal(t, 2, op.SyncAttempts)

	// Operator raises the ceiling, making the row retryable.
	op.MaxRetries = 5
	require.NoError(t, svc.store.UpdateOperation(ctx, op))

	result, err := svc.RetryFailed(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Retried)
	require.Equal(t, 0, result.Skipped)
	require.Empty(t, result.Errors)

	cur, err := svc.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, cur.Status)
	require.Equal(t, 3, cur.SyncAttempts) // retry consumes one attempt
	require.Empty(t, cur.LastError)
	require.Empty(t, cur.ErrorCode)
}

func TestRetryFailedSkipsExhaustedOperations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	exhausted := failedOperation(t, svc, "biz-1", 2, 2)
	require.Equal(t, StatusFailed, exhausted.Status)

	result, err := svc.RetryFailed(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, 0, result.Retried)

	cur, err := svc.GetOperation(ctx, exhausted.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, cur.Status)
	require.Equal(t, 2, cur.SyncAttempts)
}

func TestRetryFailedOrdersByFailedAt(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	first := failedOperation(t, svc, "biz-1", 2, 2)
	second := failedOperation(t, svc, "biz-1", 2, 2)
	for _, op := range []*OfflineOperation{first, second} {
		op.MaxRetries = 5
		require.NoError(t, store.UpdateOperation(ctx, op))
	}
	require.True(t, first.FailedAt.Before(*second.FailedAt))

	ops, err := store.ListRetryableFailed(ctx, "biz-1")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, first.ID, ops[0].ID)
	require.Equal(t, second.ID, ops[1].ID)
}

func TestRetryFailedIsolatesPerRowErrors(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	broken := failedOperation(t, svc, "biz-1", 2, 2)
	healthy := failedOperation(t, svc, "biz-1", 2, 2)
	for _, op := range []*OfflineOperation{broken, healthy} {
		op.MaxRetries = 5
		require.NoError(t, store.UpdateOperation(ctx, op))
	}

	// Wrap the store so updating the broken row fails.
	svc.store = &flakyStore{Store: store, failID: broken.ID}
	svc.lifecycle.store = svc.store

	result, err := svc.RetryFailed(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Retried)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], broken.ID)

	cur, err := store.GetOperation(ctx, healthy.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, cur.Status)
}
