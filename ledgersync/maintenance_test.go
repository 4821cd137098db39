// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetSyncStatusCountsPerStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustEnqueue(t, svc, "biz-1", OpTypeSale)
	mustEnqueue(t, svc, "biz-1", OpTypeSale)
	synced := mustEnqueue(t, svc, "biz-1", OpTypeExpense)
	_, err := svc.SyncOperation(ctx, synced.ID, &ExecResponse{ServerID: "srv-1"}, SyncTypeManual)
	require.NoError(t, err)
	conflictedOperation(t, svc, "biz-1")
	// Another business's rows must not be counted.
	mustEnqueue(t, svc, "biz-2", OpTypeSale)

	counts, err := svc.GetSyncStatus(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, 2, counts.Pending)
	require.Equal(t, 1, counts.Synced)
	require.Equal(t, 1, counts.Conflict)
	require.Equal(t, 0, counts.Failed)
	require.Equal(t, 4, counts.Total())
	require.NotNil(t, counts.LastSyncedAt)
}

// Two synced rows aged 10 and 2 days: a 7-day cleanup removes only the
// older one.
func TestCleanupSyncedHonorsAgeCutoff(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	old := mustEnqueue(t, svc, "biz-1", OpTypeSale)
	_, err := svc.SyncOperation(ctx, old.ID, &ExecResponse{}, SyncTypeManual)
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour) // old is now ~8 days before "now"

	recent := mustEnqueue(t, svc, "biz-1", OpTypeSale)
	_, err = svc.SyncOperation(ctx, recent.ID, &ExecResponse{}, SyncTypeManual)
	require.NoError(t, err)

	clock.Advance(2 * 24 * time.Hour) // old ~10 days, recent ~2 days

	deleted, err := svc.CleanupSynced(ctx, "biz-1", 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = store.GetOperation(ctx, old.ID)
	require.ErrorIs(t, err, ErrOperationNotFound)
	cur, err := store.GetOperation(ctx, recent.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSynced, cur.Status)
}

func TestCleanupSyncedNeverTouchesUnreplayedRows(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	pending := mustEnqueue(t, svc, "biz-1", OpTypeSale)
	conflicted := conflictedOperation(t, svc, "biz-1")
	failed := failedOperation(t, svc, "biz-1", 1, 1)

	clock.Advance(30 * 24 * time.Hour)

	deleted, err := svc.CleanupSynced(ctx, "biz-1", 7)
	require.NoError(t, err)
	require.Equal(t, int64(0), deleted)

	for _, id := range []string{pending.ID, conflicted.ID, failed.ID} {
		_, err := store.GetOperation(ctx, id)
		require.NoError(t, err)
	}
}

func TestCleanupSyncedUsesConfiguredDefaultRetention(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	op := mustEnqueue(t, svc, "biz-1", OpTypeSale)
	_, err := svc.SyncOperation(ctx, op.ID, &ExecResponse{}, SyncTypeManual)
	require.NoError(t, err)
	clock.Advance(8 * 24 * time.Hour)

	// retentionDays <= 0 falls back to the 7-day service default.
	deleted, err := svc.CleanupSynced(ctx, "biz-1", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestGetHistoryNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	op := mustEnqueue(t, svc, "biz-1", OpTypeSale)

	// Two failures then a success: three attempts, three records.
	for i := 0; i < 2; i++ {
		_, err := svc.SyncOne(ctx, op.ID, failExec(errTimeout), SyncTypeAutomatic)
		require.NoError(t, err)
	}
	_, err := svc.SyncOne(ctx, op.ID, succeedExec("srv-1"), SyncTypeManual)
	require.NoError(t, err)

	recs, err := svc.GetHistory(ctx, op.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, HistorySuccess, recs[0].Status)
	require.Equal(t, SyncTypeManual, recs[0].SyncType)
	require.Equal(t, HistoryFailed, recs[1].Status)
	require.Equal(t, HistoryFailed, recs[2].Status)
	require.True(t, !recs[0].StartedAt.Before(recs[1].StartedAt))

	// Limit is honored.
	recs, err = svc.GetHistory(ctx, op.ID, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}
