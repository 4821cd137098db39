// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"time"
)

const (
	MetricsOpEnqueue   = "enqueue"
	MetricsOpSync      = "sync"
	MetricsOpBatchSync = "batch_sync"
	MetricsOpRetry     = "retry"
	MetricsOpCleanup   = "cleanup"

	MetricsStageTotal = "total"

	// Batch sync per-operation stages.
	MetricsStageClaim   = "claim"
	MetricsStageExecute = "execute"
	MetricsStagePersist = "persist"
)

// StageTiming is one observed stage duration, emitted to an optional
// recorder so deployments can feed whatever metrics backend they run.
type StageTiming struct {
	Operation string
	Stage     string
	Duration  time.Duration
	Count     int
	Error     bool
}

// StageMetricsRecorder receives stage timings when configured.
type StageMetricsRecorder interface {
	ObserveStage(ctx context.Context, timing StageTiming)
}

// StageMetricsRecorderFunc adapts a function to StageMetricsRecorder.
type StageMetricsRecorderFunc func(ctx context.Context, timing StageTiming)

func (f StageMetricsRecorderFunc) ObserveStage(ctx context.Context, timing StageTiming) {
	f(ctx, timing)
}

func (s *SyncService) observeStage(ctx context.Context, op, stage string, start time.Time, count int, failed bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveStage(ctx, StageTiming{
		Operation: op,
		Stage:     stage,
		Duration:  time.Since(start),
		Count:     count,
		Error:     failed,
	})
}
