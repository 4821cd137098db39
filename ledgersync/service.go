// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ServiceConfig holds configuration for the sync service
type ServiceConfig struct {
	AppName string // Application name for logging and connection tracking

	DefaultMaxRetries int // Retry ceiling applied when an enqueue request does not set one (default 3)
	BatchLimit        int // Maximum pending operations processed per batch sync (default 1000)
	RetentionDays     int // Default age cutoff for cleanup of synced rows (default 7)
	MaxPayloadBytes   int // Maximum captured request body size in bytes (0 = unlimited)

	StageMetrics StageMetricsRecorder // Optional stage timing recorder
}

// SyncService is the offline synchronization engine. It owns the queued
// operation lifecycle end to end: enqueue, replay orchestration, conflict
// classification and resolution, retry accounting, and maintenance.
//
// The service is I/O-agnostic: persistence goes through the Store port and
// the actual network replay goes through an Executor supplied per batch.
type SyncService struct {
	store     Store
	logger    *slog.Logger
	config    *ServiceConfig
	lifecycle *lifecycle
	metrics   StageMetricsRecorder
	now       func() time.Time
}

// NewSyncService creates a sync service on top of a Store implementation.
// This is the main entry point for SDK users.
func NewSyncService(store Store, config *ServiceConfig, logger *slog.Logger) (*SyncService, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config == nil {
		config = &ServiceConfig{}
	}
	if config.AppName == "" {
		config.AppName = "go-ledgersync"
	}
	if config.DefaultMaxRetries <= 0 {
		config.DefaultMaxRetries = 3
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = 1000
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 7
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &SyncService{
		store:   store,
		logger:  logger,
		config:  config,
		metrics: config.StageMetrics,
		now:     time.Now,
	}
	s.lifecycle = &lifecycle{store: store, now: func() time.Time { return s.now() }}
	return s, nil
}

// Enqueue captures a failed live call as a queued offline operation. The
// row starts at pending with zero attempts and is owned by the lifecycle
// from then on.
//
// The per-business policy is enforced here: offline mode must be enabled,
// the operation type must be allowed offline, and the pending queue must be
// under max_queue_size.
func (s *SyncService) Enqueue(
	ctx context.Context, userID, businessID, deviceID string, req *EnqueueRequest,
) (*OfflineOperation, error) {
	start := s.now()
	if err := s.validateEnqueue(req); err != nil {
		return nil, err
	}

	cfg, err := s.GetConfig(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("load offline config: %w", err)
	}
	if !cfg.OfflineModeEnabled {
		return nil, &ValidationError{Field: "business_id", Message: "offline mode is disabled for this business"}
	}
	if !allowedOffline(cfg, req.OperationType) {
		return nil, &ValidationError{Field: "operation_type", Message: fmt.Sprintf("%s operations are not allowed offline for this business", req.OperationType)}
	}
	if cfg.MaxQueueSize > 0 {
		pending, err := s.store.CountPending(ctx, businessID)
		if err != nil {
			return nil, fmt.Errorf("count pending queue: %w", err)
		}
		if pending >= cfg.MaxQueueSize {
			return nil, &ValidationError{Field: "business_id", Message: fmt.Sprintf("offline queue is full (%d operations)", pending)}
		}
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.config.DefaultMaxRetries
	}
	op := &OfflineOperation{
		ID:             uuid.NewString(),
		UserID:         userID,
		BusinessID:     businessID,
		DeviceID:       deviceID,
		OperationType:  req.OperationType,
		OperationID:    req.OperationID,
		Endpoint:       req.Endpoint,
		Method:         req.Method,
		RequestBody:    req.RequestBody,
		RequestHeaders: req.RequestHeaders,
		ExecutedAt:     req.ExecutedAt,
		CreatedAt:      s.now(),
		Status:         StatusPending,
		SyncAttempts:   0,
		MaxRetries:     maxRetries,
	}
	if err := s.store.InsertOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("insert offline operation: %w", err)
	}

	s.logger.Debug("Enqueued offline operation",
		"operation_id", op.ID,
		"business_id", businessID,
		"operation_type", op.OperationType,
		"idempotency_key", op.OperationID)
	s.observeStage(ctx, MetricsOpEnqueue, MetricsStageTotal, start, 1, false)
	return op, nil
}

// GetOperation loads one queued operation by id.
func (s *SyncService) GetOperation(ctx context.Context, id string) (*OfflineOperation, error) {
	return s.store.GetOperation(ctx, id)
}

// logHistory appends one attempt record. History writes are deliberately
// not transactionally linked to the status update; on a mid-process crash
// the two can diverge, which operators tolerate in exchange for keeping
// every Store call single-statement.
func (s *SyncService) logHistory(ctx context.Context, op *OfflineOperation, syncType, status string, responseData []byte) {
	rec := &SyncHistoryRecord{
		ID:           uuid.NewString(),
		QueueID:      op.ID,
		UserID:       op.UserID,
		SyncType:     syncType,
		Status:       status,
		ResponseData: responseData,
		DeviceID:     op.DeviceID,
		StartedAt:    s.now(),
	}
	if err := s.store.InsertHistory(ctx, rec); err != nil {
		s.logger.Error("Failed to append sync history", "error", err, "queue_id", op.ID)
	}
}
