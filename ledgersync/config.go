// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"fmt"
)

// GetConfig returns the offline policy for a business, falling back to
// DefaultOfflineConfig when no row is stored.
func (s *SyncService) GetConfig(ctx context.Context, businessID string) (*OfflineConfig, error) {
	cfg, err := s.store.GetConfig(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("load offline config: %w", err)
	}
	if cfg == nil {
		return DefaultOfflineConfig(businessID), nil
	}
	return cfg, nil
}

// UpdateConfig merge-updates the offline policy for a business: nil patch
// fields keep their current (or default) value. The default conflict
// strategy is validated before any write.
func (s *SyncService) UpdateConfig(ctx context.Context, businessID string, patch *ConfigPatch) (*OfflineConfig, error) {
	if patch == nil {
		return nil, &ValidationError{Message: "config patch is required"}
	}
	if patch.DefaultConflictStrategy != nil {
		if err := validateStrategy(*patch.DefaultConflictStrategy); err != nil {
			return nil, err
		}
	}
	if patch.MaxQueueSize != nil && *patch.MaxQueueSize < 0 {
		return nil, &ValidationError{Field: "max_queue_size", Message: "must not be negative"}
	}
	if patch.SyncIntervalMinutes != nil && *patch.SyncIntervalMinutes <= 0 {
		return nil, &ValidationError{Field: "sync_interval_minutes", Message: "must be positive"}
	}
	if patch.RetryDelaySeconds != nil && *patch.RetryDelaySeconds < 0 {
		return nil, &ValidationError{Field: "retry_delay_seconds", Message: "must not be negative"}
	}

	cfg, err := s.GetConfig(ctx, businessID)
	if err != nil {
		return nil, err
	}

	if patch.OfflineModeEnabled != nil {
		cfg.OfflineModeEnabled = *patch.OfflineModeEnabled
	}
	if patch.AutoSyncEnabled != nil {
		cfg.AutoSyncEnabled = *patch.AutoSyncEnabled
	}
	if patch.SyncIntervalMinutes != nil {
		cfg.SyncIntervalMinutes = *patch.SyncIntervalMinutes
	}
	if patch.MaxQueueSize != nil {
		cfg.MaxQueueSize = *patch.MaxQueueSize
	}
	if patch.RetryDelaySeconds != nil {
		cfg.RetryDelaySeconds = *patch.RetryDelaySeconds
	}
	if patch.DefaultConflictStrategy != nil {
		cfg.DefaultConflictStrategy = *patch.DefaultConflictStrategy
	}
	if patch.AllowSalesOffline != nil {
		cfg.AllowSalesOffline = *patch.AllowSalesOffline
	}
	if patch.AllowExpensesOffline != nil {
		cfg.AllowExpensesOffline = *patch.AllowExpensesOffline
	}
	if patch.AllowStockAdjustOffline != nil {
		cfg.AllowStockAdjustOffline = *patch.AllowStockAdjustOffline
	}

	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save offline config: %w", err)
	}
	s.logger.Debug("Offline config updated", "business_id", businessID)
	return cfg, nil
}
