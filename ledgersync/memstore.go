// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store implementation used by tests, demos and
// single-process tooling. It applies the same semantics as the SQL stores:
// value-copy on read and write, atomic claim, ordered selects.
type MemStore struct {
	mu      sync.RWMutex
	ops     map[string]*OfflineOperation
	history []*SyncHistoryRecord
	configs map[string]*OfflineConfig
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		ops:     make(map[string]*OfflineOperation),
		configs: make(map[string]*OfflineConfig),
	}
}

func copyOp(op *OfflineOperation) *OfflineOperation {
	cp := *op
	return &cp
}

func (m *MemStore) InsertOperation(_ context.Context, op *OfflineOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op.ID] = copyOp(op)
	return nil
}

func (m *MemStore) GetOperation(_ context.Context, id string) (*OfflineOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.ops[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return copyOp(op), nil
}

func (m *MemStore) UpdateOperation(_ context.Context, op *OfflineOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ops[op.ID]; !ok {
		return ErrOperationNotFound
	}
	m.ops[op.ID] = copyOp(op)
	return nil
}

func (m *MemStore) ClaimOperation(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return false, ErrOperationNotFound
	}
	if op.Status != StatusPending {
		return false, nil
	}
	op.Status = StatusSyncing
	return true, nil
}

func (m *MemStore) ListPending(_ context.Context, businessID string, limit int) ([]*OfflineOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*OfflineOperation
	for _, op := range m.ops {
		if op.BusinessID == businessID && op.Status == StatusPending {
			out = append(out, copyOp(op))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ListRetryableFailed(_ context.Context, businessID string) ([]*OfflineOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*OfflineOperation
	for _, op := range m.ops {
		if op.BusinessID == businessID && op.Status == StatusFailed && op.SyncAttempts < op.MaxRetries {
			out = append(out, copyOp(op))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].FailedAt, out[j].FailedAt
		switch {
		case ti == nil:
			return true
		case tj == nil:
			return false
		default:
			return ti.Before(*tj)
		}
	})
	return out, nil
}

func (m *MemStore) CountOperations(_ context.Context, businessID string) (*StatusCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := &StatusCounts{}
	for _, op := range m.ops {
		if op.BusinessID != businessID {
			continue
		}
		switch op.Status {
		case StatusPending:
			counts.Pending++
		case StatusSyncing:
			counts.Syncing++
		case StatusSynced:
			counts.Synced++
		case StatusConflict:
			counts.Conflict++
		case StatusFailed:
			counts.Failed++
		}
		if op.SyncedAt != nil && (counts.LastSyncedAt == nil || op.SyncedAt.After(*counts.LastSyncedAt)) {
			t := *op.SyncedAt
			counts.LastSyncedAt = &t
		}
	}
	return counts, nil
}

func (m *MemStore) CountPending(_ context.Context, businessID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, op := range m.ops {
		if op.BusinessID == businessID && op.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) DeleteSyncedBefore(_ context.Context, businessID string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, op := range m.ops {
		if op.BusinessID == businessID && op.Status == StatusSynced &&
			op.SyncedAt != nil && op.SyncedAt.Before(cutoff) {
			delete(m.ops, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemStore) InsertHistory(_ context.Context, rec *SyncHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.history = append(m.history, &cp)
	return nil
}

func (m *MemStore) ListHistory(_ context.Context, queueID string, limit int) ([]*SyncHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SyncHistoryRecord
	// History is appended in order; walk backwards for newest-first.
	for i := len(m.history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.history[i].QueueID == queueID {
			cp := *m.history[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemStore) GetConfig(_ context.Context, businessID string) (*OfflineConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[businessID]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (m *MemStore) SaveConfig(_ context.Context, cfg *OfflineConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.configs[cfg.BusinessID] = &cp
	return nil
}
