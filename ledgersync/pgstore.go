// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the authoritative PostgreSQL Store implementation. All access
// is single-statement; writes that can hit serialization failures under
// concurrent pollers are retried a bounded number of times.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a Postgres-backed store from an existing pool and
// initializes the ledger_sync schema. The caller owns the pool lifecycle.
func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PGStore{pool: pool, logger: logger}
	if err := p.initializeSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("initialize ledger_sync schema: %w", err)
	}
	return p, nil
}

// SQLSTATEs worth another attempt: serialization_failure,
// deadlock_detected, lock_not_available.
var retryableSQLStates = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

// withTxRetry runs fn in a transaction, retrying on serialization and
// deadlock failures with a short backoff.
func (p *PGStore) withTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = pgx.BeginFunc(ctx, p.pool, fn)
		var pgErr *pgconn.PgError
		if err == nil || !errors.As(err, &pgErr) || !retryableSQLStates[pgErr.SQLState()] {
			return err
		}
		p.logger.Debug("Retrying transaction after transient PG error", "error", err, "attempt", attempt+1)
		select {
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

const opColumns = `id, user_id, business_id, device_id, operation_type, operation_id,
	endpoint, method, request_body, request_headers,
	executed_at, created_at, synced_at, failed_at, resolved_at,
	status, sync_attempts, max_retries, last_error, error_code,
	server_response, server_id, conflict_type, conflict_data, resolution_strategy`

func scanOperation(row pgx.Row) (*OfflineOperation, error) {
	var op OfflineOperation
	var headers []byte
	err := row.Scan(
		&op.ID, &op.UserID, &op.BusinessID, &op.DeviceID, &op.OperationType, &op.OperationID,
		&op.Endpoint, &op.Method, &op.RequestBody, &headers,
		&op.ExecutedAt, &op.CreatedAt, &op.SyncedAt, &op.FailedAt, &op.ResolvedAt,
		&op.Status, &op.SyncAttempts, &op.MaxRetries, &op.LastError, &op.ErrorCode,
		&op.ServerResponse, &op.ServerID, &op.ConflictType, &op.ConflictData, &op.ResolutionStrategy,
	)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &op.RequestHeaders); err != nil {
			return nil, fmt.Errorf("decode request headers: %w", err)
		}
	}
	return &op, nil
}

func encodeHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		return nil, nil
	}
	return json.Marshal(headers)
}

func (p *PGStore) InsertOperation(ctx context.Context, op *OfflineOperation) error {
	headers, err := encodeHeaders(op.RequestHeaders)
	if err != nil {
		return fmt.Errorf("encode request headers: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO ledger_sync.offline_operations (
			id, user_id, business_id, device_id, operation_type, operation_id,
			endpoint, method, request_body, request_headers,
			executed_at, created_at, status, sync_attempts, max_retries
		) VALUES (
			@id, @user_id, @business_id, @device_id, @operation_type, @operation_id,
			@endpoint, @method, @request_body, @request_headers,
			@executed_at, @created_at, @status, @sync_attempts, @max_retries
		)`,
		pgx.NamedArgs{
			"id":              op.ID,
			"user_id":         op.UserID,
			"business_id":     op.BusinessID,
			"device_id":       op.DeviceID,
			"operation_type":  op.OperationType,
			"operation_id":    op.OperationID,
			"endpoint":        op.Endpoint,
			"method":          op.Method,
			"request_body":    []byte(op.RequestBody),
			"request_headers": headers,
			"executed_at":     op.ExecutedAt,
			"created_at":      op.CreatedAt,
			"status":          op.Status,
			"sync_attempts":   op.SyncAttempts,
			"max_retries":     op.MaxRetries,
		})
	return err
}

func (p *PGStore) GetOperation(ctx context.Context, id string) (*OfflineOperation, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+opColumns+` FROM ledger_sync.offline_operations WHERE id=$1`, id)
	op, err := scanOperation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOperationNotFound
	}
	return op, err
}

func (p *PGStore) UpdateOperation(ctx context.Context, op *OfflineOperation) error {
	return p.withTxRetry(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE ledger_sync.offline_operations SET
				synced_at=@synced_at, failed_at=@failed_at, resolved_at=@resolved_at,
				status=@status, sync_attempts=@sync_attempts, last_error=@last_error, error_code=@error_code,
				server_response=@server_response, server_id=@server_id,
				conflict_type=@conflict_type, conflict_data=@conflict_data, resolution_strategy=@resolution_strategy
			WHERE id=@id`,
			pgx.NamedArgs{
				"id":                  op.ID,
				"synced_at":           op.SyncedAt,
				"failed_at":           op.FailedAt,
				"resolved_at":         op.ResolvedAt,
				"status":              op.Status,
				"sync_attempts":       op.SyncAttempts,
				"last_error":          op.LastError,
				"error_code":          op.ErrorCode,
				"server_response":     []byte(op.ServerResponse),
				"server_id":           op.ServerID,
				"conflict_type":       op.ConflictType,
				"conflict_data":       []byte(op.ConflictData),
				"resolution_strategy": op.ResolutionStrategy,
			})
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrOperationNotFound
		}
		return nil
	})
}

func (p *PGStore) ClaimOperation(ctx context.Context, id string) (bool, error) {
	var claimed bool
	err := p.withTxRetry(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE ledger_sync.offline_operations
			SET status='syncing'
			WHERE id=$1 AND status='pending'`, id)
		if err != nil {
			return err
		}
		claimed = tag.RowsAffected() == 1
		return nil
	})
	return claimed, err
}

func (p *PGStore) queryOperations(ctx context.Context, sql string, args pgx.NamedArgs) ([]*OfflineOperation, error) {
	rows, err := p.pool.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*OfflineOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (p *PGStore) ListPending(ctx context.Context, businessID string, limit int) ([]*OfflineOperation, error) {
	return p.queryOperations(ctx, `
		SELECT `+opColumns+`
		FROM ledger_sync.offline_operations
		WHERE business_id=@business_id AND status='pending'
		ORDER BY created_at ASC
		LIMIT @limit`,
		pgx.NamedArgs{"business_id": businessID, "limit": limit})
}

func (p *PGStore) ListRetryableFailed(ctx context.Context, businessID string) ([]*OfflineOperation, error) {
	return p.queryOperations(ctx, `
		SELECT `+opColumns+`
		FROM ledger_sync.offline_operations
		WHERE business_id=@business_id AND status='failed' AND sync_attempts < max_retries
		ORDER BY failed_at ASC`,
		pgx.NamedArgs{"business_id": businessID})
}

func (p *PGStore) CountOperations(ctx context.Context, businessID string) (*StatusCounts, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT status, COUNT(*), MAX(synced_at)
		FROM ledger_sync.offline_operations
		WHERE business_id=$1
		GROUP BY status`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := &StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		var lastSynced *time.Time
		if err := rows.Scan(&status, &n, &lastSynced); err != nil {
			return nil, err
		}
		switch status {
		case StatusPending:
			counts.Pending = n
		case StatusSyncing:
			counts.Syncing = n
		case StatusSynced:
			counts.Synced = n
			counts.LastSyncedAt = lastSynced
		case StatusConflict:
			counts.Conflict = n
		case StatusFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}

func (p *PGStore) CountPending(ctx context.Context, businessID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_sync.offline_operations
		WHERE business_id=$1 AND status='pending'`, businessID).Scan(&n)
	return n, err
}

func (p *PGStore) DeleteSyncedBefore(ctx context.Context, businessID string, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM ledger_sync.offline_operations
		WHERE business_id=@business_id AND status='synced' AND synced_at < @cutoff`,
		pgx.NamedArgs{"business_id": businessID, "cutoff": cutoff})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PGStore) InsertHistory(ctx context.Context, rec *SyncHistoryRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ledger_sync.sync_history (id, queue_id, user_id, sync_type, status, response_data, device_id, started_at)
		VALUES (@id, @queue_id, @user_id, @sync_type, @status, @response_data, @device_id, @started_at)`,
		pgx.NamedArgs{
			"id":            rec.ID,
			"queue_id":      rec.QueueID,
			"user_id":       rec.UserID,
			"sync_type":     rec.SyncType,
			"status":        rec.Status,
			"response_data": []byte(rec.ResponseData),
			"device_id":     rec.DeviceID,
			"started_at":    rec.StartedAt,
		})
	return err
}

func (p *PGStore) ListHistory(ctx context.Context, queueID string, limit int) ([]*SyncHistoryRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, queue_id, user_id, sync_type, status, response_data, device_id, started_at
		FROM ledger_sync.sync_history
		WHERE queue_id=@queue_id
		ORDER BY started_at DESC
		LIMIT @limit`,
		pgx.NamedArgs{"queue_id": queueID, "limit": limit})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*SyncHistoryRecord
	for rows.Next() {
		var rec SyncHistoryRecord
		if err := rows.Scan(&rec.ID, &rec.QueueID, &rec.UserID, &rec.SyncType, &rec.Status,
			&rec.ResponseData, &rec.DeviceID, &rec.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (p *PGStore) GetConfig(ctx context.Context, businessID string) (*OfflineConfig, error) {
	var cfg OfflineConfig
	err := p.pool.QueryRow(ctx, `
		SELECT business_id, offline_mode_enabled, auto_sync_enabled, sync_interval_minutes,
			max_queue_size, retry_delay_seconds, default_conflict_strategy,
			allow_sales_offline, allow_expenses_offline, allow_stock_adjust_offline
		FROM ledger_sync.offline_config WHERE business_id=$1`, businessID).Scan(
		&cfg.BusinessID, &cfg.OfflineModeEnabled, &cfg.AutoSyncEnabled, &cfg.SyncIntervalMinutes,
		&cfg.MaxQueueSize, &cfg.RetryDelaySeconds, &cfg.DefaultConflictStrategy,
		&cfg.AllowSalesOffline, &cfg.AllowExpensesOffline, &cfg.AllowStockAdjustOffline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *PGStore) SaveConfig(ctx context.Context, cfg *OfflineConfig) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ledger_sync.offline_config (
			business_id, offline_mode_enabled, auto_sync_enabled, sync_interval_minutes,
			max_queue_size, retry_delay_seconds, default_conflict_strategy,
			allow_sales_offline, allow_expenses_offline, allow_stock_adjust_offline
		) VALUES (
			@business_id, @offline_mode_enabled, @auto_sync_enabled, @sync_interval_minutes,
			@max_queue_size, @retry_delay_seconds, @default_conflict_strategy,
			@allow_sales_offline, @allow_expenses_offline, @allow_stock_adjust_offline
		)
		ON CONFLICT (business_id) DO UPDATE SET
			offline_mode_enabled=EXCLUDED.offline_mode_enabled,
			auto_sync_enabled=EXCLUDED.auto_sync_enabled,
			sync_interval_minutes=EXCLUDED.sync_interval_minutes,
			max_queue_size=EXCLUDED.max_queue_size,
			retry_delay_seconds=EXCLUDED.retry_delay_seconds,
			default_conflict_strategy=EXCLUDED.default_conflict_strategy,
			allow_sales_offline=EXCLUDED.allow_sales_offline,
			allow_expenses_offline=EXCLUDED.allow_expenses_offline,
			allow_stock_adjust_offline=EXCLUDED.allow_stock_adjust_offline`,
		pgx.NamedArgs{
			"business_id":                cfg.BusinessID,
			"offline_mode_enabled":       cfg.OfflineModeEnabled,
			"auto_sync_enabled":          cfg.AutoSyncEnabled,
			"sync_interval_minutes":      cfg.SyncIntervalMinutes,
			"max_queue_size":             cfg.MaxQueueSize,
			"retry_delay_seconds":        cfg.RetryDelaySeconds,
			"default_conflict_strategy":  cfg.DefaultConflictStrategy,
			"allow_sales_offline":        cfg.AllowSalesOffline,
			"allow_expenses_offline":     cfg.AllowExpensesOffline,
			"allow_stock_adjust_offline": cfg.AllowStockAdjustOffline,
		})
	return err
}
