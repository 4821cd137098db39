// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is an embedded single-node Store implementation, for
// deployments that run the whole backend on one box (kiosk or dev setups).
// Semantics match PGStore; SQLite's single-writer model already gives the
// atomic single-statement read-modify-write the engine requires.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite-backed store. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// SQLite handles one writer at a time; a larger pool only produces
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initializeSchema() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS offline_operations (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			business_id         TEXT NOT NULL,
			device_id           TEXT NOT NULL DEFAULT '',
			operation_type      TEXT NOT NULL,
			operation_id        TEXT NOT NULL,
			endpoint            TEXT NOT NULL,
			method              TEXT NOT NULL,
			request_body        BLOB,
			request_headers     BLOB,
			executed_at         TIMESTAMP,
			created_at          TIMESTAMP NOT NULL,
			synced_at           TIMESTAMP,
			failed_at           TIMESTAMP,
			resolved_at         TIMESTAMP,
			status              TEXT NOT NULL DEFAULT 'pending',
			sync_attempts       INTEGER NOT NULL DEFAULT 0,
			max_retries         INTEGER NOT NULL DEFAULT 3,
			last_error          TEXT NOT NULL DEFAULT '',
			error_code          TEXT NOT NULL DEFAULT '',
			server_response     BLOB,
			server_id           TEXT NOT NULL DEFAULT '',
			conflict_type       TEXT NOT NULL DEFAULT '',
			conflict_data       BLOB,
			resolution_strategy TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS offop_business_status_created_idx ON offline_operations(business_id, status, created_at)`,
		`CREATE TABLE IF NOT EXISTS sync_history (
			id            TEXT PRIMARY KEY,
			queue_id      TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			sync_type     TEXT NOT NULL,
			status        TEXT NOT NULL,
			response_data BLOB,
			device_id     TEXT NOT NULL DEFAULT '',
			started_at    TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS synchist_queue_started_idx ON sync_history(queue_id, started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS offline_config (
			business_id                TEXT PRIMARY KEY,
			offline_mode_enabled       INTEGER NOT NULL DEFAULT 1,
			auto_sync_enabled          INTEGER NOT NULL DEFAULT 1,
			sync_interval_minutes      INTEGER NOT NULL DEFAULT 5,
			max_queue_size             INTEGER NOT NULL DEFAULT 500,
			retry_delay_seconds        INTEGER NOT NULL DEFAULT 30,
			default_conflict_strategy  TEXT NOT NULL DEFAULT 'manual',
			allow_sales_offline        INTEGER NOT NULL DEFAULT 1,
			allow_expenses_offline     INTEGER NOT NULL DEFAULT 1,
			allow_stock_adjust_offline INTEGER NOT NULL DEFAULT 1
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

const sqliteOpColumns = `id, user_id, business_id, device_id, operation_type, operation_id,
	endpoint, method, request_body, request_headers,
	executed_at, created_at, synced_at, failed_at, resolved_at,
	status, sync_attempts, max_retries, last_error, error_code,
	server_response, server_id, conflict_type, conflict_data, resolution_strategy`

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOperation(row sqliteRowScanner) (*OfflineOperation, error) {
	var op OfflineOperation
	var headers []byte
	var executedAt, syncedAt, failedAt, resolvedAt sql.NullTime
	err := row.Scan(
		&op.ID, &op.UserID, &op.BusinessID, &op.DeviceID, &op.OperationType, &op.OperationID,
		&op.Endpoint, &op.Method, (*[]byte)(&op.RequestBody), &headers,
		&executedAt, &op.CreatedAt, &syncedAt, &failedAt, &resolvedAt,
		&op.Status, &op.SyncAttempts, &op.MaxRetries, &op.LastError, &op.ErrorCode,
		(*[]byte)(&op.ServerResponse), &op.ServerID, &op.ConflictType, (*[]byte)(&op.ConflictData), &op.ResolutionStrategy,
	)
	if err != nil {
		return nil, err
	}
	op.ExecutedAt = nullTimePtr(executedAt)
	op.SyncedAt = nullTimePtr(syncedAt)
	op.FailedAt = nullTimePtr(failedAt)
	op.ResolvedAt = nullTimePtr(resolvedAt)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &op.RequestHeaders); err != nil {
			return nil, fmt.Errorf("decode request headers: %w", err)
		}
	}
	return &op, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (s *SQLiteStore) InsertOperation(ctx context.Context, op *OfflineOperation) error {
	headers, err := encodeHeaders(op.RequestHeaders)
	if err != nil {
		return fmt.Errorf("encode request headers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO offline_operations (
			id, user_id, business_id, device_id, operation_type, operation_id,
			endpoint, method, request_body, request_headers,
			executed_at, created_at, status, sync_attempts, max_retries
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.UserID, op.BusinessID, op.DeviceID, op.OperationType, op.OperationID,
		op.Endpoint, op.Method, []byte(op.RequestBody), headers,
		timeArg(op.ExecutedAt), op.CreatedAt, op.Status, op.SyncAttempts, op.MaxRetries)
	return err
}

func (s *SQLiteStore) GetOperation(ctx context.Context, id string) (*OfflineOperation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteOpColumns+` FROM offline_operations WHERE id=?`, id)
	op, err := scanSQLiteOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOperationNotFound
	}
	return op, err
}

func (s *SQLiteStore) UpdateOperation(ctx context.Context, op *OfflineOperation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offline_operations SET
			synced_at=?, failed_at=?, resolved_at=?,
			status=?, sync_attempts=?, last_error=?, error_code=?,
			server_response=?, server_id=?,
			conflict_type=?, conflict_data=?, resolution_strategy=?
		WHERE id=?`,
		timeArg(op.SyncedAt), timeArg(op.FailedAt), timeArg(op.ResolvedAt),
		op.Status, op.SyncAttempts, op.LastError, op.ErrorCode,
		[]byte(op.ServerResponse), op.ServerID,
		op.ConflictType, []byte(op.ConflictData), op.ResolutionStrategy,
		op.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOperationNotFound
	}
	return nil
}

func (s *SQLiteStore) ClaimOperation(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offline_operations SET status='syncing'
		WHERE id=? AND status='pending'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) queryOperations(ctx context.Context, query string, args ...any) ([]*OfflineOperation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*OfflineOperation
	for rows.Next() {
		op, err := scanSQLiteOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListPending(ctx context.Context, businessID string, limit int) ([]*OfflineOperation, error) {
	return s.queryOperations(ctx, `
		SELECT `+sqliteOpColumns+` FROM offline_operations
		WHERE business_id=? AND status='pending'
		ORDER BY created_at ASC LIMIT ?`, businessID, limit)
}

func (s *SQLiteStore) ListRetryableFailed(ctx context.Context, businessID string) ([]*OfflineOperation, error) {
	return s.queryOperations(ctx, `
		SELECT `+sqliteOpColumns+` FROM offline_operations
		WHERE business_id=? AND status='failed' AND sync_attempts < max_retries
		ORDER BY failed_at ASC`, businessID)
}

func (s *SQLiteStore) CountOperations(ctx context.Context, businessID string) (*StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM offline_operations WHERE business_id=? GROUP BY status`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := &StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case StatusPending:
			counts.Pending = n
		case StatusSyncing:
			counts.Syncing = n
		case StatusSynced:
			counts.Synced = n
		case StatusConflict:
			counts.Conflict = n
		case StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Selecting the column directly (not MAX) keeps the declared TIMESTAMP
	// type so the driver parses it back into a time.Time.
	var lastSynced sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT synced_at FROM offline_operations
		WHERE business_id=? AND status='synced' AND synced_at IS NOT NULL
		ORDER BY synced_at DESC LIMIT 1`, businessID).Scan(&lastSynced)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	counts.LastSyncedAt = nullTimePtr(lastSynced)
	return counts, nil
}

func (s *SQLiteStore) CountPending(ctx context.Context, businessID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM offline_operations
		WHERE business_id=? AND status='pending'`, businessID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteSyncedBefore(ctx context.Context, businessID string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM offline_operations
		WHERE business_id=? AND status='synced' AND synced_at < ?`, businessID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) InsertHistory(ctx context.Context, rec *SyncHistoryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_history (id, queue_id, user_id, sync_type, status, response_data, device_id, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.QueueID, rec.UserID, rec.SyncType, rec.Status,
		[]byte(rec.ResponseData), rec.DeviceID, rec.StartedAt)
	return err
}

func (s *SQLiteStore) ListHistory(ctx context.Context, queueID string, limit int) ([]*SyncHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue_id, user_id, sync_type, status, response_data, device_id, started_at
		FROM sync_history WHERE queue_id=?
		ORDER BY started_at DESC LIMIT ?`, queueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*SyncHistoryRecord
	for rows.Next() {
		var rec SyncHistoryRecord
		if err := rows.Scan(&rec.ID, &rec.QueueID, &rec.UserID, &rec.SyncType, &rec.Status,
			(*[]byte)(&rec.ResponseData), &rec.DeviceID, &rec.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetConfig(ctx context.Context, businessID string) (*OfflineConfig, error) {
	var cfg OfflineConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT business_id, offline_mode_enabled, auto_sync_enabled, sync_interval_minutes,
			max_queue_size, retry_delay_seconds, default_conflict_strategy,
			allow_sales_offline, allow_expenses_offline, allow_stock_adjust_offline
		FROM offline_config WHERE business_id=?`, businessID).Scan(
		&cfg.BusinessID, &cfg.OfflineModeEnabled, &cfg.AutoSyncEnabled, &cfg.SyncIntervalMinutes,
		&cfg.MaxQueueSize, &cfg.RetryDelaySeconds, &cfg.DefaultConflictStrategy,
		&cfg.AllowSalesOffline, &cfg.AllowExpensesOffline, &cfg.AllowStockAdjustOffline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *SQLiteStore) SaveConfig(ctx context.Context, cfg *OfflineConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offline_config (
			business_id, offline_mode_enabled, auto_sync_enabled, sync_interval_minutes,
			max_queue_size, retry_delay_seconds, default_conflict_strategy,
			allow_sales_offline, allow_expenses_offline, allow_stock_adjust_offline
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (business_id) DO UPDATE SET
			offline_mode_enabled=excluded.offline_mode_enabled,
			auto_sync_enabled=excluded.auto_sync_enabled,
			sync_interval_minutes=excluded.sync_interval_minutes,
			max_queue_size=excluded.max_queue_size,
			retry_delay_seconds=excluded.retry_delay_seconds,
			default_conflict_strategy=excluded.default_conflict_strategy,
			allow_sales_offline=excluded.allow_sales_offline,
			allow_expenses_offline=excluded.allow_expenses_offline,
			allow_stock_adjust_offline=excluded.allow_stock_adjust_offline`,
		cfg.BusinessID, cfg.OfflineModeEnabled, cfg.AutoSyncEnabled, cfg.SyncIntervalMinutes,
		cfg.MaxQueueSize, cfg.RetryDelaySeconds, cfg.DefaultConflictStrategy,
		cfg.AllowSalesOffline, cfg.AllowExpensesOffline, cfg.AllowStockAdjustOffline)
	return err
}
