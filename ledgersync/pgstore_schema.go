// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// initializeSchema creates the sync relations if they don't exist.
func (p *PGStore) initializeSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return p.initializeSchemaInTx(ctx, tx)
	})
}

// initializeSchemaInTx creates the sync relations within an existing transaction
func (p *PGStore) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated schema for the offline sync engine
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS ledger_sync`,

		// 1) Queued operations - the server-authoritative offline buffer
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS ledger_sync.offline_operations (
			id                  UUID        PRIMARY KEY,
			user_id             TEXT        NOT NULL,
			business_id         TEXT        NOT NULL,
			device_id           TEXT        NOT NULL DEFAULT '',
			operation_type      TEXT        NOT NULL CHECK (operation_type IN ('sale','expense','record','payment','stock_adjustment')),
			operation_id        TEXT        NOT NULL,
			endpoint            TEXT        NOT NULL,
			method              TEXT        NOT NULL CHECK (method IN ('POST','PUT','PATCH')),
			request_body        JSON,
			request_headers     JSON,
			executed_at         TIMESTAMPTZ,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			synced_at           TIMESTAMPTZ,
			failed_at           TIMESTAMPTZ,
			resolved_at         TIMESTAMPTZ,
			status              TEXT        NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','syncing','synced','conflict','failed')),
			sync_attempts       INT         NOT NULL DEFAULT 0 CHECK (sync_attempts >= 0),
			max_retries         INT         NOT NULL DEFAULT 3,
			last_error          TEXT        NOT NULL DEFAULT '',
			error_code          TEXT        NOT NULL DEFAULT '',
			server_response     JSON,
			server_id           TEXT        NOT NULL DEFAULT '',
			conflict_type       TEXT        NOT NULL DEFAULT '',
			conflict_data       JSON,
			resolution_strategy TEXT        NOT NULL DEFAULT ''
		)`,

		// Indexes for the hot selects: FIFO batch pull, retry pass, cleanup
		`CREATE INDEX IF NOT EXISTS offop_business_status_created_idx ON ledger_sync.offline_operations(business_id, status, created_at)`,
		`CREATE INDEX IF NOT EXISTS offop_business_status_failed_idx ON ledger_sync.offline_operations(business_id, status, failed_at) WHERE status='failed'`,
		`CREATE INDEX IF NOT EXISTS offop_business_status_synced_idx ON ledger_sync.offline_operations(business_id, status, synced_at) WHERE status='synced'`,

		// 2) Sync history - append-only audit log, one row per attempt
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS ledger_sync.sync_history (
			id            UUID        PRIMARY KEY,
			queue_id      UUID        NOT NULL,
			user_id       TEXT        NOT NULL,
			sync_type     TEXT        NOT NULL CHECK (sync_type IN ('automatic','manual')),
			status        TEXT        NOT NULL CHECK (status IN ('success','failed')),
			response_data JSON,
			device_id     TEXT        NOT NULL DEFAULT '',
			started_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS synchist_queue_started_idx ON ledger_sync.sync_history(queue_id, started_at DESC)`,

		// 3) Per-business offline policy
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS ledger_sync.offline_config (
			business_id                TEXT    PRIMARY KEY,
			offline_mode_enabled       BOOLEAN NOT NULL DEFAULT TRUE,
			auto_sync_enabled          BOOLEAN NOT NULL DEFAULT TRUE,
			sync_interval_minutes      INT     NOT NULL DEFAULT 5,
			max_queue_size             INT     NOT NULL DEFAULT 500,
			retry_delay_seconds        INT     NOT NULL DEFAULT 30,
			default_conflict_strategy  TEXT    NOT NULL DEFAULT 'manual' CHECK (default_conflict_strategy IN ('client_wins','server_wins','merge','manual')),
			allow_sales_offline        BOOLEAN NOT NULL DEFAULT TRUE,
			allow_expenses_offline     BOOLEAN NOT NULL DEFAULT TRUE,
			allow_stock_adjust_offline BOOLEAN NOT NULL DEFAULT TRUE
		)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}
