// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// initializeSchemaInTx creates the tracker tables within an existing transaction.
func (s *SyncService) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated schema for the sync core
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS tracker`,

		// 1) Entity records: current state + field version clock + row revision
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS tracker.entities (
			entity_key     UUID        PRIMARY KEY,
			production_id  TEXT        NOT NULL,
			entity_type    TEXT        NOT NULL,
			label          TEXT        NOT NULL DEFAULT '',
			attrs          JSON        NOT NULL,
			field_versions JSON        NOT NULL,
			revision       BIGINT      NOT NULL DEFAULT 1,
			deleted        BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_by     TEXT        NOT NULL DEFAULT ''
		)`,

		// 2) Append-only event log (audit trail + catch-up stream)
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS tracker.entity_events (
			event_id      BIGSERIAL   PRIMARY KEY,
			production_id TEXT        NOT NULL,
			entity_type   TEXT        NOT NULL,
			op            TEXT        NOT NULL CHECK (op IN ('CREATE','UPDATE','DELETE')),
			entity_key    UUID        NOT NULL,
			snapshot      JSON,
			diff          JSON,
			user_id       TEXT        NOT NULL,
			user_name     TEXT        NOT NULL,
			revision      BIGINT      NOT NULL,
			ts            TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS ent_production_type_idx ON tracker.entities(production_id, entity_type) WHERE NOT deleted`,
		`CREATE INDEX IF NOT EXISTS ent_production_label_idx ON tracker.entities(production_id, entity_type, label) WHERE NOT deleted`,
		`CREATE INDEX IF NOT EXISTS ev_production_id_idx ON tracker.entity_events(production_id, event_id)`,     // Newest-first production feeds
		`CREATE INDEX IF NOT EXISTS ev_production_ts_idx ON tracker.entity_events(production_id, ts, event_id)`, // Since-timestamp catch-up
		`CREATE INDEX IF NOT EXISTS ev_entity_idx ON tracker.entity_events(production_id, entity_key, event_id)`,
	}

	for i, migration := range migrations {
		s.logger.Debug("Running tracker migration", "step", i+1, "total", len(migrations))
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("tracker migration %d failed: %w", i+1, err)
		}
	}
	s.logger.Info("Tracker schema initialized successfully", "migrations", len(migrations))

	return nil
}
