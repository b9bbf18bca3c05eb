// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRecorder appends exactly one immutable event per accepted mutation and
// serves read access to the log. Persistence errors propagate to the caller;
// an event write is never allowed to fail silently.
type EventRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEventRecorder creates an event recorder over an existing pool.
func NewEventRecorder(pool *pgxpool.Pool, logger *slog.Logger) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRecorder{pool: pool, logger: logger}
}

const eventColumns = `event_id, production_id, entity_type, op, entity_key::text,
	snapshot, diff, user_id, user_name, revision, ts`

// RecordTx appends an event inside the caller's transaction, so the entity
// mutation and its audit record commit together. The server assigns the
// timestamp and sequence; both are filled into the returned event.
func (r *EventRecorder) RecordTx(ctx context.Context, tx pgx.Tx, ev *Event) (*Event, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO tracker.entity_events
			(production_id, entity_type, op, entity_key, snapshot, diff, user_id, user_name, revision)
		VALUES (@production_id, @entity_type, @op, @entity_key::uuid, @snapshot::json, @diff::json, @user_id, @user_name, @revision)
		RETURNING event_id, ts`,
		pgx.NamedArgs{
			"production_id": ev.ProductionID,
			"entity_type":   ev.EntityType,
			"op":            ev.Op,
			"entity_key":    ev.EntityKey,
			"snapshot":      ev.Snapshot,
			"diff":          ev.Diff,
			"user_id":       ev.UserID,
			"user_name":     ev.UserName,
			"revision":      ev.Revision,
		}).Scan(&ev.EventID, &ev.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("record %s event for %s: %w", ev.Op, ev.EntityKey, err)
	}
	return ev, nil
}

// Record appends an event outside any caller transaction.
func (r *EventRecorder) Record(ctx context.Context, ev *Event) (*Event, error) {
	var out *Event
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var txErr error
		out, txErr = r.RecordTx(ctx, tx, ev)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(
			&ev.EventID, &ev.ProductionID, &ev.EntityType, &ev.Op, &ev.EntityKey,
			&ev.Snapshot, &ev.Diff, &ev.UserID, &ev.UserName, &ev.Revision, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, &ev)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("read event rows: %w", rows.Err())
	}
	return out, nil
}

// ListByProduction returns the newest events for a production, newest first.
func (r *EventRecorder) ListByProduction(ctx context.Context, productionID string, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM tracker.entity_events
		WHERE production_id = @production_id
		ORDER BY event_id DESC
		LIMIT @limit`,
		pgx.NamedArgs{"production_id": productionID, "limit": limit},
	)
	if err != nil {
		return nil, fmt.Errorf("list events for production %s: %w", productionID, err)
	}
	return scanEvents(rows)
}

// ListByEntity returns the full history of one entity, newest first.
func (r *EventRecorder) ListByEntity(ctx context.Context, productionID, entityKey string) ([]*Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM tracker.entity_events
		WHERE production_id = @production_id AND entity_key = @entity_key::uuid
		ORDER BY event_id DESC`,
		pgx.NamedArgs{"production_id": productionID, "entity_key": entityKey},
	)
	if err != nil {
		return nil, fmt.Errorf("list events for entity %s: %w", entityKey, err)
	}
	return scanEvents(rows)
}

// ListSince returns events strictly after the given server timestamp, oldest
// first. This is the primitive that lets a reconnecting client catch up
// without replaying the entire history.
func (r *EventRecorder) ListSince(ctx context.Context, productionID string, since time.Time) ([]*Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM tracker.entity_events
		WHERE production_id = @production_id AND ts > @since
		ORDER BY ts, event_id`,
		pgx.NamedArgs{"production_id": productionID, "since": since},
	)
	if err != nil {
		return nil, fmt.Errorf("list events since %s: %w", since.Format(time.RFC3339Nano), err)
	}
	return scanEvents(rows)
}
