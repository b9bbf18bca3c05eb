// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityStore provides row access to tracker.entities. Mutating methods take
// the caller's transaction so the read-merge-write sequence commits (or
// fails) atomically with the event append.
type EntityStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEntityStore creates an entity store over an existing pool.
func NewEntityStore(pool *pgxpool.Pool, logger *slog.Logger) *EntityStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityStore{pool: pool, logger: logger}
}

const entityColumns = `entity_key::text, production_id, entity_type, label, attrs, field_versions,
	revision, deleted, created_at, updated_at, updated_by`

func scanEntity(row pgx.Row) (*EntityRecord, error) {
	var rec EntityRecord
	err := row.Scan(
		&rec.EntityKey, &rec.ProductionID, &rec.EntityType, &rec.Label,
		&rec.Attrs, &rec.FieldVersions, &rec.Revision, &rec.Deleted,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetForUpdate loads a live entity row with a row lock, serializing concurrent
// writers on the same internal key for the remainder of the transaction.
func (st *EntityStore) GetForUpdate(ctx context.Context, tx pgx.Tx, productionID, entityKey string) (*EntityRecord, error) {
	rec, err := scanEntity(tx.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM tracker.entities
		WHERE production_id = @production_id AND entity_key = @entity_key::uuid
		FOR UPDATE`,
		pgx.NamedArgs{"production_id": productionID, "entity_key": entityKey},
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("get entity %s for update: %w", entityKey, err)
	}
	if rec.Deleted {
		return nil, ErrEntityNotFound
	}
	return rec, nil
}

// Get loads a live entity row without locking.
func (st *EntityStore) Get(ctx context.Context, productionID, entityKey string) (*EntityRecord, error) {
	rec, err := scanEntity(st.pool.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM tracker.entities
		WHERE production_id = @production_id AND entity_key = @entity_key::uuid AND NOT deleted`,
		pgx.NamedArgs{"production_id": productionID, "entity_key": entityKey},
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("get entity %s: %w", entityKey, err)
	}
	return rec, nil
}

// ListByProduction returns the live entities of one type within a production,
// oldest first.
func (st *EntityStore) ListByProduction(ctx context.Context, productionID, entityType string) ([]*EntityRecord, error) {
	rows, err := st.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM tracker.entities
		WHERE production_id = @production_id AND entity_type = @entity_type AND NOT deleted
		ORDER BY created_at, entity_key`,
		pgx.NamedArgs{"production_id": productionID, "entity_type": entityType},
	)
	if err != nil {
		return nil, fmt.Errorf("list entities %s/%s: %w", productionID, entityType, err)
	}
	defer rows.Close()

	var out []*EntityRecord
	for rows.Next() {
		rec, scanErr := scanEntity(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan entity row: %w", scanErr)
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("list entities %s/%s: %w", productionID, entityType, rows.Err())
	}
	return out, nil
}

// Insert writes a freshly created entity at revision 1.
func (st *EntityStore) Insert(ctx context.Context, tx pgx.Tx, rec *EntityRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO tracker.entities
			(entity_key, production_id, entity_type, label, attrs, field_versions, revision, updated_by)
		VALUES (@entity_key::uuid, @production_id, @entity_type, @label, @attrs::json, @field_versions::json, 1, @updated_by)`,
		pgx.NamedArgs{
			"entity_key":     rec.EntityKey,
			"production_id":  rec.ProductionID,
			"entity_type":    rec.EntityType,
			"label":          rec.Label,
			"attrs":          rec.Attrs,
			"field_versions": rec.FieldVersions,
			"updated_by":     rec.UpdatedBy,
		})
	if err != nil {
		return fmt.Errorf("insert entity %s: %w", rec.EntityKey, err)
	}
	return nil
}

// UpdateCAS writes merged state guarded by the whole-row revision: the update
// applies only if the row is still at expectedRevision. Returns the new
// revision, or ErrRevisionMismatch when a concurrent writer got there first.
func (st *EntityStore) UpdateCAS(ctx context.Context, tx pgx.Tx, rec *EntityRecord, expectedRevision int64) (int64, error) {
	var newRevision int64
	err := tx.QueryRow(ctx, `
		UPDATE tracker.entities
		SET label = @label,
		    attrs = @attrs::json,
		    field_versions = @field_versions::json,
		    revision = revision + 1,
		    updated_at = now(),
		    updated_by = @updated_by
		WHERE production_id = @production_id
		  AND entity_key = @entity_key::uuid
		  AND revision = @revision
		  AND NOT deleted
		RETURNING revision`,
		pgx.NamedArgs{
			"production_id":  rec.ProductionID,
			"entity_key":     rec.EntityKey,
			"label":          rec.Label,
			"attrs":          rec.Attrs,
			"field_versions": rec.FieldVersions,
			"updated_by":     rec.UpdatedBy,
			"revision":       expectedRevision,
		}).Scan(&newRevision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRevisionMismatch
		}
		return 0, fmt.Errorf("update entity %s: %w", rec.EntityKey, err)
	}
	return newRevision, nil
}

// SoftDeleteCAS marks an entity deleted under the same revision guard as
// UpdateCAS. The row stays in place so the event log keeps a resolvable key.
func (st *EntityStore) SoftDeleteCAS(ctx context.Context, tx pgx.Tx, productionID, entityKey, userID string, expectedRevision int64) (int64, error) {
	var newRevision int64
	err := tx.QueryRow(ctx, `
		UPDATE tracker.entities
		SET deleted = TRUE,
		    revision = revision + 1,
		    updated_at = now(),
		    updated_by = @updated_by
		WHERE production_id = @production_id
		  AND entity_key = @entity_key::uuid
		  AND revision = @revision
		  AND NOT deleted
		RETURNING revision`,
		pgx.NamedArgs{
			"production_id": productionID,
			"entity_key":    entityKey,
			"updated_by":    userID,
			"revision":      expectedRevision,
		}).Scan(&newRevision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRevisionMismatch
		}
		return 0, fmt.Errorf("soft delete entity %s: %w", entityKey, err)
	}
	return newRevision, nil
}

// LabelInUse reports whether another live entity of the same type in the same
// production already carries the label. Label uniqueness is an explicit
// business rule for callers that want it; the conflict machinery never
// enforces it.
func (st *EntityStore) LabelInUse(ctx context.Context, productionID, entityType, label, excludeKey string) (bool, error) {
	var inUse bool
	err := st.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tracker.entities
			WHERE production_id = @production_id
			  AND entity_type = @entity_type
			  AND label = @label
			  AND NOT deleted
			  AND (@exclude_key = '' OR entity_key <> @exclude_key::uuid)
		)`,
		pgx.NamedArgs{
			"production_id": productionID,
			"entity_type":   entityType,
			"label":         label,
			"exclude_key":   excludeKey,
		}).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("label lookup %s/%s: %w", productionID, entityType, err)
	}
	return inUse, nil
}
