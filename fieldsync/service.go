// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityTypeConfig registers one entity type and its versioned-field set.
// The set is fixed configuration data: the core never discovers fields
// dynamically, and the display label may not appear in it.
type EntityTypeConfig struct {
	Name            string   `json:"name"`
	VersionedFields []string `json:"versioned_fields"`
}

// ServiceConfig holds configuration for the sync service
type ServiceConfig struct {
	AppName         string             // Application name for logging context
	EntityTypes     []EntityTypeConfig // Entity types allowed in sync operations (required)
	MaxPayloadBytes int                // Maximum JSON payload size per mutation in bytes (0 = unlimited)
}

// SyncService is the field-level optimistic concurrency engine: it merges
// proposed updates against current server state, persists accepted changes
// with an immutable audit event in one transaction, and fans accepted
// mutations out to the production room after commit.
type SyncService struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	config   *ServiceConfig
	hub      *Hub
	store    *EntityStore
	recorder *EventRecorder

	versionedFields map[string][]string // entity type -> declared versioned fields

	mu     sync.RWMutex
	closed bool
}

// NewSyncService creates a sync service from an existing pool, validates the
// entity type registry, and initializes the tracker schema.
func NewSyncService(pool *pgxpool.Pool, config *ServiceConfig, hub *Hub, logger *slog.Logger) (*SyncService, error) {
	if config == nil || len(config.EntityTypes) == 0 {
		return nil, errors.New("at least one entity type must be registered")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}

	service := &SyncService{
		pool:            pool,
		logger:          logger,
		config:          config,
		hub:             hub,
		store:           NewEntityStore(pool, logger),
		recorder:        NewEventRecorder(pool, logger),
		versionedFields: make(map[string][]string, len(config.EntityTypes)),
	}

	for _, et := range config.EntityTypes {
		name := strings.ToLower(strings.TrimSpace(et.Name))
		if !isValidEntityTypeName(name) {
			return nil, fmt.Errorf("invalid entity type name %q", et.Name)
		}
		if _, dup := service.versionedFields[name]; dup {
			return nil, fmt.Errorf("duplicate entity type %q", name)
		}
		for _, field := range et.VersionedFields {
			if field == LabelField {
				return nil, fmt.Errorf("entity type %q: the display label may not be a versioned field", name)
			}
		}
		fields := make([]string, len(et.VersionedFields))
		copy(fields, et.VersionedFields)
		service.versionedFields[name] = fields
		logger.Debug("Registered entity type", "entity_type", name, "versioned_fields", fields)
	}

	ctx := context.Background()
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return service.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sync service: %w", err)
	}

	return service, nil
}

// Close gracefully shuts down the sync service. It does NOT close the pool;
// the caller owns pool lifecycle.
func (s *SyncService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.logger.Debug("Shutting down sync service")
	s.closed = true
	return nil
}

func (s *SyncService) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("sync service has been closed")
	}
	return nil
}

// Hub returns the presence and broadcast hub.
func (s *SyncService) Hub() *Hub { return s.hub }

// Store returns the entity store for read access.
func (s *SyncService) Store() *EntityStore { return s.store }

// Recorder returns the event recorder for read access to the audit log.
func (s *SyncService) Recorder() *EventRecorder { return s.recorder }

// EntityTypes returns the registered entity type names.
func (s *SyncService) EntityTypes() []string {
	names := make([]string, 0, len(s.versionedFields))
	for name := range s.versionedFields {
		names = append(names, name)
	}
	return names
}

// ProposeCreate creates a new entity with a fresh internal key and an
// initialized field version clock, records the CREATE event in the same
// transaction, and broadcasts the snapshot to the production room.
func (s *SyncService) ProposeCreate(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if !isValidProductionID(req.ProductionID) {
		return nil, fmt.Errorf("%w: invalid production id %q", ErrBadPayload, req.ProductionID)
	}
	fields, err := s.versionedFieldsFor(req.EntityType)
	if err != nil {
		return nil, err
	}

	attrsRaw := req.Attrs
	if len(attrsRaw) == 0 {
		attrsRaw = json.RawMessage(`{}`)
	}
	attrs, err := s.validateAttrs(attrsRaw)
	if err != nil {
		return nil, err
	}

	label := req.Label
	if label == "" {
		if fromAttrs, ok := attrs[LabelField].(string); ok {
			label = fromAttrs
		}
	}
	if label != "" {
		attrs[LabelField] = label
	}

	versions := InitializeFieldVersions(fields)
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attrs: %w", err)
	}
	versionsJSON, err := json.Marshal(versions)
	if err != nil {
		return nil, fmt.Errorf("encode field versions: %w", err)
	}

	rec := &EntityRecord{
		EntityKey:     NewInternalKey(),
		ProductionID:  req.ProductionID,
		EntityType:    strings.ToLower(strings.TrimSpace(req.EntityType)),
		Label:         label,
		Attrs:         attrsJSON,
		FieldVersions: versionsJSON,
		Revision:      1,
		UpdatedBy:     req.UserID,
	}

	var ev *Event
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
		if insErr := s.store.Insert(ctx, tx, rec); insErr != nil {
			return insErr
		}
		var recErr error
		ev, recErr = s.recorder.RecordTx(ctx, tx, &Event{
			ProductionID: rec.ProductionID,
			EntityType:   rec.EntityType,
			Op:           OpCreate,
			EntityKey:    rec.EntityKey,
			Snapshot:     attrsJSON,
			Diff:         DiffCreated,
			UserID:       req.UserID,
			UserName:     req.UserName,
			Revision:     rec.Revision,
		})
		return recErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s entity: %w", rec.EntityType, err)
	}

	s.logger.Info("Entity created",
		"production_id", rec.ProductionID, "entity_type", rec.EntityType,
		"entity_key", rec.EntityKey, "user_id", req.UserID)

	// Broadcast strictly after commit: never announce a mutation that did not
	// durably land.
	s.hub.BroadcastCreated(rec.ProductionID, rec.EntityType, &EntityEventPayload{
		EntityType:    rec.EntityType,
		EntityKey:     rec.EntityKey,
		Data:          attrsJSON,
		FieldVersions: versionsJSON,
		Revision:      rec.Revision,
		UpdatedBy:     req.UserID,
	}, req.OriginSession)

	return &CreateResult{
		EntityKey:     rec.EntityKey,
		Label:         label,
		Attrs:         attrsJSON,
		FieldVersions: versions,
		Revision:      rec.Revision,
		CreatedAt:     ev.Timestamp,
	}, nil
}

// ProposeUpdate merges a proposed update against current server state inside
// one transaction: the row is read under lock, merged field by field, written
// back under a whole-row revision guard, and the UPDATE event appended, all
// atomically. The accepted subset is broadcast after commit; conflicting
// fields are returned to the submitting client instead of applied.
func (s *SyncService) ProposeUpdate(ctx context.Context, req *UpdateRequest) (*UpdateResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if !isValidProductionID(req.ProductionID) {
		return nil, fmt.Errorf("%w: invalid production id %q", ErrBadPayload, req.ProductionID)
	}
	if !isValidInternalKey(req.EntityKey) {
		return nil, fmt.Errorf("%w: invalid entity key %q", ErrBadPayload, req.EntityKey)
	}
	fields, err := s.versionedFieldsFor(req.EntityType)
	if err != nil {
		return nil, err
	}

	// Structural failures are rejected at the boundary, before any merge.
	clientVersions, err := ParseFieldVersions(req.FieldVersions)
	if err != nil {
		return nil, fmt.Errorf("%w: field versions blob for %s", ErrMalformedVersions, req.EntityKey)
	}
	clientData, err := s.validateAttrs(req.Data)
	if err != nil {
		return nil, err
	}

	var (
		result  *UpdateResult
		payload *EntityEventPayload
	)

	err = s.withMergeRetry(ctx, func() error {
		result, payload = nil, nil
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
			rec, txErr := s.store.GetForUpdate(ctx, tx, req.ProductionID, req.EntityKey)
			if txErr != nil {
				return txErr
			}

			serverData, txErr := DecodeSnapshot(rec.Attrs)
			if txErr != nil {
				return fmt.Errorf("stored attrs for %s: %w", rec.EntityKey, txErr)
			}
			serverVersions, txErr := ParseFieldVersions(rec.FieldVersions)
			if txErr != nil {
				// A legacy record with an unreadable clock falls back to an
				// empty one: every field at version 0, first write wins.
				s.logger.Warn("Stored field versions malformed, treating as empty",
					"entity_key", rec.EntityKey, "production_id", rec.ProductionID)
				serverVersions = FieldVersions{}
			}

			merged := Merge(clientVersions, serverVersions, clientData, serverData, fields)

			applied := len(clientData) - len(merged.Conflicts)
			if applied == 0 {
				// Every submitted field was stale; nothing to persist or announce.
				result = &UpdateResult{
					HasConflicts:   merged.HasConflicts,
					Conflicts:      merged.Conflicts,
					EntityKey:      rec.EntityKey,
					MergedData:     rec.Attrs,
					MergedVersions: serverVersions,
					Revision:       rec.Revision,
					UpdatedAt:      rec.UpdatedAt,
				}
				return nil
			}

			mergedJSON, txErr := json.Marshal(merged.MergedData)
			if txErr != nil {
				return fmt.Errorf("encode merged attrs: %w", txErr)
			}
			versionsJSON, txErr := json.Marshal(merged.MergedVersions)
			if txErr != nil {
				return fmt.Errorf("encode merged versions: %w", txErr)
			}

			label := rec.Label
			if fromData, ok := merged.MergedData[LabelField].(string); ok {
				label = fromData
			}

			newRevision, txErr := s.store.UpdateCAS(ctx, tx, &EntityRecord{
				EntityKey:     rec.EntityKey,
				ProductionID:  rec.ProductionID,
				Label:         label,
				Attrs:         mergedJSON,
				FieldVersions: versionsJSON,
				UpdatedBy:     req.UserID,
			}, rec.Revision)
			if txErr != nil {
				return txErr
			}

			diff, txErr := ComputeDiff(rec.Attrs, mergedJSON)
			if txErr != nil {
				return txErr
			}

			ev, txErr := s.recorder.RecordTx(ctx, tx, &Event{
				ProductionID: rec.ProductionID,
				EntityType:   rec.EntityType,
				Op:           OpUpdate,
				EntityKey:    rec.EntityKey,
				Snapshot:     mergedJSON,
				Diff:         diff,
				UserID:       req.UserID,
				UserName:     req.UserName,
				Revision:     newRevision,
			})
			if txErr != nil {
				return txErr
			}

			result = &UpdateResult{
				HasConflicts:   merged.HasConflicts,
				Conflicts:      merged.Conflicts,
				EntityKey:      rec.EntityKey,
				MergedData:     mergedJSON,
				MergedVersions: merged.MergedVersions,
				Revision:       newRevision,
				UpdatedAt:      ev.Timestamp,
			}
			payload = &EntityEventPayload{
				EntityType:    rec.EntityType,
				EntityKey:     rec.EntityKey,
				Data:          mergedJSON,
				FieldVersions: versionsJSON,
				Revision:      newRevision,
				UpdatedBy:     req.UserID,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if result.HasConflicts {
		s.logger.Info("Update merged with conflicts",
			"production_id", req.ProductionID, "entity_key", req.EntityKey,
			"conflicts", len(result.Conflicts), "user_id", req.UserID)
	}

	if payload != nil {
		s.hub.BroadcastUpdated(req.ProductionID, strings.ToLower(strings.TrimSpace(req.EntityType)), payload, req.OriginSession)
	}

	return result, nil
}

// ProposeDelete soft-deletes an entity under the revision guard, records the
// DELETE event with the final snapshot, and broadcasts the key to the room.
func (s *SyncService) ProposeDelete(ctx context.Context, req *DeleteRequest) (*DeleteResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if !isValidProductionID(req.ProductionID) {
		return nil, fmt.Errorf("%w: invalid production id %q", ErrBadPayload, req.ProductionID)
	}
	if !isValidInternalKey(req.EntityKey) {
		return nil, fmt.Errorf("%w: invalid entity key %q", ErrBadPayload, req.EntityKey)
	}
	if _, err := s.versionedFieldsFor(req.EntityType); err != nil {
		return nil, err
	}

	var result *DeleteResult
	err := s.withMergeRetry(ctx, func() error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
			rec, txErr := s.store.GetForUpdate(ctx, tx, req.ProductionID, req.EntityKey)
			if txErr != nil {
				return txErr
			}

			newRevision, txErr := s.store.SoftDeleteCAS(ctx, tx, req.ProductionID, req.EntityKey, req.UserID, rec.Revision)
			if txErr != nil {
				return txErr
			}

			_, txErr = s.recorder.RecordTx(ctx, tx, &Event{
				ProductionID: rec.ProductionID,
				EntityType:   rec.EntityType,
				Op:           OpDelete,
				EntityKey:    rec.EntityKey,
				Snapshot:     rec.Attrs,
				UserID:       req.UserID,
				UserName:     req.UserName,
				Revision:     newRevision,
			})
			if txErr != nil {
				return txErr
			}

			result = &DeleteResult{EntityKey: rec.EntityKey, Revision: newRevision}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Entity deleted",
		"production_id", req.ProductionID, "entity_key", req.EntityKey, "user_id", req.UserID)

	s.hub.BroadcastDeleted(req.ProductionID, strings.ToLower(strings.TrimSpace(req.EntityType)), req.EntityKey, req.OriginSession)

	return result, nil
}
