// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// OutboundMessage is one typed message pushed to a room member. Payload is
// JSON-serializable; the transport layer owns wire delivery.
type OutboundMessage struct {
	Type         string          `json:"type"`
	ProductionID string          `json:"production_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Sender delivers outbound messages to one connected session. Implemented by
// WSSession for real connections and by test doubles. Send must not block and
// must not call back into the hub: presence broadcasts are delivered while the
// membership lock is held.
type Sender interface {
	SessionID() string
	Send(msg *OutboundMessage) error
}

// PresenceEntry is one member of a room's live presence list.
type PresenceEntry struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
}

// EntityEventPayload is the body of a created/updated/deleted broadcast.
// Created and updated carry the post-merge snapshot; deleted carries only the
// internal key.
type EntityEventPayload struct {
	EntityType    string          `json:"entity_type"`
	EntityKey     string          `json:"entity_key"`
	Data          json.RawMessage `json:"data,omitempty"`
	FieldVersions json.RawMessage `json:"field_versions,omitempty"`
	Revision      int64           `json:"revision,omitempty"`
	UpdatedBy     string          `json:"updated_by,omitempty"`
}

type roomMember struct {
	userID   string
	userName string
	sender   Sender
}

// Hub is the process-wide presence registry and broadcast fan-out, scoped per
// production room. It is explicit state constructed by the caller, not a
// package singleton; presence is process-local and is NOT shared across
// server processes (a multi-process deployment needs an external shared
// pub/sub layer in front of this).
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*roomMember // production_id -> session_id -> member
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[string]*roomMember),
		logger: logger,
	}
}

// Join registers a session in a production room and broadcasts the full
// current presence list to every member, the joiner included. Presence lists
// are small and are re-sent wholesale rather than incrementally to avoid
// reconciliation bugs.
func (h *Hub) Join(productionID, userID, userName string, sender Sender) {
	h.mu.Lock()
	room := h.rooms[productionID]
	if room == nil {
		room = make(map[string]*roomMember)
		h.rooms[productionID] = room
	}
	room[sender.SessionID()] = &roomMember{userID: userID, userName: userName, sender: sender}
	h.broadcastPresenceLocked(productionID)
	h.mu.Unlock()

	h.logger.Info("Session joined production room",
		"production_id", productionID, "user_id", userID, "session_id", sender.SessionID())
}

// Leave removes a session from a room (explicit leave or disconnect) and
// re-broadcasts the presence list to the remaining members.
func (h *Hub) Leave(productionID, sessionID string) {
	h.mu.Lock()
	room := h.rooms[productionID]
	member, present := room[sessionID]
	if present {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(h.rooms, productionID)
		}
		h.broadcastPresenceLocked(productionID)
	}
	h.mu.Unlock()

	if !present {
		return
	}
	h.logger.Info("Session left production room",
		"production_id", productionID, "user_id", member.userID, "session_id", sessionID)
}

// Presence returns the current presence list for a room, ordered by session ID.
func (h *Hub) Presence(productionID string) []PresenceEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presenceLocked(productionID)
}

func (h *Hub) presenceLocked(productionID string) []PresenceEntry {
	room := h.rooms[productionID]
	entries := make([]PresenceEntry, 0, len(room))
	for sessionID, member := range room {
		entries = append(entries, PresenceEntry{
			SessionID: sessionID,
			UserID:    member.userID,
			UserName:  member.userName,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SessionID < entries[j].SessionID })
	return entries
}

// BroadcastCreated pushes a "{entityType}:created" event carrying the new
// entity snapshot to every room member except the originating session.
func (h *Hub) BroadcastCreated(productionID, entityType string, payload *EntityEventPayload, excludeSession string) {
	h.broadcast(productionID, eventType(entityType, suffixCreated), payload, excludeSession)
}

// BroadcastUpdated pushes a "{entityType}:updated" event carrying the
// post-merge snapshot to every room member except the originating session.
func (h *Hub) BroadcastUpdated(productionID, entityType string, payload *EntityEventPayload, excludeSession string) {
	h.broadcast(productionID, eventType(entityType, suffixUpdated), payload, excludeSession)
}

// BroadcastDeleted pushes a "{entityType}:deleted" event carrying just the
// internal key to every room member except the originating session.
func (h *Hub) BroadcastDeleted(productionID, entityType, entityKey string, excludeSession string) {
	h.broadcast(productionID, eventType(entityType, suffixDeleted),
		&EntityEventPayload{EntityType: entityType, EntityKey: entityKey}, excludeSession)
}

func eventType(entityType, suffix string) string {
	return fmt.Sprintf("%s:%s", entityType, suffix)
}

// broadcastPresenceLocked sends the wholesale presence list with the
// membership lock still held, so list contents and delivery order agree even
// across concurrent membership changes. Sends are non-blocking per the Sender
// contract.
func (h *Hub) broadcastPresenceLocked(productionID string) {
	body, err := json.Marshal(h.presenceLocked(productionID))
	if err != nil {
		h.logger.Error("Failed to encode presence list",
			"error", err, "production_id", productionID)
		return
	}
	msg := &OutboundMessage{Type: MsgPresenceList, ProductionID: productionID, Payload: body}

	for _, member := range h.rooms[productionID] {
		if err := member.sender.Send(msg); err != nil {
			h.logger.Warn("Presence delivery failed",
				"error", err, "production_id", productionID,
				"session_id", member.sender.SessionID(), "user_id", member.userID)
		}
	}
}

// broadcast fans a typed message out to the room. Delivery failures are
// logged and skipped: the mutation already committed durably, and a
// disconnected member catches up later via the event log.
func (h *Hub) broadcast(productionID, msgType string, payload any, excludeSession string) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to encode broadcast payload",
			"error", err, "type", msgType, "production_id", productionID)
		return
	}
	msg := &OutboundMessage{Type: msgType, ProductionID: productionID, Payload: body}

	h.mu.RLock()
	members := make([]*roomMember, 0, len(h.rooms[productionID]))
	for sessionID, member := range h.rooms[productionID] {
		if excludeSession != "" && sessionID == excludeSession {
			continue
		}
		members = append(members, member)
	}
	h.mu.RUnlock()

	for _, member := range members {
		if err := member.sender.Send(msg); err != nil {
			h.logger.Warn("Broadcast delivery failed",
				"error", err, "type", msgType, "production_id", productionID,
				"session_id", member.sender.SessionID(), "user_id", member.userID)
		}
	}
}
