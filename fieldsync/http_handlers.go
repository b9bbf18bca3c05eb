// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// HTTPHandlers provides the HTTP surface of the sync core: entity mutations,
// event log reads, and the websocket endpoint for presence and realtime
// fan-out.
type HTTPHandlers struct {
	service       *SyncService
	authenticator ClientAuthenticator
	upgrader      websocket.Upgrader
	wsSettings    *WSSessionSettings
	logger        *slog.Logger
}

// NewHTTPHandlers creates a new instance of the tracker handlers.
func NewHTTPHandlers(service *SyncService, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{
		service:       service,
		authenticator: authenticator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		wsSettings: DefaultWSSessionSettings(),
		logger:     logger,
	}
}

// Register attaches all routes to the mux.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /productions/{productionID}/{entityType}", h.HandleCreate)
	mux.HandleFunc("PATCH /productions/{productionID}/{entityType}/{entityKey}", h.HandleUpdate)
	mux.HandleFunc("DELETE /productions/{productionID}/{entityType}/{entityKey}", h.HandleDelete)
	mux.HandleFunc("GET /productions/{productionID}/{entityType}", h.HandleListEntities)
	mux.HandleFunc("GET /productions/{productionID}/events", h.HandleListEvents)
	mux.HandleFunc("GET /productions/{productionID}/events/{entityKey}", h.HandleEntityEvents)
	mux.HandleFunc("GET /ws", h.HandleWebSocket)
	mux.HandleFunc("GET /status", h.HandleStatus)
}

func (h *HTTPHandlers) authenticate(w http.ResponseWriter, r *http.Request) (userID, userName string, ok bool) {
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return "", "", false
	}
	userName, err = h.authenticator.GetUserName(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return "", "", false
	}
	return userID, userName, true
}

// HandleCreate creates a new entity in a production.
func (h *HTTPHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, userName, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var body struct {
		Label         string          `json:"label"`
		Attrs         json.RawMessage `json:"attrs"`
		OriginSession string          `json:"origin_session"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse create request")
		return
	}

	result, err := h.service.ProposeCreate(r.Context(), &CreateRequest{
		ProductionID:  r.PathValue("productionID"),
		EntityType:    r.PathValue("entityType"),
		Label:         body.Label,
		Attrs:         body.Attrs,
		UserID:        userID,
		UserName:      userName,
		OriginSession: body.OriginSession,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "create_failed")
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// HandleUpdate merges a proposed field-level update. Conflicting fields come
// back in the response body; accepted fields are already applied.
func (h *HTTPHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, userName, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var body struct {
		FieldVersions json.RawMessage `json:"field_versions"`
		Data          json.RawMessage `json:"data"`
		OriginSession string          `json:"origin_session"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse update request")
		return
	}

	result, err := h.service.ProposeUpdate(r.Context(), &UpdateRequest{
		ProductionID:  r.PathValue("productionID"),
		EntityType:    r.PathValue("entityType"),
		EntityKey:     r.PathValue("entityKey"),
		FieldVersions: body.FieldVersions,
		Data:          body.Data,
		UserID:        userID,
		UserName:      userName,
		OriginSession: body.OriginSession,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "update_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleDelete soft-deletes an entity.
func (h *HTTPHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, userName, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	result, err := h.service.ProposeDelete(r.Context(), &DeleteRequest{
		ProductionID:  r.PathValue("productionID"),
		EntityType:    r.PathValue("entityType"),
		EntityKey:     r.PathValue("entityKey"),
		UserID:        userID,
		UserName:      userName,
		OriginSession: r.URL.Query().Get("origin_session"),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "delete_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleListEntities lists the live entities of one type in a production.
func (h *HTTPHandlers) HandleListEntities(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.authenticate(w, r); !ok {
		return
	}

	records, err := h.service.Store().ListByProduction(r.Context(),
		r.PathValue("productionID"), r.PathValue("entityType"))
	if err != nil {
		h.logger.Error("Failed to list entities", "error", err)
		h.writeError(w, http.StatusInternalServerError, "list_failed", "Failed to list entities")
		return
	}
	if records == nil {
		records = []*EntityRecord{}
	}

	h.writeJSON(w, http.StatusOK, records)
}

// HandleListEvents serves the production event feed. Without a since
// parameter it returns the newest events first; with since=<RFC3339> it
// returns the catch-up stream, oldest first.
func (h *HTTPHandlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.authenticate(w, r); !ok {
		return
	}
	productionID := r.PathValue("productionID")

	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339Nano, sinceStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "since must be an RFC3339 timestamp")
			return
		}
		events, err := h.service.Recorder().ListSince(r.Context(), productionID, since)
		if err != nil {
			h.logger.Error("Failed to list events since", "error", err, "production_id", productionID)
			h.writeError(w, http.StatusInternalServerError, "events_failed", "Failed to list events")
			return
		}
		h.writeEvents(w, events)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 1000 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	events, err := h.service.Recorder().ListByProduction(r.Context(), productionID, limit)
	if err != nil {
		h.logger.Error("Failed to list events", "error", err, "production_id", productionID)
		h.writeError(w, http.StatusInternalServerError, "events_failed", "Failed to list events")
		return
	}
	h.writeEvents(w, events)
}

// HandleEntityEvents serves the full history of one entity, newest first.
func (h *HTTPHandlers) HandleEntityEvents(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.authenticate(w, r); !ok {
		return
	}

	events, err := h.service.Recorder().ListByEntity(r.Context(),
		r.PathValue("productionID"), r.PathValue("entityKey"))
	if err != nil {
		h.logger.Error("Failed to list entity events", "error", err)
		h.writeError(w, http.StatusInternalServerError, "events_failed", "Failed to list events")
		return
	}
	h.writeEvents(w, events)
}

// HandleWebSocket upgrades the connection and hands it to a session that
// services join/leave messages and the hub's fan-out until disconnect.
func (h *HTTPHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, userName, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	session := NewWSSession(h.service.Hub(), conn, userID, userName, h.wsSettings, h.logger)
	h.logger.Debug("Websocket session started", "session_id", session.SessionID(), "user_id", userID)
	session.Run()
}

// HandleStatus reports service health and the registered entity types.
func (h *HTTPHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatusResponse{
		Status:      "healthy",
		AppName:     h.service.config.AppName,
		EntityTypes: h.service.EntityTypes(),
	})
}

func (h *HTTPHandlers) writeEvents(w http.ResponseWriter, events []*Event) {
	if events == nil {
		events = []*Event{}
	}
	h.writeJSON(w, http.StatusOK, events)
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeServiceError maps core error sentinels onto HTTP statuses.
func (h *HTTPHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	switch {
	case errors.Is(err, ErrMalformedVersions):
		h.writeError(w, http.StatusBadRequest, ReasonMalformedVersions, err.Error())
	case errors.Is(err, ErrBadPayload):
		h.writeError(w, http.StatusBadRequest, ReasonBadPayload, err.Error())
	case errors.Is(err, ErrUnregisteredEntityType):
		h.writeError(w, http.StatusBadRequest, ReasonUnregisteredEntityType, err.Error())
	case errors.Is(err, ErrEntityNotFound):
		h.writeError(w, http.StatusNotFound, ReasonNotFound, err.Error())
	default:
		h.logger.Error("Request failed", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusInternalServerError, fallbackCode, "Internal error")
	}
}

// writeError writes a standardized error response
func (h *HTTPHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
