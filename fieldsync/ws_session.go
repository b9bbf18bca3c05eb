// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// WSSessionSettings bounds the websocket write path.
type WSSessionSettings struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
	SendBuffer   int
}

// DefaultWSSessionSettings returns the settings used by the server binary.
func DefaultWSSessionSettings() *WSSessionSettings {
	return &WSSessionSettings{
		WriteTimeout: 10 * time.Second,
		PingInterval: 25 * time.Second,
		PongTimeout:  60 * time.Second,
		SendBuffer:   64,
	}
}

// inboundMessage is what a browser session sends over the socket: joins and
// explicit leaves. Entity mutations go over HTTP, not the socket.
type inboundMessage struct {
	Type         string `json:"type"` // "join" or "leave"
	ProductionID string `json:"production_id"`
}

// WSSession adapts one websocket connection to the hub's Sender contract.
// Joined rooms are tracked so a dropped connection leaves all of them.
type WSSession struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	settings *WSSessionSettings
	logger   *slog.Logger

	userID   string
	userName string

	send chan *OutboundMessage
	done chan struct{}

	mu     sync.Mutex
	joined map[string]bool
	closed bool
}

// NewWSSession wraps an upgraded connection for an authenticated user.
func NewWSSession(hub *Hub, conn *websocket.Conn, userID, userName string, settings *WSSessionSettings, logger *slog.Logger) *WSSession {
	if settings == nil {
		settings = DefaultWSSessionSettings()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSSession{
		id:       ulid.Make().String(),
		hub:      hub,
		conn:     conn,
		settings: settings,
		logger:   logger,
		userID:   userID,
		userName: userName,
		send:     make(chan *OutboundMessage, settings.SendBuffer),
		done:     make(chan struct{}),
		joined:   make(map[string]bool),
	}
}

// SessionID returns the ULID assigned to this connection.
func (s *WSSession) SessionID() string {
	return s.id
}

// Send enqueues a message for the write pump. A full buffer counts as a
// delivery failure rather than blocking the broadcaster behind a slow reader.
func (s *WSSession) Send(msg *OutboundMessage) error {
	select {
	case <-s.done:
		return errors.New("session closed")
	default:
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full (session %s)", s.id)
	}
}

// Run services the connection until it drops: a write pump with per-message
// deadlines and periodic pings, and a read loop handling join/leave messages.
// It blocks until the connection closes and always leaves every joined room.
func (s *WSSession) Run() {
	defer s.teardown()

	go s.writePump()
	s.readLoop()
}

func (s *WSSession) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	rooms := make([]string, 0, len(s.joined))
	for productionID := range s.joined {
		rooms = append(rooms, productionID)
	}
	s.joined = map[string]bool{}
	s.mu.Unlock()

	close(s.done)
	s.conn.Close()
	for _, productionID := range rooms {
		s.hub.Leave(productionID, s.id)
	}
	s.logger.Debug("Websocket session closed", "session_id", s.id, "user_id", s.userID)
}

func (s *WSSession) writePump() {
	ticker := time.NewTicker(s.settings.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				// A write deadline timeout cannot be recovered on a websocket.
				s.logger.Debug("Websocket write failed", "error", err, "session_id", s.id)
				s.conn.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		}
	}
}

func (s *WSSession) readLoop() {
	s.conn.SetReadDeadline(time.Now().Add(s.settings.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.settings.PongTimeout))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Websocket read failed", "error", err, "session_id", s.id)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("Dropping malformed websocket message", "error", err, "session_id", s.id)
			continue
		}

		switch msg.Type {
		case "join":
			if msg.ProductionID == "" {
				continue
			}
			s.mu.Lock()
			already := s.joined[msg.ProductionID]
			s.joined[msg.ProductionID] = true
			s.mu.Unlock()
			if !already {
				s.hub.Join(msg.ProductionID, s.userID, s.userName, s)
			}
		case "leave":
			if msg.ProductionID == "" {
				continue
			}
			s.mu.Lock()
			joined := s.joined[msg.ProductionID]
			delete(s.joined, msg.ProductionID)
			s.mu.Unlock()
			if joined {
				s.hub.Leave(msg.ProductionID, s.id)
			}
		default:
			s.logger.Warn("Unknown websocket message type", "type", msg.Type, "session_id", s.id)
		}
	}
}
