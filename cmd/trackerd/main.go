// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vant-ks/VideoDept-sub006/fieldsync"
	"github.com/vant-ks/VideoDept-sub006/internal/config"
)

func main() {
	cfg := config.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if cfg.JWTSecret == "dev-secret-change-in-production" {
		logger.Warn("Using default JWT secret - change in production!")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to parse database DSN: %v", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("Failed to create database pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	hub := fieldsync.NewHub(logger)

	serviceConfig := &fieldsync.ServiceConfig{
		AppName: cfg.AppName,
		EntityTypes: []fieldsync.EntityTypeConfig{
			{Name: "camera", VersionedFields: []string{"status", "assigned_to", "location", "notes", "serial_number"}},
			{Name: "lens", VersionedFields: []string{"status", "assigned_to", "location", "notes", "mount"}},
			{Name: "audio_kit", VersionedFields: []string{"status", "assigned_to", "location", "notes", "channels"}},
			{Name: "lighting", VersionedFields: []string{"status", "assigned_to", "location", "notes", "wattage"}},
			{Name: "accessory", VersionedFields: []string{"status", "assigned_to", "location", "notes"}},
		},
	}

	service, err := fieldsync.NewSyncService(pool, serviceConfig, hub, logger)
	if err != nil {
		log.Fatalf("Failed to initialize sync service: %v", err)
	}
	defer service.Close()

	jwtAuth := fieldsync.NewJWTAuth(cfg.JWTSecret)
	handlers := fieldsync.NewHTTPHandlers(service, jwtAuth, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.HandleFunc("POST /signin", signinHandler(jwtAuth, cfg.TokenValidityDuration, logger))

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting tracker server", "addr", httpServer.Addr, "app", cfg.AppName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// signinHandler issues a JWT for the provided user. Any password is accepted;
// real credential checks live behind the org's SSO proxy in production.
func signinHandler(jwtAuth *fieldsync.JWTAuth, validity time.Duration, logger *slog.Logger) http.HandlerFunc {
	type signinReq struct {
		UserID   string `json:"user_id"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	type signinResp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
		UserID    string `json:"user_id"`
		Name      string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req signinReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request", "message": "invalid JSON"})
			return
		}
		if req.UserID == "" || req.Name == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request", "message": "user_id and name required"})
			return
		}
		tok, err := jwtAuth.GenerateToken(req.UserID, req.Name, validity)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "token_error", "message": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(signinResp{
			Token:     tok,
			ExpiresIn: int64(validity.Seconds()),
			UserID:    req.UserID,
			Name:      req.Name,
		})
		logger.Info("Issued session token", "user_id", req.UserID)
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
