package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qbsync-server/internal/config"
	"qbsync-server/internal/handler"
	"qbsync-server/internal/middleware"
	"qbsync-server/internal/odoo"
	"qbsync-server/internal/qbxml"
	"qbsync-server/internal/registry"
	"qbsync-server/internal/repository"
	"qbsync-server/internal/service"
	"qbsync-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Server.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to CouchDB")
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to check database existence")
	}
	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			log.Fatal().Err(err).Msg("failed to create database")
		}
		log.Info().Str("database", cfg.Database.Name).Msg("created database")
	}

	sessionRepo := repository.NewSessionRepository(client, cfg.Database.Name)
	snapshotRepo := repository.NewSnapshotRepository(client, cfg.Database.Name)
	crosswalkRepo, err := repository.NewCrosswalkRepository(cfg.Connector.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load mapping files")
	}

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxClients,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler())
	go wsManager.Run()

	reg := registry.Default()
	erpClient := odoo.NewClient(cfg.ERP.URL, cfg.ERP.Database, cfg.ERP.Username, cfg.ERP.APIKey)

	upsertService := service.NewUpsertService(erpClient, crosswalkRepo)
	reconcilerService := service.NewReconcilerService(reg, snapshotRepo, upsertService)
	orchestratorService := service.NewOrchestratorService(
		sessionRepo,
		reg,
		qbxml.NewBuilder(),
		reconcilerService,
		wsManager,
		cfg.Connector.Username,
		cfg.Connector.Password,
		cfg.Connector.SessionTTL,
	)
	authService := service.NewAuthService(
		cfg.Admin.Username,
		cfg.Admin.PasswordHash,
		cfg.JWT.Secret,
		cfg.JWT.Expiration,
		cfg.JWT.RefreshTokenExpiration,
	)

	qbwcHandler := handler.NewQBWCHandler(orchestratorService)
	authHandler := handler.NewAuthHandler(authService)
	adminHandler := handler.NewAdminHandler(orchestratorService, snapshotRepo, crosswalkRepo, reg)
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	r.HandleFunc("/qbwc", qbwcHandler.Handle).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	protected.HandleFunc("/sessions", adminHandler.ListSessions).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sessions/{ticket}", adminHandler.GetSession).Methods("GET", "OPTIONS")
	protected.HandleFunc("/snapshots", adminHandler.ListSnapshots).Methods("GET", "OPTIONS")
	protected.HandleFunc("/mappings/reload", adminHandler.ReloadCrosswalk).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", adminHandler.Health).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Server.Env).Msg("starting sync server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped gracefully")
}
