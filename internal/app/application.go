package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"campushub/internal/api"
	"campushub/internal/chat"
	"campushub/internal/config"
	"campushub/internal/database"
	"campushub/internal/identity"
	"campushub/internal/notification"
	"campushub/internal/presence"
	"campushub/internal/router"
	"campushub/internal/websocket"
	dbconfig "campushub/pkg/database"
)

// Application wires every component together and owns their lifetime.
// Initialization order follows the dependency chain:
// database -> identity -> presence -> services -> router -> handlers -> HTTP.
type Application struct {
	config   *config.Config
	db       *database.Manager
	presence *presence.Table
	router   *router.Router
	server   *http.Server
}

func New(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbCfg := dbconfig.DefaultConfig(cfg.Database.Path)
	dbCfg.ConnMaxLifetime = cfg.Database.Timeout
	dbCfg.ConnMaxIdleTime = cfg.Database.Timeout / 3

	db, err := database.NewManager(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	resolver := identity.NewResolver(db, []byte(cfg.Auth.TokenSecret))
	table := presence.NewTable()
	chatSvc := chat.NewService(db, db, table)
	notifSvc := notification.NewService(db, db, table)
	eventRouter := router.New(table, chatSvc, notifSvc)

	wsHandler := websocket.NewHandler(resolver, table, eventRouter, chatSvc, notifSvc, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	})
	apiServer := api.NewServer(resolver, chatSvc, notifSvc, table, db)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/ws", wsHandler)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:   cfg,
		db:       db,
		presence: table,
		router:   eventRouter,
		server:   server,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.server.Addr).Msg("server listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go a.janitor(ctx)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	return a.shutdown()
}

// janitor periodically trims rate limiter state for departed users.
func (a *Application) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.router.CleanupRateLimits()
		case <-ctx.Done():
			return
		}
	}
}

func (a *Application) shutdown() error {
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("database close failed")
		return err
	}

	log.Info().Msg("shutdown complete")
	return nil
}
