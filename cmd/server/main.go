package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "library-ledger-backend/internal/api/http"
	"library-ledger-backend/internal/bootstrap"
	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/config"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/security"
	"library-ledger-backend/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Library Ledger server...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "database_backend", cfg.Database.Backend, "identity_backend", cfg.Identity.Backend)

	ctx := context.Background()
	clk := clock.System()

	stores, err := bootstrap.OpenStores(ctx, cfg, clk.Now)
	if err != nil {
		logger.Error("Failed to open stores", "error", err)
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer stores.Close(ctx)

	publisher := bootstrap.Publisher(cfg)
	defer publisher.Close()

	keys, closeKeys, err := bootstrap.IdempotencyStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer closeKeys()

	policy := cfg.Policy()
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)

	registrySvc := service.NewRegistryService(stores.Units, clk)
	lendingSvc := service.NewLendingService(stores.Units, stores.Ledger, stores.Members, clk, policy, publisher)
	querySvc := service.NewQueryService(stores.Units, stores.Ledger, policy)
	authSvc := service.NewAuthService(stores.Members, tokenManager)

	handler := httpapi.NewHandler(registrySvc, lendingSvc, querySvc, authSvc, clk).
		WithSecureCookies(cfg.Server.SecureCookies).
		WithHealthCheck(stores.Ping)
	router := httpapi.NewRouter(handler, tokenManager, keys)

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}
