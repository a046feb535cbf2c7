package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/astrade-api/internal/config"
	"github.com/ksred/astrade-api/internal/database"
	"github.com/ksred/astrade-api/pkg/logging"
	"github.com/ksred/astrade-api/pkg/response"
)

// main wires the gateway and serves it until SIGINT/SIGTERM
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid configuration")
	}

	logCloser := logging.Setup(cfg.Server.Env, cfg.Log)
	defer logCloser.Close()
	response.SetProduction(cfg.IsProduction())

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, db)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize services")
	}

	if err := a.markets.Start(cfg.Exchange.MarketRefresh); err != nil {
		zlog.Fatal().Err(err).Msg("Invalid market refresh schedule")
	}
	go a.limiter.Run(ctx)
	go a.sweeper.Start(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: a.router,
	}

	go func() {
		zlog.Info().
			Str("port", cfg.Server.Port).
			Str("env", cfg.Server.Env).
			Str("exchange_mode", a.exchange.Mode()).
			Msg("AsTrade API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stops stream pollers and the limiter sweep; hijacked websocket
	// connections are not covered by srv.Shutdown
	cancel()
	a.close()

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	zlog.Info().Msg("Server exiting")
}
