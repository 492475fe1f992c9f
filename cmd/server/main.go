// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/unclebandit/relaycast/internal/config"
	"github.com/unclebandit/relaycast/internal/logging"
	"github.com/unclebandit/relaycast/internal/registry"
	"github.com/unclebandit/relaycast/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Fine in production; only development relies on a .env file.
	}

	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	reg := registry.New(cfg.MaxConcurrentCampaigns, log)
	reg.StartGC(cfg.RegistryGCInterval)

	handler := server.New(reg, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("relaycast server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutdown signal received, draining campaigns")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg.Shutdown(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("relaycast server stopped")
}
