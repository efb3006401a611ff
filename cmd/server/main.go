package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/johnrirwin/topicbuddy/internal/app"
	"github.com/johnrirwin/topicbuddy/internal/config"
	"github.com/johnrirwin/topicbuddy/internal/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		logging.New(logging.LevelError).Error("Failed to initialize application", logging.WithField("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		_ = application.Shutdown(shutdownCtx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		application.Logger.Info("Shutting down...")
		cancel()
		// Stopping the HTTP server is what unblocks Run in server mode.
		if !cfg.Sync.RunOnce {
			shutdown()
		}
	}()

	runErr := application.Run(ctx)

	// Waits for a signal-triggered shutdown that is still in progress.
	shutdown()

	if runErr != nil {
		application.Logger.Error("Application error", logging.WithField("error", runErr.Error()))
		os.Exit(1)
	}
}
