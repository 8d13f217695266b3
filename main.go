package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"key-service/internal/app"
	"key-service/internal/config"
	"key-service/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	envFilePath      = ".env"
	signalBufferSize = 1
	logOutputFlags   = log.LstdFlags | log.Lshortfile
)

var shutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	if err := godotenv.Load(envFilePath); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(logOutputFlags)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("Configuration loaded successfully")

	service, err := app.InitializeService(context.Background(), cfg, logger.NewJSON(os.Stderr))
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}
	// Fatalf skips deferred calls, so the store is closed before exiting.
	err = serve(cfg, service)
	service.Close()
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server exited gracefully")
}

// serve runs the server until a shutdown signal arrives or it fails to start.
func serve(cfg *config.Config, service *app.Service) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- service.Start()
	}()

	quit := make(chan os.Signal, signalBufferSize)
	signal.Notify(quit, shutdownSignals...)

	var startErr error
	select {
	case <-quit:
		log.Println("Shutting down server...")
	case startErr = <-serverErr:
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := service.Shutdown(ctx); err != nil && startErr == nil {
		return fmt.Errorf("forced to shutdown: %w", err)
	}
	return startErr
}
