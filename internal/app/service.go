package app

import (
	"context"
	"errors"
	"log"
	stdhttp "net/http"
	"sync"

	"key-service/internal/archive"
	"key-service/internal/config"
	"key-service/internal/http"
	"key-service/internal/overdue"
	"key-service/internal/realtime"
	"key-service/internal/repository"
)

const serverAddrPrefix = ":"

// Service is the assembled key handover application.
type Service struct {
	config   *config.Config
	store    repository.Store
	hub      *realtime.Hub
	monitor  *overdue.Monitor
	worker   *overdue.Worker
	archiver *archive.Archiver
	stations int
	server   *http.Server

	stopWorker context.CancelFunc
	workerDone sync.WaitGroup
}

// Start runs the overdue sweep in the background and serves HTTP until the
// server is shut down.
func (s *Service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWorker = cancel
	s.workerDone.Add(1)
	go func() {
		defer s.workerDone.Done()
		s.worker.Run(ctx)
	}()

	log.Printf("Starting HTTP server on port %s (%s store, %d stations, archive enabled: %t)",
		s.config.Server.Port, s.config.Store.Driver, s.stations, s.archiver != nil)
	if err := s.server.Start(serverAddrPrefix + s.config.Server.Port); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, the sweep worker and every live stream.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.stopWorker != nil {
		s.stopWorker()
		s.workerDone.Wait()
	}
	s.hub.Close()
	return err
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) Monitor() *overdue.Monitor {
	return s.monitor
}

// Archiver is nil when archival is not configured.
func (s *Service) Archiver() *archive.Archiver {
	return s.archiver
}
