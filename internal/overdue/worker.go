package overdue

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often the worker sweeps when none is configured.
const DefaultInterval = time.Minute

// Worker runs the sweep and reminder retries on a fixed interval.
type Worker struct {
	monitor  *Monitor
	interval time.Duration
	logger   *slog.Logger
}

func NewWorker(m *Monitor, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{monitor: m, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("overdue worker started", slog.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("overdue worker stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick performs a single sweep followed by reminder retries.
func (w *Worker) Tick(ctx context.Context) {
	if _, err := w.monitor.Sweep(ctx); err != nil {
		w.logger.Error("overdue sweep failed", slog.String("error", err.Error()))
	}
	if _, err := w.monitor.RetryFailedReminders(ctx); err != nil {
		w.logger.Error("reminder retry failed", slog.String("error", err.Error()))
	}
}
