// Command keysweep runs the overdue monitor and transaction archival once,
// for use from cron or a one-off maintenance shell.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"key-service/internal/app"
	"key-service/internal/archive"
	"key-service/internal/config"
	"key-service/internal/domain/transaction"
	"key-service/internal/overdue"
	"key-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type options struct {
	sweep   bool
	remind  bool
	minTier string
	retry   bool
	archive bool
	since   string
	until   string
}

func parseFlags() options {
	var o options
	pflag.BoolVar(&o.sweep, "sweep", true, "mark overdue assignments and expire delegations")
	pflag.BoolVar(&o.remind, "remind", false, "send reminders for overdue assignments")
	pflag.StringVar(&o.minTier, "min-tier", "", "only remind at or above this tier (low, medium, high, critical)")
	pflag.BoolVar(&o.retry, "retry", false, "retry failed reminder deliveries")
	pflag.BoolVar(&o.archive, "archive", false, "export transactions to the archive bucket")
	pflag.StringVar(&o.since, "since", "", "archive transactions at or after this RFC3339 time")
	pflag.StringVar(&o.until, "until", "", "archive transactions before this RFC3339 time")
	pflag.Parse()
	return o
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}
	log.SetOutput(os.Stderr)

	opts := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	service, err := app.InitializeService(ctx, cfg, logger.NewJSON(os.Stderr))
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}
	// Fatalf skips deferred calls, so the pool is closed before exiting.
	err = run(ctx, service, opts)
	service.Close()
	if err != nil {
		log.Fatalf("keysweep: %v", err)
	}
}

func run(ctx context.Context, service *app.Service, opts options) error {
	monitor := service.Monitor()

	if opts.sweep {
		result, err := monitor.Sweep(ctx)
		if err != nil {
			return err
		}
		log.Printf("Sweep: %d assignments marked overdue, %d delegations expired",
			result.MarkedOverdue, result.ExpiredDelegations)
	}

	if opts.remind {
		results, err := monitor.SendReminders(ctx, overdue.ReminderScope{
			MinTier: overdue.Tier(opts.minTier),
			ActorID: transaction.SystemActorID,
		})
		if err != nil {
			return err
		}
		delivered := 0
		for _, r := range results {
			if r.Delivered {
				delivered++
			}
		}
		log.Printf("Reminders: %d sent, %d delivered", len(results), delivered)
	}

	if opts.retry {
		retried, err := monitor.RetryFailedReminders(ctx)
		if err != nil {
			return err
		}
		log.Printf("Retried %d failed reminders", retried)
	}

	if opts.archive {
		archiver := service.Archiver()
		if archiver == nil {
			log.Println("Archive skipped: ARCHIVE_BUCKET is not set")
			return nil
		}
		req, err := archiveRequest(opts)
		if err != nil {
			return err
		}
		result, err := archiver.Export(ctx, req)
		if err != nil {
			return err
		}
		if result.Count == 0 {
			log.Println("Archive: no transactions in range")
			return nil
		}
		log.Printf("Archive: %d transactions written to %s", result.Count, result.ObjectKey)
	}
	return nil
}

func archiveRequest(opts options) (archive.Request, error) {
	var req archive.Request
	if opts.since != "" {
		t, err := time.Parse(time.RFC3339, opts.since)
		if err != nil {
			return req, err
		}
		req.Since = &t
	}
	if opts.until != "" {
		t, err := time.Parse(time.RFC3339, opts.until)
		if err != nil {
			return req, err
		}
		req.Until = &t
	}
	return req, nil
}
