package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"key-service/internal/archive"
	"key-service/internal/auth"
	"key-service/internal/config"
	"key-service/internal/handover"
	"key-service/internal/http"
	"key-service/internal/ledger"
	"key-service/internal/notify"
	"key-service/internal/overdue"
	"key-service/internal/proof"
	"key-service/internal/rbac"
	"key-service/internal/rbac/presets"
	"key-service/internal/realtime"
	"key-service/internal/registry"
	"key-service/internal/repository"
	"key-service/internal/repository/postgres"
	"key-service/internal/repository/sqlite"
	"key-service/internal/sharing"
	"key-service/internal/storage/s3"
	"key-service/internal/txlog"
	"key-service/pkg/mailer"
	"key-service/pkg/mailer/providers"
	"key-service/pkg/mailer/strategies"
	"key-service/pkg/metrics"
)

const (
	errOpenStoreFmt     = "failed to open %s store: %w"
	errMigrateFmt       = "failed to migrate database: %w"
	errStationKeysFmt   = "failed to parse station keys: %w"
	errMailerFmt        = "failed to configure mailer: %w"
	errArchiveClientFmt = "failed to create S3 client: %w"
)

// InitializeService wires every component from cfg. The caller owns the
// returned Service and must Close it.
func InitializeService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub(logger)
	requestMetrics := metrics.New()
	txLog := txlog.New(store,
		txlog.WithClock(now),
		txlog.WithLogger(logger),
		txlog.WithMaxRetries(cfg.Handover.ReminderMaxRetries),
		txlog.WithPublisher(hub),
		txlog.WithPublisher(requestMetrics),
	)

	keys := registry.New(store, txLog, now, logger)
	grants := sharing.New(store, txLog, now, logger)
	assignments := ledger.New(ledger.Deps{
		Store:    store,
		Registry: keys,
		Verifier: proof.NewVerifier(cfg.Handover.ProofTTL, now),
		TxLog:    txLog,
		Closer:   grants,
		Now:      now,
		Logger:   logger,
	})

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	monitor := overdue.New(overdue.Deps{
		Store:    store,
		TxLog:    txLog,
		Notifier: notifier,
		Expirer:  grants,
		Now:      now,
		Logger:   logger,
	})

	archiver, err := buildArchiver(cfg, txLog, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	stations, err := buildStations(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	checker := rbac.MustNew(presets.KeyHandover())
	dispatcher := handover.NewDispatcher(handover.Services{
		Registry: keys,
		Ledger:   assignments,
		Sharing:  grants,
		Monitor:  monitor,
	}, checker, logger)

	deps := &http.ServerDependencies{
		Config:         cfg,
		Checker:        checker,
		AuthMiddleware: auth.NewMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryDuration), stations, checker),
		Metrics:        requestMetrics,
		Keys:           keys,
		Assignments:    assignments,
		Delegations:    grants,
		Overdue:        monitor,
		Transactions:   txLog,
		Stream:         hub,
		Dispatcher:     dispatcher,
	}
	if archiver != nil {
		deps.Archiver = archiver
	}

	return &Service{
		config:   cfg,
		store:    store,
		hub:      hub,
		monitor:  monitor,
		worker:   overdue.NewWorker(monitor, cfg.Handover.SweepInterval, logger),
		archiver: archiver,
		stations: stations.Len(),
		server:   http.NewServer(deps),
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf(errOpenStoreFmt, cfg.Store.Driver, err)
		}
		return store, nil
	default:
		db, err := postgres.New(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf(errOpenStoreFmt, cfg.Store.Driver, err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf(errMigrateFmt, err)
		}
		return db, nil
	}
}

// buildNotifier mails reminders when a provider is configured and logs them
// otherwise.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (overdue.Notifier, error) {
	if !cfg.Mail.Enabled() {
		return notify.NewLogNotifier(logger), nil
	}

	var list []providers.EmailProvider
	if cfg.Mail.ResendAPIKey != "" {
		list = append(list, mailer.NewResendProvider(providers.ResendConfig{APIKey: cfg.Mail.ResendAPIKey}))
	}
	if cfg.Mail.SendGridAPIKey != "" {
		list = append(list, mailer.NewSendGridProvider(providers.SendGridConfig{APIKey: cfg.Mail.SendGridAPIKey}))
	}

	strategy, err := strategies.ByName(cfg.Mail.Strategy)
	if err != nil {
		return nil, fmt.Errorf(errMailerFmt, err)
	}
	service, err := mailer.NewEmailService(mailer.EmailServiceConfig{
		Providers:   list,
		Strategy:    strategy,
		DefaultFrom: cfg.Mail.From,
	})
	if err != nil {
		return nil, fmt.Errorf(errMailerFmt, err)
	}
	recipients, err := mailer.ParseRecipients(cfg.Mail.Recipients)
	if err != nil {
		return nil, fmt.Errorf(errMailerFmt, err)
	}

	notifier, err := notify.NewEmailNotifier(service, notify.EmailConfig{
		SiteName:     cfg.Mail.SiteName,
		Recipients:   recipients,
		DashboardURL: cfg.Mail.DashboardURL,
	})
	if err != nil {
		return nil, fmt.Errorf(errMailerFmt, err)
	}
	return notifier, nil
}

// buildArchiver returns nil when no archive bucket is configured.
func buildArchiver(cfg *config.Config, txLog *txlog.Log, logger *slog.Logger) (*archive.Archiver, error) {
	if !cfg.Archive.Enabled() {
		return nil, nil
	}
	client, err := s3.NewClient(s3.Config{
		Region:          cfg.Archive.Region,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
		Bucket:          cfg.Archive.Bucket,
		Endpoint:        cfg.Archive.Endpoint,
	}, cfg.Archive.PresignedURLExpiry)
	if err != nil {
		return nil, fmt.Errorf(errArchiveClientFmt, err)
	}
	return archive.New(txLog, client, cfg.Archive.Prefix, time.Now, logger), nil
}

func buildStations(cfg *config.Config) (*auth.StationKeys, error) {
	if cfg.Station.Keys == "" {
		return nil, nil
	}
	stations, err := auth.ParseStationKeys(cfg.Station.Keys, cfg.Station.Salt)
	if err != nil {
		return nil, fmt.Errorf(errStationKeysFmt, err)
	}
	return stations, nil
}
