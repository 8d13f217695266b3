package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	minJWTSecretLength       = 32
	minUniqueCharsInSecret   = 16
	minRepeatedCharThreshold = 4
	maxRepeatedChars         = 2
)

const (
	errParseEnvFmt             = "parse env: %w"
	errInvalidConfigurationFmt = "invalid configuration: %w"
	errPortRequired            = "PORT must be set"
	errUnknownDriverFmt        = "STORE_DRIVER must be %q or %q, got %q"
	errDBPasswordRequired      = "DB_PASSWORD must be set for the postgres store"
	errDBConnsInvalid          = "DB_MIN_CONNS must not exceed DB_MAX_CONNS"
	errSQLitePathRequired      = "SQLITE_PATH must be set for the sqlite store"
	errJWTSecretRequired       = "JWT_SECRET must be set"
	errJWTSecretMinLengthFmt   = "JWT_SECRET must be at least %d characters"
	errJWTSecretLowEntropy     = "JWT_SECRET has insufficient entropy (appears non-random). Use a cryptographically secure random string."
	errJWTExpiryInvalid        = "JWT_EXPIRY must be positive"
	errProofTTLInvalid         = "PROOF_TTL must be positive"
	errSweepIntervalInvalid    = "SWEEP_INTERVAL must be positive"
	errReminderRetriesInvalid  = "REMINDER_MAX_RETRIES must be at least 1"
	errMailStrategyFmt         = "MAIL_STRATEGY must be one of single, failover, roundrobin, got %q"
	errMailFromRequired        = "MAIL_FROM must be set when a mail provider is configured"
	errMailRecipientsRequired  = "REMINDER_RECIPIENTS must be set when a mail provider is configured"
	errRegionRequired          = "REGION must be set when ARCHIVE_BUCKET is set"
	errAWSCredentialsRequired  = "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set when ARCHIVE_BUCKET is set"
	errPresignedExpiryInvalid  = "DOWNLOAD_URL_TIME_LIMIT must be positive"
	errStationSaltRequired     = "STATION_KEY_SALT must be set when STATION_KEYS is set"
	errStationRateLimitInvalid = "STATION_RATE_LIMIT must be positive"
	errRequestRateLimitInvalid = "RATE_LIMIT must be positive"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Handover HandoverConfig
	Mail     MailConfig
	Archive  ArchiveConfig
	Station  StationConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RateLimit       float64       `env:"RATE_LIMIT" envDefault:"20"`
	RateBurst       int           `env:"RATE_BURST" envDefault:"40"`
	Profiling       bool          `env:"ENABLE_PROFILING"`
}

type StoreConfig struct {
	Driver     string `env:"STORE_DRIVER" envDefault:"postgres"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"keys.db"`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	Database string `env:"DB_NAME" envDefault:"keyservice"`
	User     string `env:"DB_USER" envDefault:"keyservice_app"`
	Password string `env:"DB_PASSWORD"`
	SSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns int    `env:"DB_MIN_CONNS" envDefault:"5"`
}

type JWTConfig struct {
	Secret         string        `env:"JWT_SECRET"`
	ExpiryDuration time.Duration `env:"JWT_EXPIRY" envDefault:"60m"`
}

// HandoverConfig tunes proof tokens and the overdue monitor.
type HandoverConfig struct {
	ProofTTL           time.Duration `env:"PROOF_TTL" envDefault:"10m"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	ReminderMaxRetries int           `env:"REMINDER_MAX_RETRIES" envDefault:"3"`
}

type MailConfig struct {
	Strategy       string `env:"MAIL_STRATEGY" envDefault:"failover"`
	From           string `env:"MAIL_FROM"`
	ResendAPIKey   string `env:"RESEND_API_KEY"`
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	Recipients     string `env:"REMINDER_RECIPIENTS"`
	SiteName       string `env:"SITE_NAME" envDefault:"Key Desk"`
	DashboardURL   string `env:"DASHBOARD_URL"`
}

type ArchiveConfig struct {
	Region             string        `env:"REGION"`
	AccessKeyID        string        `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey    string        `env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint           string        `env:"AWS_ENDPOINT"`
	Bucket             string        `env:"ARCHIVE_BUCKET"`
	Prefix             string        `env:"ARCHIVE_PREFIX" envDefault:"transactions"`
	PresignedURLExpiry time.Duration `env:"DOWNLOAD_URL_TIME_LIMIT" envDefault:"15m"`
}

type StationConfig struct {
	Keys      string  `env:"STATION_KEYS"`
	Salt      string  `env:"STATION_KEY_SALT"`
	RateLimit float64 `env:"STATION_RATE_LIMIT" envDefault:"2"`
	RateBurst int     `env:"STATION_RATE_BURST" envDefault:"5"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf(errParseEnvFmt, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf(errInvalidConfigurationFmt, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New(errPortRequired)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return errors.New(errRequestRateLimitInvalid)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.Password == "" {
			return errors.New(errDBPasswordRequired)
		}
		if c.Database.MinConns > c.Database.MaxConns {
			return errors.New(errDBConnsInvalid)
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New(errSQLitePathRequired)
		}
	default:
		return fmt.Errorf(errUnknownDriverFmt, DriverPostgres, DriverSQLite, c.Store.Driver)
	}

	if c.JWT.Secret == "" {
		return errors.New(errJWTSecretRequired)
	}
	if len(c.JWT.Secret) < minJWTSecretLength {
		return fmt.Errorf(errJWTSecretMinLengthFmt, minJWTSecretLength)
	}
	if !hasMinimumEntropy(c.JWT.Secret) {
		return errors.New(errJWTSecretLowEntropy)
	}
	if c.JWT.ExpiryDuration <= 0 {
		return errors.New(errJWTExpiryInvalid)
	}

	if c.Handover.ProofTTL <= 0 {
		return errors.New(errProofTTLInvalid)
	}
	if c.Handover.SweepInterval <= 0 {
		return errors.New(errSweepIntervalInvalid)
	}
	if c.Handover.ReminderMaxRetries < 1 {
		return errors.New(errReminderRetriesInvalid)
	}

	if err := c.Mail.validate(); err != nil {
		return err
	}
	if err := c.Archive.validate(); err != nil {
		return err
	}

	if c.Station.Keys != "" && c.Station.Salt == "" {
		return errors.New(errStationSaltRequired)
	}
	if c.Station.RateLimit <= 0 || c.Station.RateBurst <= 0 {
		return errors.New(errStationRateLimitInvalid)
	}
	return nil
}

// Enabled reports whether any mail provider is configured.
func (m *MailConfig) Enabled() bool {
	return m.ResendAPIKey != "" || m.SendGridAPIKey != ""
}

func (m *MailConfig) validate() error {
	switch m.Strategy {
	case "single", "failover", "roundrobin":
	default:
		return fmt.Errorf(errMailStrategyFmt, m.Strategy)
	}
	if !m.Enabled() {
		return nil
	}
	if m.From == "" {
		return errors.New(errMailFromRequired)
	}
	if m.Recipients == "" {
		return errors.New(errMailRecipientsRequired)
	}
	return nil
}

// Enabled reports whether transaction archival to S3 is configured.
func (a *ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

func (a *ArchiveConfig) validate() error {
	if !a.Enabled() {
		return nil
	}
	if a.Region == "" {
		return errors.New(errRegionRequired)
	}
	if a.AccessKeyID == "" || a.SecretAccessKey == "" {
		return errors.New(errAWSCredentialsRequired)
	}
	if a.PresignedURLExpiry <= 0 {
		return errors.New(errPresignedExpiryInvalid)
	}
	return nil
}

func hasMinimumEntropy(secret string) bool {
	if len(secret) < minJWTSecretLength {
		return false
	}

	charCounts := make(map[rune]int)
	for _, char := range secret {
		charCounts[char]++
	}

	uniqueChars := len(charCounts)
	if uniqueChars < minUniqueCharsInSecret {
		return false
	}

	repeatedChars := 0
	for _, count := range charCounts {
		if count > len(secret)/minRepeatedCharThreshold {
			repeatedChars++
		}
	}

	return repeatedChars <= maxRepeatedChars
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
