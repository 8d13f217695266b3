package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "q7Vx2LmR9tZp4WcY8nKs3JbH6dFg1QaE"

func baseEnv() map[string]string {
	return map[string]string{
		"STORE_DRIVER": DriverSQLite,
		"SQLITE_PATH":  "/tmp/keys.db",
		"JWT_SECRET":   testSecret,
	}
}

func with(overrides map[string]string) map[string]string {
	environ := baseEnv()
	for k, v := range overrides {
		environ[k] = v
	}
	return environ
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Handover.ProofTTL)
	assert.Equal(t, 5*time.Minute, cfg.Handover.SweepInterval)
	assert.Equal(t, 3, cfg.Handover.ReminderMaxRetries)
	assert.Equal(t, time.Hour, cfg.JWT.ExpiryDuration)
	assert.Equal(t, "failover", cfg.Mail.Strategy)
	assert.False(t, cfg.Mail.Enabled())
	assert.False(t, cfg.Archive.Enabled())
	assert.Equal(t, "transactions", cfg.Archive.Prefix)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(with(map[string]string{
		"STORE_DRIVER":          DriverPostgres,
		"DB_PASSWORD":           "secret",
		"DB_PORT":               "6543",
		"PROOF_TTL":             "2m",
		"REMINDER_MAX_RETRIES":  "5",
		"RESEND_API_KEY":        "re_test",
		"MAIL_FROM":             "desk@example.com",
		"REMINDER_RECIPIENTS":   "security@example.com",
		"ARCHIVE_BUCKET":        "key-archive",
		"REGION":                "eu-west-1",
		"AWS_ACCESS_KEY_ID":     "AKIA",
		"AWS_SECRET_ACCESS_KEY": "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Handover.ProofTTL)
	assert.Equal(t, 5, cfg.Handover.ReminderMaxRetries)
	assert.True(t, cfg.Mail.Enabled())
	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, "host=localhost port=6543 user=keyservice_app password=secret dbname=keyservice sslmode=disable", cfg.Database.DSN())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    string
	}{
		{"unknown driver", with(map[string]string{"STORE_DRIVER": "mysql"}), "STORE_DRIVER"},
		{"postgres without password", with(map[string]string{"STORE_DRIVER": DriverPostgres}), "DB_PASSWORD"},
		{"missing secret", with(map[string]string{"JWT_SECRET": ""}), "JWT_SECRET must be set"},
		{"short secret", with(map[string]string{"JWT_SECRET": "abc"}), "at least 32"},
		{"low entropy secret", with(map[string]string{"JWT_SECRET": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}), "entropy"},
		{"zero proof ttl", with(map[string]string{"PROOF_TTL": "0s"}), "PROOF_TTL"},
		{"zero retries", with(map[string]string{"REMINDER_MAX_RETRIES": "0"}), "REMINDER_MAX_RETRIES"},
		{"bad strategy", with(map[string]string{"MAIL_STRATEGY": "priority"}), "MAIL_STRATEGY"},
		{"mail without sender", with(map[string]string{"SENDGRID_API_KEY": "sg"}), "MAIL_FROM"},
		{"mail without recipients", with(map[string]string{"SENDGRID_API_KEY": "sg", "MAIL_FROM": "a@b.co"}), "REMINDER_RECIPIENTS"},
		{"archive without region", with(map[string]string{"ARCHIVE_BUCKET": "b"}), "REGION"},
		{"stations without salt", with(map[string]string{"STATION_KEYS": "x=y"}), "STATION_KEY_SALT"},
		{"unparsable duration", with(map[string]string{"SWEEP_INTERVAL": "soon"}), "parse env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHasMinimumEntropy(t *testing.T) {
	assert.True(t, hasMinimumEntropy(testSecret))
	assert.False(t, hasMinimumEntropy("abababababababababababababababab"))
	assert.False(t, hasMinimumEntropy("short"))
}
