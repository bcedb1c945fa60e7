// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the CLI and the engine read.
type Config struct {
	Environment         string
	EncryptionKeyBase64 string

	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBSSLMode  string

	SyncBatchSize   int
	SyncInterval    time.Duration
	SyncConcurrency int

	IMAPMaxWorkers int
	IMAPUseTLS     bool
	SMTPUseTLS     bool

	MetricsAddr string
	LogLevel    string
	LogFile     string
}

// NewConfig reads THREADSYNC_* environment variables, after loading .env in
// development, and validates the result.
func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("threadsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if v.GetString("env") == "development" {
		// .env is optional, real environment variables win.
		_ = godotenv.Load()
	}

	config := &Config{
		Environment:         v.GetString("env"),
		EncryptionKeyBase64: v.GetString("encryption_key_base64"),
		DBHost:              v.GetString("db.host"),
		DBPort:              v.GetString("db.port"),
		DBUsername:          v.GetString("db.user"),
		DBPassword:          v.GetString("db.password"),
		DBName:              v.GetString("db.name"),
		DBSSLMode:           v.GetString("db.sslmode"),
		SyncBatchSize:       v.GetInt("sync.batch_size"),
		SyncInterval:        v.GetDuration("sync.interval"),
		SyncConcurrency:     v.GetInt("sync.concurrency"),
		IMAPMaxWorkers:      v.GetInt("imap.max_workers"),
		IMAPUseTLS:          v.GetBool("imap.tls"),
		SMTPUseTLS:          v.GetBool("smtp.tls"),
		MetricsAddr:         v.GetString("metrics.addr"),
		LogLevel:            v.GetString("log.level"),
		LogFile:             v.GetString("log.file"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "threadsync")
	v.SetDefault("db.name", "threadsync")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("sync.batch_size", 10)
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("imap.max_workers", 3)
	v.SetDefault("imap.tls", true)
	v.SetDefault("smtp.tls", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Validate reports the first missing or out of range setting.
func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return errors.New("THREADSYNC_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return errors.New("THREADSYNC_DB_PASSWORD is required")
	}

	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("THREADSYNC_SYNC_BATCH_SIZE must be positive, got %d", c.SyncBatchSize)
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("THREADSYNC_SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}

	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("THREADSYNC_SYNC_CONCURRENCY must be positive, got %d", c.SyncConcurrency)
	}

	if c.IMAPMaxWorkers <= 0 {
		return fmt.Errorf("THREADSYNC_IMAP_MAX_WORKERS must be positive, got %d", c.IMAPMaxWorkers)
	}

	return nil
}

// GetDatabaseURL returns a postgres:// connection URL.
func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUsername, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}
