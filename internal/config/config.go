package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/Prajwalprakash3722/imapCleanup/internal/credential"
)

// Gmail IMAP settings. Host and port are fixed by the provider; the All
// Mail folder is the only mailbox this tool touches, so UIDs stay unique.
const (
	DefaultHost    = "imap.gmail.com"
	DefaultPort    = 993
	DefaultMailbox = "[Gmail]/All Mail"
)

const (
	DefaultFetchBatchSize  = 100
	DefaultDeleteBatchSize = 50
	DefaultBatchesPerSec   = 2
	DefaultMaxAttempts     = 4
)

// Config holds everything the CLI needs to talk to Gmail and the local
// database. The app password is a secret and must never be logged.
type Config struct {
	// Email is the Gmail account address (GMAIL_EMAIL).
	Email string

	// AppPassword is the 16-character application password
	// (GMAIL_APP_PASSWORD, falling back to the system keyring).
	AppPassword string

	Host    string
	Port    int
	Mailbox string

	// DBPath is the SQLite database file path.
	DBPath string

	// FetchBatchSize is the number of messages per IMAP FETCH. Gmail
	// disconnects sessions that fetch too much at once; low hundreds
	// is safe.
	FetchBatchSize int

	// DeleteBatchSize is the number of messages per STORE+EXPUNGE.
	DeleteBatchSize int

	// BatchesPerSec paces remote batch commands to stay under Gmail's
	// IMAP throttling.
	BatchesPerSec int

	// MaxAttempts bounds retries of a failed batch before it is
	// recorded as errored.
	MaxAttempts int
}

// Load reads configuration from a .env file in the working directory (when
// present) overlaid by real environment variables, and resolves the app
// password from the environment or the system keyring.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("gmail_host", DefaultHost)
	v.SetDefault("gmail_port", DefaultPort)
	v.SetDefault("gmail_mailbox", DefaultMailbox)
	v.SetDefault("db_path", "gmail.db")
	v.SetDefault("fetch_batch_size", DefaultFetchBatchSize)
	v.SetDefault("delete_batch_size", DefaultDeleteBatchSize)
	v.SetDefault("batches_per_sec", DefaultBatchesPerSec)
	v.SetDefault("max_attempts", DefaultMaxAttempts)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Email:           v.GetString("gmail_email"),
		AppPassword:     v.GetString("gmail_app_password"),
		Host:            v.GetString("gmail_host"),
		Port:            v.GetInt("gmail_port"),
		Mailbox:         v.GetString("gmail_mailbox"),
		DBPath:          v.GetString("db_path"),
		FetchBatchSize:  v.GetInt("fetch_batch_size"),
		DeleteBatchSize: v.GetInt("delete_batch_size"),
		BatchesPerSec:   v.GetInt("batches_per_sec"),
		MaxAttempts:     v.GetInt("max_attempts"),
	}

	if cfg.AppPassword == "" {
		// Not in the environment; try the keyring (populated via
		// `imapcleanup auth set`).
		if pw, err := credential.Get(credential.KeyAppPassword); err == nil {
			cfg.AppPassword = pw
		}
	}

	return cfg, nil
}

// RequireCredentials reports an actionable error when the account or app
// password is missing. Called only by commands that open an IMAP session;
// local-only commands work without credentials.
func (c *Config) RequireCredentials() error {
	if c.Email == "" || c.AppPassword == "" {
		return fmt.Errorf(
			"missing credentials: set GMAIL_EMAIL and GMAIL_APP_PASSWORD " +
				"(or run `imapcleanup auth set`); app passwords: " +
				"https://myaccount.google.com/apppasswords",
		)
	}
	return nil
}
