package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Prajwalprakash3722/imapCleanup/internal/config"
	"github.com/Prajwalprakash3722/imapCleanup/internal/mailbox"
	"github.com/Prajwalprakash3722/imapCleanup/internal/store"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "imapcleanup",
		Short:   "Analyze and clean up a Gmail mailbox via IMAP",
		Version: version,
		Long: `imapcleanup mirrors Gmail message metadata into a local SQLite
database, runs analytics against it, and bulk-deletes matching messages
back on the server.

First-time setup:
  1. Create a .env file (or export the variables):
       GMAIL_EMAIL=yourname@gmail.com
       GMAIL_APP_PASSWORD=xxxx xxxx xxxx xxxx
     App passwords: https://myaccount.google.com/apppasswords
  2. imapcleanup fetch
  3. imapcleanup stats / top-senders / newsletters
  4. imapcleanup cleanup swiggy --delete`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(
		newFetchCmd(),
		newStatsCmd(),
		newTopSendersCmd(),
		newNewslettersCmd(),
		newQueryCmd(),
		newCleanupCmd(),
		newAuthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		newLogger().Error("imapcleanup failed", "error", err)
		os.Exit(1)
	}
}

// newLogger returns the operational logger. Command output goes to
// stdout; logs go to stderr so query results stay pipeable.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("IMAPCLEANUP_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext returns a context canceled on SIGINT/SIGTERM, so an
// interrupted sync stops between batches and stays resumable.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openStore loads config and opens the local database.
func openStore() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// dialSession connects to Gmail with the configured credentials.
func dialSession(ctx context.Context, cfg *config.Config) (*mailbox.IMAPSession, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	return mailbox.Dial(ctx, mailbox.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Email,
		Password: cfg.AppPassword,
		Mailbox:  cfg.Mailbox,
	})
}

func mb(bytes int64) float64 {
	return float64(bytes) / 1024.0 / 1024.0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
