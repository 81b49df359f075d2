package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Prajwalprakash3722/imapCleanup/internal/cleanup"
	"github.com/Prajwalprakash3722/imapCleanup/internal/credential"
	"github.com/Prajwalprakash3722/imapCleanup/internal/query"
	"github.com/Prajwalprakash3722/imapCleanup/internal/rate"
	"github.com/Prajwalprakash3722/imapCleanup/internal/sync"
)

func newFetchCmd() *cobra.Command {
	var full bool
	var batchSize int

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Mirror message metadata from Gmail into the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if batchSize > 0 {
				cfg.FetchBatchSize = batchSize
			}

			session, err := dialSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			limiter := rate.NewTokenBucket(cfg.BatchesPerSec)
			defer limiter.Stop()

			engine := sync.NewEngine(st, session, sync.Options{
				BatchSize: cfg.FetchBatchSize,
				Retry: sync.RetryPolicy{
					MaxAttempts:    cfg.MaxAttempts,
					InitialBackoff: sync.DefaultRetryPolicy().InitialBackoff,
					MaxBackoff:     sync.DefaultRetryPolicy().MaxBackoff,
					Multiplier:     sync.DefaultRetryPolicy().Multiplier,
				},
				Limiter: limiter,
				Logger:  newLogger(),
			})

			mode := sync.ModeIncremental
			if full {
				mode = sync.ModeFull
			}

			report, err := engine.Run(ctx, mode)
			printSyncReport(report)
			return err
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Re-walk every remote UID instead of resuming from MAX(uid)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Messages per IMAP fetch (default from config)")
	return cmd
}

func printSyncReport(r *sync.Report) {
	if r == nil {
		return
	}
	fmt.Printf("\nSync complete (%s, %s):\n", r.Mode, r.Duration.Round(10*time.Millisecond))
	fmt.Printf("  Fetched:         %d\n", r.Fetched)
	fmt.Printf("  New stored:      %d\n", r.NewStored)
	fmt.Printf("  Already existed: %d\n", r.AlreadyExisted)
	fmt.Printf("  Skipped:         %d\n", r.Skipped)
	fmt.Printf("  Errored:         %d\n", r.Errored())
	if len(r.ErroredUIDs) > 0 {
		fmt.Printf("\nUIDs that could not be fetched (queued; the next fetch retries them):\n")
		for _, uid := range r.ErroredUIDs {
			fmt.Printf("  %d\n", uid)
		}
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := query.New(st).Stats(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Total emails:  %d\n", stats.Count)
			fmt.Printf("Total size:    %.2f MB\n", mb(stats.TotalSize))
			fmt.Printf("Oldest email:  %s\n", orNA(stats.Oldest.String))
			fmt.Printf("Newest email:  %s\n", orNA(stats.Newest.String))
			if stats.LastRun != nil {
				fmt.Printf("Last sync:     %s (%s, fetched %d, new %d, skipped %d, errored %d)\n",
					stats.LastRun.FinishedAt.Local().Format("2006-01-02 15:04:05"),
					stats.LastRun.Mode,
					stats.LastRun.Fetched,
					stats.LastRun.NewStored,
					stats.LastRun.Skipped,
					stats.LastRun.Errored,
				)
			} else {
				fmt.Printf("Last sync:     never\n")
			}
			return nil
		},
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func newTopSendersCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top-senders",
		Short: "Show top senders by message count and by size",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			q := query.New(st)

			byCount, err := q.TopSendersByCount(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Printf("Top %d senders by count:\n", limit)
			printSenderRows(byCount)

			bySize, err := q.TopSendersBySize(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Printf("\nTop %d senders by size:\n", limit)
			printSenderRows(bySize)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of senders to show")
	return cmd
}

func newNewslettersCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "newsletters",
		Short: "Show likely newsletter and automated senders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := query.New(st).Newsletters(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Println("Likely newsletter / automated senders:")
			printSenderRows(rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 30, "Number of senders to show")
	return cmd
}

func printSenderRows(rows []query.SenderRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SENDER\tCOUNT\tSIZE (MB)")
	var totalCount int
	var totalMB float64
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%.2f\n", truncate(r.SenderEmail, 60), r.Count, r.SizeMB)
		totalCount += r.Count
		totalMB += r.SizeMB
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%.2f\n", totalCount, totalMB)
	w.Flush()
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <SQL>",
		Short: "Run an ad-hoc read-only SQL query against the local database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rs, err := query.New(st).Exec(ctx, args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join(rs.Columns, "\t"))
			for _, row := range rs.Rows {
				cells := make([]string, len(row))
				for i, v := range row {
					cells[i] = formatCell(v)
				}
				fmt.Fprintln(w, strings.Join(cells, "\t"))
			}
			w.Flush()
			fmt.Printf("\n(%d rows)\n", len(rs.Rows))
			return nil
		},
	}
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func newCleanupCmd() *cobra.Command {
	var doDelete, yes, show bool
	var batchSize int

	cmd := &cobra.Command{
		Use:   "cleanup <pattern>...",
		Short: "Find (and optionally delete) messages by sender pattern",
		Long: `Matches messages whose sender address or display name contains any of
the given patterns, case-insensitively, and shows them grouped by sender.
With --delete, the matching messages are removed from Gmail after an
explicit confirmation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if batchSize > 0 {
				cfg.DeleteBatchSize = batchSize
			}

			engine := cleanup.NewEngine(st, nil, cleanup.Options{})

			sel, err := engine.Match(ctx, args)
			if err != nil {
				return err
			}
			if sel.TotalCount == 0 {
				fmt.Printf("No emails found matching patterns: %s\n", strings.Join(args, " "))
				return nil
			}

			fmt.Printf("Emails matching %s:\n", strings.Join(args, " "))
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SENDER\tCOUNT\tSIZE (MB)")
			for _, g := range sel.Groups {
				fmt.Fprintf(w, "%s\t%d\t%.2f\n", truncate(g.SenderEmail, 60), g.Count, mb(g.TotalSize))
			}
			fmt.Fprintf(w, "TOTAL\t%d\t%.2f\n", sel.TotalCount, mb(sel.TotalSize))
			w.Flush()

			if show {
				sample, err := engine.Sample(ctx, args, 10)
				if err != nil {
					return err
				}
				fmt.Printf("\nSample (first %d):\n", len(sample))
				for _, m := range sample {
					date := "N/A"
					if m.DateParsed != nil {
						date = m.DateParsed.Format("2006-01-02")
					}
					fmt.Printf("  UID %d: %s | %s | %s\n", m.UID, m.SenderEmail, date, truncate(m.Subject, 60))
				}
			}

			if !doDelete {
				fmt.Printf("\nTo delete these emails, re-run with --delete\n")
				return nil
			}

			confirm := ""
			if !yes {
				expected := cleanup.ConfirmationPhrase(sel.TotalCount)
				fmt.Printf("\nThis will PERMANENTLY delete %d emails from Gmail.\n", sel.TotalCount)
				fmt.Printf("Type '%s' to confirm: ", expected)
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading confirmation (use --yes when piping): %w", err)
				}
				confirm = strings.TrimSpace(line)
			}

			session, err := dialSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			limiter := rate.NewTokenBucket(cfg.BatchesPerSec)
			defer limiter.Stop()

			delEngine := cleanup.NewEngine(st, session, cleanup.Options{
				BatchSize: cfg.DeleteBatchSize,
				Limiter:   limiter,
				Logger:    newLogger(),
			})

			report, err := delEngine.Delete(ctx, sel.UIDs, confirm, yes)
			if cleanup.IsConfirmationError(err) {
				fmt.Println("Confirmation failed. Aborting.")
				return err
			}
			fmt.Printf("\nDeletion finished:\n")
			fmt.Printf("  Deleted: %d\n", len(report.Deleted))
			fmt.Printf("  Failed:  %d\n", len(report.Failed))
			if len(report.Failed) > 0 {
				fmt.Printf("\nUIDs the server rejected:\n")
				for _, uid := range report.Failed {
					fmt.Printf("  %d\n", uid)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&doDelete, "delete", false, "Actually delete matching emails from Gmail")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&show, "show", false, "Show a sample of matching emails")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Messages per delete batch (default from config)")
	return cmd
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the Gmail app password in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("Gmail app password: ")
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			if len(pw) == 0 {
				return fmt.Errorf("empty password")
			}
			if err := credential.Set(credential.KeyAppPassword, string(pw)); err != nil {
				return err
			}
			fmt.Println("Stored. GMAIL_APP_PASSWORD in the environment still takes precedence.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored app password from the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credential.Delete(credential.KeyAppPassword); err != nil {
				return err
			}
			fmt.Println("Removed.")
			return nil
		},
	})

	return cmd
}
