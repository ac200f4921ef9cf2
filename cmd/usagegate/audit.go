package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/resumeassist/usagegate/pkg/audit"
	"github.com/resumeassist/usagegate/pkg/config"
	"github.com/resumeassist/usagegate/pkg/models"
)

func newAuditCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the decision audit log",
	}
	cmd.AddCommand(
		newAuditSearchCmd(configPath),
		newAuditStatsCmd(configPath),
		newAuditCleanupCmd(configPath),
	)
	return cmd
}

func newAuditSearchCmd(configPath *string) *cobra.Command {
	var (
		userID  string
		outcome string
		since   string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search recorded decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := models.AuditQueryOpts{
				UserID:  userID,
				Outcome: models.Outcome(outcome),
				Limit:   limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			l, err := openAuditLogger(*configPath)
			if err != nil {
				return err
			}
			defer l.Close()

			decisions, err := l.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			writeDecisions(cmd.OutOrStdout(), decisions)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (allowed, quota_exceeded, invalid_request, store_unavailable)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max decisions to return")
	return cmd
}

func newAuditStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show decision counts by outcome and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openAuditLogger(*configPath)
			if err != nil {
				return err
			}
			defer l.Close()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			writeAuditStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newAuditCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete decisions older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openAuditLogger(*configPath)
			if err != nil {
				return err
			}
			defer l.Close()

			deleted, err := l.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d decisions.\n", deleted)
			return nil
		},
	}
}

// openAuditLogger opens the audit database even when recording is disabled,
// so past decisions stay queryable.
func openAuditLogger(configPath string) (*audit.Logger, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, nil
}

func writeDecisions(w io.Writer, decisions []models.Decision) {
	if len(decisions) == 0 {
		fmt.Fprintln(w, "No decisions found.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-24s %-12s %-18s %6s %6s %-20s\n",
		"REQUEST ID", "USER", "DATE", "OUTCOME", "COST", "COUNT", "TIME")
	b.WriteString(strings.Repeat("-", 130) + "\n")
	for _, d := range decisions {
		fmt.Fprintf(&b, "%-36s %-24s %-12s %-18s %6d %6d %-20s\n",
			d.RequestID, d.UserID, d.Date, d.Outcome, d.Cost, d.RequestCount,
			d.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprint(w, b.String())
}

func writeAuditStats(w io.Writer, stats []models.AuditStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No decisions recorded.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-18s %8s %8s\n", "DAY", "OUTCOME", "COUNT", "UNITS")
	b.WriteString(strings.Repeat("-", 49) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %-18s %8d %8d\n", s.Day, s.Outcome, s.Count, s.Units)
	}
	fmt.Fprint(w, b.String())
}
