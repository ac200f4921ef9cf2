package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/resumeassist/usagegate/pkg/ledger"
)

func newUsageCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect and consume daily usage",
	}
	cmd.AddCommand(
		newUsageStatusCmd(configPath),
		newUsageConsumeCmd(configPath),
		newUsageHistoryCmd(configPath),
	)
	return cmd
}

func newUsageStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id>",
		Short: "Show today's usage for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.ledger.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tDATE\tUSED\tLIMIT\tREMAINING")
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", st.UserID, st.Date, st.Used, st.Limit, st.Remaining)
			return w.Flush()
		},
	}
}

func newUsageConsumeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "consume <user-id> [cost]",
		Short: "Check and consume units for a user (cost defaults to 1)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cost := int64(1)
			if len(args) == 2 {
				c, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid cost %q: %w", args[1], err)
				}
				cost = c
			}

			a, err := openApp(cmd.Context(), *configPath, appOptions{recorders: true})
			if err != nil {
				return err
			}
			defer a.Close()

			allowed, err := a.ledger.CheckAndConsume(cmd.Context(), args[0], cost)
			if err != nil {
				return err
			}
			if !allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "denied: %d units would exceed the daily limit of %d\n", cost, ledger.DailyLimit)
				return nil
			}
			usage, err := a.ledger.GetUsage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "allowed: %d/%d used today\n", usage, ledger.DailyLimit)
			return nil
		},
	}
}

func newUsageHistoryCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a user's daily usage for recent days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.ledger.History(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No usage recorded.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tUSED\tREMAINING")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%d\t%d\n", r.Date, r.RequestCount, max(ledger.DailyLimit-r.RequestCount, 0))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days to show")
	return cmd
}
