package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/resumeassist/usagegate/pkg/account"
)

func newAccountCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage user accounts",
	}

	var email string
	initCmd := &cobra.Command{
		Use:   "init <user-id>",
		Short: "Create an account or update its email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath, appOptions{accounts: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.accounts.Init(cmd.Context(), args[0], email); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s initialized\n", args[0])
			return nil
		},
	}
	initCmd.Flags().StringVar(&email, "email", "", "account email")

	joinedCmd := &cobra.Command{
		Use:   "joined <user-id>",
		Short: "Show when an account was created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath, appOptions{accounts: true})
			if err != nil {
				return err
			}
			defer a.Close()

			joined, err := account.JoinedAt(cmd.Context(), a.accounts, args[0])
			if err != nil {
				return fmt.Errorf("account %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), joined.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.AddCommand(initCmd, joinedCmd)
	return cmd
}
