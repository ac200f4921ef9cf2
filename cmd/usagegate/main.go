package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "usagegate",
		Short:         "usagegate enforces per-user daily usage quotas",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults apply when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newUsageCmd(&configPath),
		newAuditCmd(&configPath),
		newAccountCmd(&configPath),
		newMCPCmd(&configPath),
	)
	return root
}
