package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/resumeassist/usagegate/pkg/ledger"
	"github.com/resumeassist/usagegate/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve read-only usage tools over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			var auditor mcp.DecisionSearcher
			if a.auditor != nil {
				auditor = a.auditor
			}
			srv := mcp.New(a.ledger, auditor, ledger.DailyLimit, version, a.logger)
			return srv.Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
