package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/api"
	"github.com/resumeassist/usagegate/pkg/gateway"
	"github.com/resumeassist/usagegate/pkg/router"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the usage API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, *configPath, appOptions{recorders: true, accounts: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if listen != "" {
				a.cfg.Listen = listen
			}

			deps := api.Deps{
				Ledger:   a.ledger,
				Accounts: a.accounts,
				Metrics:  a.metrics.Handler(),
				Logger:   a.logger,
			}
			if a.cfg.Gateway.Enabled {
				rt, err := router.New(a.cfg.Gateway)
				if err != nil {
					return fmt.Errorf("init gateway: %w", err)
				}
				deps.Gateway = gateway.New(rt, a.ledger, a.logger, nil)
			}

			a.logger.Info("starting usagegate",
				zap.String("version", version),
				zap.String("store", a.cfg.Store.Driver),
				zap.Bool("gateway", a.cfg.Gateway.Enabled),
				zap.Bool("audit", a.cfg.Audit.Enabled),
				zap.Bool("events", a.cfg.Events.Enabled))
			return api.New(a.cfg, deps).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
