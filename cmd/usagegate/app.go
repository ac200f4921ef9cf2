package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/account"
	"github.com/resumeassist/usagegate/pkg/audit"
	"github.com/resumeassist/usagegate/pkg/cache"
	"github.com/resumeassist/usagegate/pkg/config"
	"github.com/resumeassist/usagegate/pkg/events"
	"github.com/resumeassist/usagegate/pkg/ledger"
	"github.com/resumeassist/usagegate/pkg/logging"
	"github.com/resumeassist/usagegate/pkg/metrics"
	"github.com/resumeassist/usagegate/pkg/tracker"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	tracker  tracker.Tracker
	ledger   *ledger.Ledger
	auditor  *audit.Logger
	metrics  *metrics.Collector
	accounts account.Store

	closers []func() error
}

type appOptions struct {
	// recorders enables audit, events and metrics recording.
	recorders bool
	accounts  bool
}

func openApp(ctx context.Context, configPath string, opts appOptions) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error { _ = logger.Sync(); return nil })

	if err := a.init(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts appOptions) error {
	cfg := a.cfg

	tr, err := tracker.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("init tracker: %w", err)
	}
	a.tracker = tr
	a.closers = append(a.closers, tr.Close)

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(a.logger),
		ledger.WithTimeout(cfg.Store.Timeout),
	}

	if cfg.Cache.Enabled {
		ex, err := cache.NewExhausted(ctx, cfg.Cache.LifeWindow)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, ex.Close)
		ledgerOpts = append(ledgerOpts, ledger.WithCache(ex))
	}

	if cfg.Audit.Enabled {
		l, err := audit.New(cfg.Audit)
		if err != nil {
			return fmt.Errorf("init audit log: %w", err)
		}
		a.auditor = l
		a.closers = append(a.closers, l.Close)
	}

	if opts.recorders {
		a.metrics = metrics.New()
		recorders := []ledger.Recorder{a.metrics}
		if a.auditor != nil {
			recorders = append(recorders, a.auditor)
		}
		if cfg.Events.Enabled {
			p, err := events.NewKafka(cfg.Events)
			if err != nil {
				return fmt.Errorf("init events: %w", err)
			}
			a.closers = append(a.closers, p.Close)
			recorders = append(recorders, p)
		}
		ledgerOpts = append(ledgerOpts, ledger.WithRecorders(recorders...))
	}

	a.ledger = ledger.New(tr, ledgerOpts...)
	// Drain in-flight recorders before their sinks close.
	a.closers = append(a.closers, func() error { a.ledger.Wait(); return nil })

	if opts.accounts {
		s, closeFn, err := account.ForTracker(ctx, tr, cfg.Store.DBPath)
		if err != nil {
			return fmt.Errorf("init accounts: %w", err)
		}
		a.accounts = s
		a.closers = append(a.closers, closeFn)
	}
	return nil
}

// Close releases resources in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
