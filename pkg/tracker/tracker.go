package tracker

import (
	"context"
	"fmt"

	"github.com/resumeassist/usagegate/pkg/config"
	"github.com/resumeassist/usagegate/pkg/models"
)

// Tracker stores per-user, per-day usage counters.
type Tracker interface {
	// Usage returns the request count for userID on date, or 0 if no row exists.
	Usage(ctx context.Context, userID, date string) (int64, error)
	// Consume atomically adds cost to the (userID, date) counter if the result stays
	// within limit, creating the row when missing. applied is false, and nothing is
	// written, when the addition would exceed limit; count is only meaningful when applied.
	Consume(ctx context.Context, userID, date string, cost, limit int64) (count int64, applied bool, err error)
	// History returns records for userID with date >= sinceDate, newest first.
	History(ctx context.Context, userID, sinceDate string) ([]models.UsageRecord, error)
	// Close releases resources.
	Close() error
}

// Open builds the Tracker selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Tracker, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return New(cfg.DBPath)
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN)
	case config.DriverRedis:
		return NewRedis(ctx, cfg.RedisURL, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
