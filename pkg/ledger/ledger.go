// Package ledger gates metered actions behind a fixed per-user daily budget.
//
// Each user has one counter per UTC calendar day. CheckAndConsume adds a
// caller-chosen cost to today's counter only if the total stays within
// DailyLimit; GetUsage reads the counter without changing it. The quota
// "resets" because the day is part of the key, not because anything is
// cleared.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/cache"
	"github.com/resumeassist/usagegate/pkg/models"
	"github.com/resumeassist/usagegate/pkg/requestctx"
	"github.com/resumeassist/usagegate/pkg/tracker"
)

// DailyLimit is the number of cost units a user may consume per UTC day.
const DailyLimit int64 = 100

var (
	// ErrInvalidRequest is returned for a missing user id or a non-positive cost.
	ErrInvalidRequest = errors.New("ledger: invalid request")
	// ErrStoreUnavailable is returned when the usage store cannot be read or written.
	ErrStoreUnavailable = errors.New("ledger: store unavailable")
)

// Recorder receives every check-and-consume decision. Recorders run
// asynchronously and cannot change the outcome.
type Recorder interface {
	Record(ctx context.Context, d models.Decision) error
}

// Ledger checks and consumes daily usage.
type Ledger struct {
	tracker   tracker.Tracker
	exhausted *cache.Exhausted
	recorders []Recorder
	logger    *zap.Logger
	now       func() time.Time
	timeout   time.Duration
	wg        sync.WaitGroup
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCache short-circuits checks for users already at the limit.
func WithCache(c *cache.Exhausted) Option {
	return func(l *Ledger) { l.exhausted = c }
}

// WithRecorders registers decision recorders.
func WithRecorders(rs ...Recorder) Option {
	return func(l *Ledger) { l.recorders = append(l.recorders, rs...) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithTimeout bounds each store round trip. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// New creates a Ledger backed by t.
func New(t tracker.Tracker, opts ...Option) *Ledger {
	l := &Ledger{
		tracker: t,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Day returns the canonical UTC calendar day for t, formatted YYYY-MM-DD.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Today returns the current UTC day according to the ledger's clock.
func (l *Ledger) Today() string {
	return Day(l.now())
}

// CheckAndConsume reports whether userID may spend cost units today and, if
// so, records the spend. A denied call never writes. Store failures deny the
// call and return an error wrapping ErrStoreUnavailable.
func (l *Ledger) CheckAndConsume(ctx context.Context, userID string, cost int64) (bool, error) {
	today := l.Today()
	allowed, count, err := l.consume(ctx, userID, today, cost)

	d := models.Decision{
		ID:           uuid.NewString(),
		RequestID:    requestctx.GetRequestID(ctx),
		UserID:       userID,
		Date:         today,
		Cost:         cost,
		Allowed:      allowed,
		RequestCount: count,
		CreatedAt:    l.now().UTC(),
	}
	switch {
	case errors.Is(err, ErrInvalidRequest):
		d.Outcome = models.OutcomeInvalidRequest
	case err != nil:
		d.Outcome = models.OutcomeStoreUnavailable
	case allowed:
		d.Outcome = models.OutcomeAllowed
	default:
		d.Outcome = models.OutcomeQuotaExceeded
	}
	l.record(d)

	return allowed, err
}

func (l *Ledger) consume(ctx context.Context, userID, today string, cost int64) (bool, int64, error) {
	if err := validateUser(userID); err != nil {
		return false, 0, err
	}
	if cost < 1 {
		return false, 0, fmt.Errorf("%w: cost must be positive, got %d", ErrInvalidRequest, cost)
	}
	if cost > DailyLimit || l.exhausted.Has(userID, today) {
		return false, 0, nil
	}

	ctx, cancel := l.storeContext(ctx)
	defer cancel()

	count, applied, err := l.tracker.Consume(ctx, userID, today, cost, DailyLimit)
	if err != nil {
		l.logger.Error("usage consume failed",
			zap.String("user_id", userID), zap.Int64("cost", cost), zap.Error(err))
		return false, 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !applied {
		return false, 0, nil
	}
	if count >= DailyLimit {
		l.exhausted.Mark(userID, today)
	}
	return true, count, nil
}

// GetUsage returns the units userID has consumed today, 0 if none.
func (l *Ledger) GetUsage(ctx context.Context, userID string) (int64, error) {
	if err := validateUser(userID); err != nil {
		return 0, err
	}
	today := l.Today()

	ctx, cancel := l.storeContext(ctx)
	defer cancel()

	count, err := l.tracker.Usage(ctx, userID, today)
	if err != nil {
		l.logger.Error("usage lookup failed", zap.String("user_id", userID), zap.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if count >= DailyLimit {
		l.exhausted.Mark(userID, today)
	}
	return count, nil
}

// Status returns today's usage together with the limit and what is left.
func (l *Ledger) Status(ctx context.Context, userID string) (models.UsageStatus, error) {
	used, err := l.GetUsage(ctx, userID)
	if err != nil {
		return models.UsageStatus{}, err
	}
	remaining := DailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return models.UsageStatus{
		UserID:    userID,
		Date:      l.Today(),
		Used:      used,
		Limit:     DailyLimit,
		Remaining: remaining,
	}, nil
}

// History returns userID's records for the last days UTC days, newest first.
func (l *Ledger) History(ctx context.Context, userID string, days int) ([]models.UsageRecord, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if days < 1 {
		return nil, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidRequest, days)
	}
	since := Day(l.now().UTC().AddDate(0, 0, -(days - 1)))

	ctx, cancel := l.storeContext(ctx)
	defer cancel()

	recs, err := l.tracker.History(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return recs, nil
}

// Wait blocks until in-flight recorders finish.
func (l *Ledger) Wait() {
	l.wg.Wait()
}

func (l *Ledger) record(d models.Decision) {
	for _, r := range l.recorders {
		l.wg.Add(1)
		go func(r Recorder) {
			defer l.wg.Done()
			if err := r.Record(context.Background(), d); err != nil {
				l.logger.Warn("record decision failed",
					zap.String("decision_id", d.ID), zap.Error(err))
			}
		}(r)
	}
}

func (l *Ledger) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// InvalidReason returns the client-facing text of an ErrInvalidRequest
// error, without the sentinel prefix.
func InvalidReason(err error) string {
	msg := strings.TrimPrefix(err.Error(), ErrInvalidRequest.Error())
	msg = strings.TrimPrefix(msg, ": ")
	if msg == "" {
		return "invalid request"
	}
	return msg
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}
	return nil
}
