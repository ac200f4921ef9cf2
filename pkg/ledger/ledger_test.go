package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeassist/usagegate/pkg/cache"
	"github.com/resumeassist/usagegate/pkg/models"
	"github.com/resumeassist/usagegate/pkg/requestctx"
	"github.com/resumeassist/usagegate/pkg/tracker"
)

var day1 = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts ...Option) (*Ledger, *tracker.SQLiteTracker) {
	t.Helper()
	tr, err := tracker.New(filepath.Join(t.TempDir(), "ledger_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	opts = append([]Option{WithClock(func() time.Time { return day1 })}, opts...)
	return New(tr, opts...), tr
}

// seed sets the user's counter for the ledger's current day.
func seed(t *testing.T, l *Ledger, userID string, used int64) {
	t.Helper()
	if used == 0 {
		return
	}
	ok, err := l.CheckAndConsume(context.Background(), userID, used)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*60*60)
	// 2026-03-01 20:00 at UTC-8 is already 2026-03-02 in UTC.
	assert.Equal(t, "2026-03-02", Day(time.Date(2026, 3, 1, 20, 0, 0, 0, loc)))
	assert.Equal(t, "2026-03-01", Day(day1))
}

func TestFreshUser(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	usage, err := l.GetUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage)

	ok, err := l.CheckAndConsume(ctx, "u1", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	usage, err = l.GetUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), usage)
}

func TestDenyOverLimitLeavesCountUnchanged(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	seed(t, l, "u1", 95)

	ok, err := l.CheckAndConsume(ctx, "u1", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	usage, _ := l.GetUsage(ctx, "u1")
	assert.Equal(t, int64(95), usage)
}

func TestExactlyAtLimit(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	seed(t, l, "u1", 90)

	ok, err := l.CheckAndConsume(ctx, "u1", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	usage, _ := l.GetUsage(ctx, "u1")
	assert.Equal(t, DailyLimit, usage)

	ok, err = l.CheckAndConsume(ctx, "u1", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUsersAreIndependent(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	seed(t, l, "u1", 99)

	ok, err := l.CheckAndConsume(ctx, "u1", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.CheckAndConsume(ctx, "u2", 5)
	require.NoError(t, err)
	assert.True(t, ok)

	u1, _ := l.GetUsage(ctx, "u1")
	u2, _ := l.GetUsage(ctx, "u2")
	assert.Equal(t, int64(99), u1)
	assert.Equal(t, int64(5), u2)
}

func TestInvalidRequests(t *testing.T) {
	l, tr := setup(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		userID string
		cost   int64
	}{
		{"missing user", "", 1},
		{"blank user", "   ", 1},
		{"zero cost", "u1", 0},
		{"negative cost", "u1", -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := l.CheckAndConsume(ctx, tc.userID, tc.cost)
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := l.GetUsage(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	recs, err := tr.History(ctx, "u1", "2000-01-01")
	require.NoError(t, err)
	assert.Empty(t, recs, "invalid requests must not write")
}

func TestInvalidReason(t *testing.T) {
	l, _ := setup(t)
	_, err := l.CheckAndConsume(context.Background(), "u1", 0)
	assert.Equal(t, "cost must be positive, got 0", InvalidReason(err))
	assert.Equal(t, "invalid request", InvalidReason(ErrInvalidRequest))
}

func TestCostAboveLimitNeverWrites(t *testing.T) {
	l, tr := setup(t)
	ctx := context.Background()

	ok, err := l.CheckAndConsume(ctx, "u1", DailyLimit+1)
	require.NoError(t, err)
	assert.False(t, ok)

	recs, _ := tr.History(ctx, "u1", "2000-01-01")
	assert.Empty(t, recs)
}

func TestDenialIsIdempotent(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	seed(t, l, "u1", DailyLimit)

	for range 5 {
		ok, err := l.CheckAndConsume(ctx, "u1", 1)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	usage, _ := l.GetUsage(ctx, "u1")
	assert.Equal(t, DailyLimit, usage)
}

func TestDayRollover(t *testing.T) {
	now := day1
	l, _ := setup(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	seed(t, l, "u1", DailyLimit)

	ok, _ := l.CheckAndConsume(ctx, "u1", 1)
	assert.False(t, ok)

	now = day1.Add(24 * time.Hour)
	usage, err := l.GetUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage, "yesterday's record must not count today")

	ok, err = l.CheckAndConsume(ctx, "u1", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	hist, err := l.History(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2026-03-02", hist[0].Date)
	assert.Equal(t, int64(1), hist[0].RequestCount)
	assert.Equal(t, DailyLimit, hist[1].RequestCount)
}

func TestConcurrentConsumesSumExactly(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 60 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.CheckAndConsume(ctx, "u1", 7)
			if err == nil && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	usage, err := l.GetUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(14), allowed.Load())
	assert.Equal(t, allowed.Load()*7, usage)
	assert.LessOrEqual(t, usage, DailyLimit)
}

func TestStatus(t *testing.T) {
	l, _ := setup(t)
	seed(t, l, "u1", 30)

	st, err := l.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UsageStatus{UserID: "u1", Date: "2026-03-01", Used: 30, Limit: 100, Remaining: 70}, st)
}

type failingTracker struct {
	tracker.Tracker
	consumeCalls atomic.Int64
}

var errBroken = errors.New("connection refused")

func (f *failingTracker) Usage(context.Context, string, string) (int64, error) {
	return 0, errBroken
}

func (f *failingTracker) Consume(context.Context, string, string, int64, int64) (int64, bool, error) {
	f.consumeCalls.Add(1)
	return 0, false, errBroken
}

func (f *failingTracker) History(context.Context, string, string) ([]models.UsageRecord, error) {
	return nil, errBroken
}

func TestStoreUnavailableFailsClosed(t *testing.T) {
	l := New(&failingTracker{})
	ctx := context.Background()

	ok, err := l.CheckAndConsume(ctx, "u1", 1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBroken)

	_, err = l.GetUsage(ctx, "u1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = l.History(ctx, "u1", 7)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

type slowTracker struct {
	tracker.Tracker
}

func (slowTracker) Consume(ctx context.Context, _, _ string, _, _ int64) (int64, bool, error) {
	<-ctx.Done()
	return 0, false, ctx.Err()
}

func TestTimeoutFailsClosed(t *testing.T) {
	l := New(slowTracker{}, WithTimeout(20*time.Millisecond))

	ok, err := l.CheckAndConsume(context.Background(), "u1", 1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExhaustedCacheSkipsStore(t *testing.T) {
	ex, err := cache.NewExhausted(context.Background(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })

	l, _ := setup(t, WithCache(ex))
	ctx := context.Background()
	seed(t, l, "u1", DailyLimit)
	assert.True(t, ex.Has("u1", "2026-03-01"))

	ft := &failingTracker{}
	cached := New(ft, WithCache(ex), WithClock(func() time.Time { return day1 }))
	ok, err := cached.CheckAndConsume(ctx, "u1", 1)
	require.NoError(t, err, "exhausted users are denied without a store round trip")
	assert.False(t, ok)
	assert.Equal(t, int64(0), ft.consumeCalls.Load())
}

type chanRecorder struct {
	ch chan models.Decision
}

func (r chanRecorder) Record(_ context.Context, d models.Decision) error {
	r.ch <- d
	return nil
}

func TestRecordersReceiveDecisions(t *testing.T) {
	rec := chanRecorder{ch: make(chan models.Decision, 4)}
	l, _ := setup(t, WithRecorders(rec))
	ctx := requestctx.SetRequestID(context.Background(), "req-1")

	_, _ = l.CheckAndConsume(ctx, "u1", 60)
	l.Wait()
	d := <-rec.ch
	assert.Equal(t, models.OutcomeAllowed, d.Outcome)
	assert.Equal(t, "req-1", d.RequestID)
	assert.Equal(t, int64(60), d.RequestCount)
	assert.Equal(t, "2026-03-01", d.Date)
	assert.NotEmpty(t, d.ID)

	_, _ = l.CheckAndConsume(ctx, "u1", 60)
	l.Wait()
	d = <-rec.ch
	assert.Equal(t, models.OutcomeQuotaExceeded, d.Outcome)
	assert.False(t, d.Allowed)

	_, _ = l.CheckAndConsume(ctx, "", 1)
	l.Wait()
	d = <-rec.ch
	assert.Equal(t, models.OutcomeInvalidRequest, d.Outcome)
}
