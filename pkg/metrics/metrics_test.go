package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeassist/usagegate/pkg/models"
)

func TestRecord(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, models.Decision{Cost: 10, Allowed: true, Outcome: models.OutcomeAllowed}))
	require.NoError(t, c.Record(ctx, models.Decision{Cost: 2, Allowed: true, Outcome: models.OutcomeAllowed}))
	require.NoError(t, c.Record(ctx, models.Decision{Cost: 50, Outcome: models.OutcomeQuotaExceeded}))
	require.NoError(t, c.Record(ctx, models.Decision{Cost: 0, Outcome: models.OutcomeInvalidRequest}))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.decisions.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("quota_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("invalid_request")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.decisions.WithLabelValues("store_unavailable")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.units))
}

func TestHandler(t *testing.T) {
	c := New()
	_ = c.Record(context.Background(), models.Decision{Cost: 1, Allowed: true, Outcome: models.OutcomeAllowed})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `usagegate_decisions_total{outcome="allowed"} 1`)
	assert.Contains(t, rec.Body.String(), "usagegate_units_consumed_total 1")
}
