package requestctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := SetRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestNormalizeRequestID(t *testing.T) {
	valid := uuid.NewString()
	assert.Equal(t, valid, NormalizeRequestID(valid))

	got := NormalizeRequestID("not-a-uuid")
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", got)
}
