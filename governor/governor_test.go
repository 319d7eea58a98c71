package governor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"verifyengine/cache"
	"verifyengine/governor"
	"verifyengine/telemetry"
)

func testLogger() *telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: "error"})
}

func newGovernor() *governor.Governor {
	cfg := governor.Config{
		Default: governor.Limits{PerMinute: 5, PerHour: 100},
		IPPool:  []string{"10.0.0.1", "10.0.0.2"},
	}
	return governor.New(cfg, cache.NewMemStore(), testLogger())
}

func TestGovernor_AcquireRotatesIPs(t *testing.T) {
	g := newGovernor()
	ctx := context.Background()

	ip1, err := g.Acquire(ctx, "example.com")
	assert.NoError(t, err)
	ip2, err := g.Acquire(ctx, "example.com")
	assert.NoError(t, err)
	assert.NotEqual(t, ip1, ip2)
}

func TestGovernor_AcquireFailsOverMinuteLimit(t *testing.T) {
	g := newGovernor()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.Acquire(ctx, "example.com")
		assert.NoError(t, err)
	}
	_, err := g.Acquire(ctx, "example.com")
	assert.ErrorIs(t, err, governor.ErrRateLimitMinute)
}

func TestGovernor_BlockedLifecycle(t *testing.T) {
	g := newGovernor()
	ctx := context.Background()

	assert.False(t, g.IsBlocked(ctx, "bad.example.com"))
	g.MarkBlocked(ctx, "bad.example.com", 50*time.Millisecond)
	assert.True(t, g.IsBlocked(ctx, "bad.example.com"))

	time.Sleep(80 * time.Millisecond)
	assert.False(t, g.IsBlocked(ctx, "bad.example.com"))
}

func TestGovernor_DelayRampsAbove80Percent(t *testing.T) {
	g := newGovernor()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.Acquire(ctx, "example.com")
		assert.NoError(t, err)
	}
	d := g.Delay(ctx, "example.com")
	assert.Greater(t, d, time.Duration(0))
}

func TestGovernor_ReportSuccessFailureDoNotError(t *testing.T) {
	g := newGovernor()
	ctx := context.Background()
	g.ReportSuccess(ctx, "example.com")
	g.ReportFailure(ctx, "example.com", "timeout")
}
