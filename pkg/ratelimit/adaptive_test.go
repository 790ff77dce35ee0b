package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardgate/wardgate/pkg/threat"
	"github.com/wardgate/wardgate/pkg/trust"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter() (*Limiter, *trust.Registry, *testClock) {
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	registry := trust.NewRegistry(&trust.RegistryOpts{TimeProvider: clock.Now})
	limiter := NewLimiter(registry, nil, &Opts{TimeProvider: clock.Now})
	return limiter, registry, clock
}

func TestGlobalCeilingScaling(t *testing.T) {
	assert.Equal(t, 10000, GlobalCeiling(0.0))
	assert.Equal(t, 5000, GlobalCeiling(1.0))
	assert.Equal(t, 7500, GlobalCeiling(0.5))
}

func TestFreshClientIsAllowed(t *testing.T) {
	limiter, _, _ := newTestLimiter()

	d := limiter.ShouldRateLimit("203.0.113.9:ab12cd34")
	assert.False(t, d.Limited)
	assert.Empty(t, d.Reason)
}

func TestShouldRateLimitDoesNotRecordRequest(t *testing.T) {
	limiter, registry, _ := newTestLimiter()

	for i := 0; i < 50; i++ {
		limiter.ShouldRateLimit("203.0.113.9:ab12cd34")
	}
	assert.Equal(t, 0, registry.Get("203.0.113.9:ab12cd34").Snapshot().RequestCount)
}

func TestBlockedClient(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	id := "203.0.113.9:ab12cd34"

	limiter.RecordSecurityViolation(id, threat.Critical, string(threat.SQLInjection))
	limiter.RecordSecurityViolation(id, threat.Critical, string(threat.SQLInjection))

	d := limiter.ShouldRateLimit(id)
	require.True(t, d.Limited)
	assert.Equal(t, ReasonClientBlocked, d.Reason)
	assert.Equal(t, 0.0, d.Details["trust_score"])
}

func TestClientBurstLimit(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	id := "203.0.113.9:ab12cd34"

	// Permissive tier allows a burst of 50 in 10 seconds.
	for i := 0; i < 50; i++ {
		d := limiter.ShouldRateLimit(id)
		require.False(t, d.Limited, "request %d", i)
		limiter.RecordRequest(id)
	}

	d := limiter.ShouldRateLimit(id)
	require.True(t, d.Limited)
	assert.Equal(t, ReasonClientLimit, d.Reason)
	assert.Equal(t, "permissive", d.Details["strategy"])
}

func TestClientWindowLimitAfterBurstSpreads(t *testing.T) {
	limiter, _, clock := newTestLimiter()
	id := "203.0.113.9:ab12cd34"

	// Spread requests so the 10s burst limit never trips; the profile
	// window caps at 100 entries so the permissive 300/min ceiling is
	// unreachable, but a degraded client hits its smaller ceiling.
	limiter.RecordSecurityViolation(id, threat.High, string(threat.XSS))
	// score 50 -> restrictive: 30/min, burst 5 per 10s.
	for i := 0; i < 30; i++ {
		clock.Advance(2 * time.Second)
		limiter.RecordRequest(id)
	}

	d := limiter.ShouldRateLimit(id)
	require.True(t, d.Limited)
	assert.Equal(t, ReasonClientLimit, d.Reason)
}

func TestGlobalLimitUpdatedEvenWhenClientBlocked(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	id := "203.0.113.9:ab12cd34"

	limiter.RecordSecurityViolation(id, threat.Critical, string(threat.SQLInjection))
	limiter.RecordSecurityViolation(id, threat.Critical, string(threat.SQLInjection))

	for i := 0; i < 100; i++ {
		limiter.ShouldRateLimit(id)
	}
	assert.InDelta(t, 0.099, limiter.SystemLoad(), 0.002)
}

func TestSystemLoadCapsAtOne(t *testing.T) {
	limiter, _, _ := newTestLimiter()

	for i := 0; i < 1200; i++ {
		limiter.ShouldRateLimit(fmt.Sprintf("10.0.%d.%d:aaaa0000", i/250, i%250))
	}
	assert.Equal(t, 1.0, limiter.SystemLoad())
}

func TestGlobalWindowPrunesOldEntries(t *testing.T) {
	limiter, _, clock := newTestLimiter()

	for i := 0; i < 500; i++ {
		limiter.ShouldRateLimit("203.0.113.9:ab12cd34")
	}
	require.Greater(t, limiter.SystemLoad(), 0.4)

	clock.Advance(2 * time.Minute)
	limiter.ShouldRateLimit("203.0.113.9:ab12cd34")
	assert.Equal(t, 0.0, limiter.SystemLoad())
}

func TestRecordErrorDegradesTrust(t *testing.T) {
	limiter, registry, _ := newTestLimiter()
	id := "203.0.113.9:ab12cd34"

	for i := 0; i < 20; i++ {
		limiter.RecordError(id)
	}
	assert.Equal(t, 60.0, registry.Get(id).Snapshot().Score)
}

func TestResetProfileRestoresDefaults(t *testing.T) {
	limiter, registry, _ := newTestLimiter()
	id := "203.0.113.9:ab12cd34"

	limiter.RecordSecurityViolation(id, threat.Critical, string(threat.CommandInjection))
	limiter.RecordSecurityViolation(id, threat.Critical, string(threat.CommandInjection))
	require.True(t, limiter.ShouldRateLimit(id).Limited)

	require.True(t, limiter.ResetProfile(id))
	d := limiter.ShouldRateLimit(id)
	assert.False(t, d.Limited)
	assert.Equal(t, 100.0, registry.Get(id).Snapshot().Score)
}

func TestSweepOldProfiles(t *testing.T) {
	limiter, _, clock := newTestLimiter()

	limiter.RecordRequest("203.0.113.1:aaaa1111")
	clock.Advance(31 * time.Minute)
	limiter.RecordRequest("203.0.113.2:bbbb2222")

	removed := limiter.SweepOldProfiles(30 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, limiter.ActiveClients())
}
