package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/threat"
	"github.com/wardgate/wardgate/pkg/trust"
)

const (
	// ReasonClientBlocked is returned when the profile itself forbids
	// any traffic, before limits are even consulted.
	ReasonClientBlocked = "client blocked"
	ReasonGlobalLimit   = "global rate limit exceeded"
	ReasonClientLimit   = "client rate limit exceeded"

	baseGlobalCeiling = 10000
	globalWindow      = 60 * time.Second
	loadDenominator   = 1000.0
)

// Decision is the outcome of a single admission check.
type Decision struct {
	Limited bool
	Reason  string
	Details map[string]interface{}
}

// Limiter admits requests against a global ceiling that tightens under
// load and per-client thresholds that tighten as trust decays. It never
// records the checked request into the client profile; the caller does
// that only for requests that are actually let through, so denied
// traffic cannot double-count against the client.
type Limiter struct {
	registry *trust.Registry
	logger   *logrus.Logger

	mu           sync.Mutex
	globalWindow []time.Time
	systemLoad   float64

	timeProvider func() time.Time
}

type Opts struct {
	TimeProvider func() time.Time
}

func NewLimiter(registry *trust.Registry, logger *logrus.Logger, opts *Opts) *Limiter {
	l := &Limiter{
		registry:     registry,
		logger:       logger,
		timeProvider: time.Now,
	}
	if opts != nil && opts.TimeProvider != nil {
		l.timeProvider = opts.TimeProvider
	}
	return l
}

// GlobalCeiling returns the base ceiling scaled down by system load:
// full capacity idle, half capacity saturated.
func GlobalCeiling(systemLoad float64) int {
	return int(float64(baseGlobalCeiling) * (1 - 0.5*systemLoad))
}

// ShouldRateLimit decides whether a request from identity may proceed.
// The global window and load signal are updated on every call, allowed
// or not; the client profile is left untouched.
func (l *Limiter) ShouldRateLimit(identity string) Decision {
	now := l.timeProvider()
	globalCount, load := l.observeGlobal(now)

	profile := l.registry.Get(identity)
	snap := profile.Snapshot()

	if profile.ShouldBlock() {
		return Decision{
			Limited: true,
			Reason:  ReasonClientBlocked,
			Details: map[string]interface{}{
				"trust_score": snap.Score,
				"strategy":    snap.Strategy.String(),
			},
		}
	}

	ceiling := GlobalCeiling(load)
	if globalCount >= ceiling {
		return Decision{
			Limited: true,
			Reason:  ReasonGlobalLimit,
			Details: map[string]interface{}{
				"global_requests": globalCount,
				"ceiling":         ceiling,
				"system_load":     load,
			},
		}
	}

	limits := trust.LimitsFor(snap.Strategy)
	windowed, burst := profile.RequestCounts(now, time.Duration(limits.WindowSeconds)*time.Second)
	if windowed >= limits.RequestsPerMinute || burst >= limits.BurstPer10s {
		return Decision{
			Limited: true,
			Reason:  ReasonClientLimit,
			Details: map[string]interface{}{
				"strategy":            snap.Strategy.String(),
				"requests_in_window":  windowed,
				"requests_per_minute": limits.RequestsPerMinute,
				"burst_in_10s":        burst,
				"burst_limit":         limits.BurstPer10s,
			},
		}
	}

	return Decision{Details: map[string]interface{}{
		"strategy":    snap.Strategy.String(),
		"trust_score": snap.Score,
	}}
}

// RecordRequest counts an admitted request against the client profile.
func (l *Limiter) RecordRequest(identity string) {
	l.registry.Get(identity).RecordRequest(l.timeProvider())
}

// RecordError notes a server-side failure attributed to the client.
func (l *Limiter) RecordError(identity string) {
	l.registry.Get(identity).RecordError(l.timeProvider())
}

// RecordSecurityViolation feeds a detected threat into the profile.
func (l *Limiter) RecordSecurityViolation(identity string, level threat.Level, violationType string) {
	l.registry.Get(identity).RecordViolation(level, l.timeProvider())
	if l.logger != nil {
		l.logger.WithFields(logrus.Fields{
			"client_id":      identity,
			"threat_level":   level.String(),
			"violation_type": violationType,
		}).Warn("security violation recorded")
	}
}

// ResetProfile discards accumulated state for one client.
func (l *Limiter) ResetProfile(identity string) bool {
	return l.registry.Reset(identity)
}

// SweepOldProfiles evicts profiles idle longer than maxAge.
func (l *Limiter) SweepOldProfiles(maxAge time.Duration) int {
	return l.registry.Sweep(maxAge)
}

// SystemLoad reports the most recently observed load signal.
func (l *Limiter) SystemLoad() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.systemLoad
}

// ActiveClients reports the number of tracked profiles.
func (l *Limiter) ActiveClients() int {
	return l.registry.Len()
}

// observeGlobal appends now to the process-wide window, prunes entries
// older than 60s and rederives the load signal. Returns the count of
// requests in the window before this one and the current load.
func (l *Limiter) observeGlobal(now time.Time) (int, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-globalWindow)
	keep := l.globalWindow[:0]
	for _, ts := range l.globalWindow {
		if !ts.Before(cutoff) {
			keep = append(keep, ts)
		}
	}
	count := len(keep)
	l.globalWindow = append(keep, now)

	load := float64(count) / loadDenominator
	if load > 1 {
		load = 1
	}
	l.systemLoad = load
	return count, load
}
