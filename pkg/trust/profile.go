package trust

import (
	"sync"
	"time"

	"github.com/wardgate/wardgate/pkg/threat"
)

const (
	requestWindowCap   = 100
	errorWindowCap     = 50
	violationWindowCap = 20

	scoreWindow = 60 * time.Second
)

// Strategy is the rate-limit tier derived from a profile's trust score.
type Strategy int

const (
	Blocked Strategy = iota
	Aggressive
	Restrictive
	Standard
	Permissive
)

func (s Strategy) String() string {
	switch s {
	case Permissive:
		return "permissive"
	case Standard:
		return "standard"
	case Restrictive:
		return "restrictive"
	case Aggressive:
		return "aggressive"
	default:
		return "blocked"
	}
}

// Limits are the per-strategy throttling thresholds. The table is
// shared and immutable; profiles only carry the strategy key.
type Limits struct {
	RequestsPerMinute int
	BurstPer10s       int
	WindowSeconds     int
}

var strategyLimits = map[Strategy]Limits{
	Permissive:  {RequestsPerMinute: 300, BurstPer10s: 50, WindowSeconds: 60},
	Standard:    {RequestsPerMinute: 120, BurstPer10s: 20, WindowSeconds: 60},
	Restrictive: {RequestsPerMinute: 30, BurstPer10s: 5, WindowSeconds: 60},
	Aggressive:  {RequestsPerMinute: 10, BurstPer10s: 2, WindowSeconds: 60},
	Blocked:     {RequestsPerMinute: 0, BurstPer10s: 0, WindowSeconds: 60},
}

// LimitsFor returns the threshold row for a strategy.
func LimitsFor(s Strategy) Limits {
	return strategyLimits[s]
}

var threatPenalty = map[threat.Level]float64{
	threat.Low:      0,
	threat.Medium:   10,
	threat.High:     30,
	threat.Critical: 60,
}

// StrategyForScore maps a trust score onto its tier band.
func StrategyForScore(score float64) Strategy {
	switch {
	case score >= 80:
		return Permissive
	case score >= 60:
		return Standard
	case score >= 40:
		return Restrictive
	case score >= 20:
		return Aggressive
	default:
		return Blocked
	}
}

// Profile is the per-client behavioral record: bounded windows of
// request/error/violation timestamps and a trust score recomputed on
// every mutation. All methods are safe for concurrent use; score and
// strategy are always updated under the same lock so readers never see
// them disagree.
type Profile struct {
	mu sync.Mutex

	requests   []time.Time
	errors     []time.Time
	violations []time.Time

	worstThreat threat.Level
	sawThreat   bool

	score       float64
	strategy    Strategy
	lastUpdated time.Time
}

// Snapshot is a consistent read of a profile's derived state.
type Snapshot struct {
	Score          float64
	Strategy       Strategy
	WorstThreat    threat.Level
	RequestCount   int
	ErrorCount     int
	ViolationCount int
	LastUpdated    time.Time
}

func newProfile(now time.Time) *Profile {
	return &Profile{
		score:       100,
		strategy:    Standard,
		lastUpdated: now,
	}
}

func (p *Profile) RecordRequest(ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = appendBounded(p.requests, ts, requestWindowCap)
	p.recompute(ts)
}

func (p *Profile) RecordError(ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = appendBounded(p.errors, ts, errorWindowCap)
	p.recompute(ts)
}

// RecordViolation notes a detected threat. The worst level seen is
// monotonic: a later Low violation never lowers a Critical record.
func (p *Profile) RecordViolation(level threat.Level, ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violations = appendBounded(p.violations, ts, violationWindowCap)
	if !p.sawThreat || level > p.worstThreat {
		p.worstThreat = level
		p.sawThreat = true
	}
	p.recompute(ts)
}

func (p *Profile) ShouldBlock() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strategy == Blocked || p.score <= 0
}

func (p *Profile) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Score:          p.score,
		Strategy:       p.strategy,
		WorstThreat:    p.worstThreat,
		RequestCount:   len(p.requests),
		ErrorCount:     len(p.errors),
		ViolationCount: len(p.violations),
		LastUpdated:    p.lastUpdated,
	}
}

// RequestCounts reports how many recorded requests fall inside the
// strategy window and the 10-second burst window ending at now.
func (p *Profile) RequestCounts(now time.Time, window time.Duration) (windowed, burst int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	burstStart := now.Add(-10 * time.Second)
	windowStart := now.Add(-window)
	for _, ts := range p.requests {
		if !ts.Before(windowStart) {
			windowed++
		}
		if !ts.Before(burstStart) {
			burst++
		}
	}
	return windowed, burst
}

// recompute rederives score and strategy from the windows. Callers must
// hold p.mu.
func (p *Profile) recompute(now time.Time) {
	cutoff := now.Add(-scoreWindow)
	recentRequests := countSince(p.requests, cutoff)
	recentErrors := countSince(p.errors, cutoff)
	recentViolations := countSince(p.violations, cutoff)

	score := 100.0
	if recentRequests > 100 {
		score -= float64(recentRequests-100) * 0.5
	}
	if recentErrors > 10 {
		score -= float64(recentErrors) * 2
	}
	if recentViolations > 0 {
		score -= float64(recentViolations) * 20
	}
	if p.sawThreat {
		score -= threatPenalty[p.worstThreat]
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	p.score = score
	p.strategy = StrategyForScore(score)
	p.lastUpdated = now
}

func appendBounded(window []time.Time, ts time.Time, capacity int) []time.Time {
	if len(window) >= capacity {
		copy(window, window[len(window)-capacity+1:])
		window = window[:capacity-1]
	}
	return append(window, ts)
}

func countSince(window []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range window {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}
