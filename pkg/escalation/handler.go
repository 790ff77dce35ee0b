package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/analytics"
	"github.com/wardgate/wardgate/pkg/threat"
)

// Action is the enforcement outcome chosen for a security event.
type Action string

const (
	ActionLog              Action = "log"
	ActionRateLimit        Action = "rate_limit"
	ActionBlock            Action = "block"
	ActionBlockPermanently Action = "block_permanently"
)

const retryAfterSeconds = "60"

var securityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"X-XSS-Protection":        "1; mode=block",
	"Referrer-Policy":         "strict-origin-when-cross-origin",
	"Content-Security-Policy": "default-src 'none'",
}

// RequestInfo is the slice of the inbound request the policy needs.
type RequestInfo struct {
	Method    string
	Path      string
	UserAgent string
}

// Response is a terminal decision handed back to the transport layer.
// StatusCode 200 means the request may continue to the real handler.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       map[string]interface{}
}

func (r *Response) Terminal() bool {
	return r.StatusCode != 0 && r.StatusCode != 200
}

// Store persists block and whitelist changes outside the process.
// Calls are fire-and-forget from the policy's point of view.
type Store interface {
	SaveBlock(ctx context.Context, identity, reason string) error
	RemoveBlock(ctx context.Context, identity string) error
	SaveWhitelist(ctx context.Context, identity, reason string) error
}

// Metrics is a point-in-time snapshot of the policy's counters.
type Metrics struct {
	EventsHandled     uint64 `json:"events_handled"`
	BlockedRequests   uint64 `json:"blocked_requests"`
	RateLimited       uint64 `json:"rate_limited"`
	PermanentBlocks   uint64 `json:"permanent_blocks"`
	WhitelistedPassed uint64 `json:"whitelisted_passed"`
	BlocklistSize     int    `json:"blocklist_size"`
	WhitelistSize     int    `json:"whitelist_size"`
	TrackedIdentities int    `json:"tracked_identities"`
}

type Opts struct {
	Store           Store
	Logger          *logrus.Logger
	SecurityHeaders bool
	TimeProvider    func() time.Time
	UUIDProvider    func() string
}

// Policy is the escalation authority. It keeps a coarse per-identity
// threat level that only ratchets upward, a permanent block set and a
// whitelist that always wins. All decisions are made under one lock;
// the state involved is small and the work is pure computation.
type Policy struct {
	mu             sync.Mutex
	ipThreatLevels map[string]threat.Level
	blocklist      map[string]string
	whitelist      map[string]string
	metrics        Metrics

	analytics *analytics.Analytics
	sink      *analytics.Sink
	store     Store

	logger          *logrus.Logger
	securityHeaders bool
	timeProvider    func() time.Time
	uuidProvider    func() string
}

func NewPolicy(events *analytics.Analytics, sink *analytics.Sink, opts *Opts) *Policy {
	p := &Policy{
		ipThreatLevels:  make(map[string]threat.Level),
		blocklist:       make(map[string]string),
		whitelist:       make(map[string]string),
		analytics:       events,
		sink:            sink,
		securityHeaders: true,
		timeProvider:    time.Now,
		uuidProvider:    uuid.NewString,
	}
	if opts != nil {
		p.store = opts.Store
		p.logger = opts.Logger
		p.securityHeaders = opts.SecurityHeaders
		if opts.TimeProvider != nil {
			p.timeProvider = opts.TimeProvider
		}
		if opts.UUIDProvider != nil {
			p.uuidProvider = opts.UUIDProvider
		}
	}
	return p
}

// RequestedActionFor maps a detection severity to the action the
// caller asks for before the escalation table is consulted.
func RequestedActionFor(level threat.Level) Action {
	switch level {
	case threat.Critical, threat.High:
		return ActionBlock
	case threat.Medium:
		return ActionRateLimit
	default:
		return ActionLog
	}
}

// Handle runs the escalation decision table for a detected threat and
// returns the terminal (or pass-through) response. Exactly one
// security event is emitted per call, whatever branch is taken.
func (p *Policy) Handle(match threat.Match, identity string, req RequestInfo) Response {
	requested := RequestedActionFor(match.Severity)

	p.mu.Lock()
	action := p.determineActionLocked(identity, requested)
	whitelisted := p.isWhitelistedLocked(identity)
	if !whitelisted {
		p.applyStrategyLocked(identity, match.Severity)
	}
	p.metrics.EventsHandled++
	switch action {
	case ActionBlock, ActionBlockPermanently:
		p.metrics.BlockedRequests++
	case ActionRateLimit:
		p.metrics.RateLimited++
	default:
		if whitelisted {
			p.metrics.WhitelistedPassed++
		}
	}
	p.mu.Unlock()

	details := SanitizeDetails(string(match.Category) + " pattern " + match.PatternID + ": " + match.Sample)
	p.emitEvent(analytics.Event{
		Type:        analytics.EventThreatDetected,
		ThreatLevel: match.Severity,
		ClientID:    identity,
		Path:        req.Path,
		Method:      req.Method,
		UserAgent:   req.UserAgent,
		Details:     details,
		ActionTaken: string(action),
	})

	if p.logger != nil {
		p.logger.WithFields(logrus.Fields{
			"client_id":    identity,
			"category":     string(match.Category),
			"threat_level": match.Severity.String(),
			"action":       string(action),
			"path":         req.Path,
		}).Warn("threat detected")
	}

	return p.buildResponse(action, match.Severity, details)
}

// Precheck answers whether an identity may even be scanned: a
// permanently blocked client is refused before any other work.
// Returns nil when the request may continue.
func (p *Policy) Precheck(identity string, req RequestInfo) *Response {
	p.mu.Lock()
	if p.isWhitelistedLocked(identity) {
		p.mu.Unlock()
		return nil
	}
	_, blocked := p.blocklist[identity]
	if blocked {
		p.metrics.EventsHandled++
		p.metrics.BlockedRequests++
	}
	p.mu.Unlock()
	if !blocked {
		return nil
	}

	p.emitEvent(analytics.Event{
		Type:        analytics.EventBlockedRequest,
		ThreatLevel: threat.Critical,
		ClientID:    identity,
		Path:        req.Path,
		Method:      req.Method,
		UserAgent:   req.UserAgent,
		Details:     "request from permanently blocked client",
		ActionTaken: string(ActionBlockPermanently),
	})
	resp := p.buildResponse(ActionBlockPermanently, threat.Critical, "access denied")
	return &resp
}

// BlockIdentity is the administrative override that permanently blocks
// a client.
func (p *Policy) BlockIdentity(identity, reason string) {
	p.mu.Lock()
	p.blocklist[identity] = reason
	p.ipThreatLevels[identity] = threat.Critical
	p.metrics.PermanentBlocks++
	p.mu.Unlock()

	p.persist(func(ctx context.Context, s Store) error {
		return s.SaveBlock(ctx, identity, reason)
	})
	p.emitAdminEvent(identity, "blocked: "+reason, ActionBlockPermanently)
}

// WhitelistIdentity exempts a client from enforcement and clears any
// standing block.
func (p *Policy) WhitelistIdentity(identity, reason string) {
	p.mu.Lock()
	p.whitelist[identity] = reason
	delete(p.blocklist, identity)
	delete(p.ipThreatLevels, identity)
	p.mu.Unlock()

	p.persist(func(ctx context.Context, s Store) error {
		if err := s.RemoveBlock(ctx, identity); err != nil {
			return err
		}
		return s.SaveWhitelist(ctx, identity, reason)
	})
	p.emitAdminEvent(identity, "whitelisted: "+reason, ActionLog)
}

// Restore seeds standing decisions loaded from the external store,
// typically once at startup. Whitelist wins on conflicting entries.
func (p *Policy) Restore(blocked, whitelisted map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, reason := range blocked {
		p.blocklist[id] = reason
		p.ipThreatLevels[id] = threat.Critical
	}
	for id, reason := range whitelisted {
		p.whitelist[id] = reason
		delete(p.blocklist, id)
		delete(p.ipThreatLevels, id)
	}
}

func (p *Policy) IsBlocked(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.blocklist[identity]
	return ok
}

func (p *Policy) IsWhitelisted(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isWhitelistedLocked(identity)
}

// ThreatLevelFor reports the escalation level recorded for an identity,
// defaulting to Low when unseen.
func (p *Policy) ThreatLevelFor(identity string) threat.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ipThreatLevels[identity]
}

func (p *Policy) Snapshot() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.metrics
	m.BlocklistSize = len(p.blocklist)
	m.WhitelistSize = len(p.whitelist)
	m.TrackedIdentities = len(p.ipThreatLevels)
	return m
}

func (p *Policy) isWhitelistedLocked(identity string) bool {
	_, ok := p.whitelist[identity]
	return ok
}

// determineActionLocked walks the decision table in order; the first
// branch that applies wins.
func (p *Policy) determineActionLocked(identity string, requested Action) Action {
	if p.isWhitelistedLocked(identity) {
		return ActionLog
	}
	if _, ok := p.blocklist[identity]; ok {
		return ActionBlockPermanently
	}
	switch p.ipThreatLevels[identity] {
	case threat.Critical:
		return ActionBlockPermanently
	case threat.High:
		return ActionBlock
	case threat.Medium:
		return ActionRateLimit
	default:
		return requested
	}
}

// applyStrategyLocked ratchets the recorded level for the identity in
// line with the severity of the event just handled. Levels never move
// down here.
func (p *Policy) applyStrategyLocked(identity string, severity threat.Level) {
	switch severity {
	case threat.Critical:
		p.blocklist[identity] = "critical threat detected"
		p.setLevelLocked(identity, threat.Critical)
		p.metrics.PermanentBlocks++
	case threat.High:
		p.setLevelLocked(identity, threat.High)
	case threat.Medium:
		p.setLevelLocked(identity, threat.Medium)
	}
}

func (p *Policy) setLevelLocked(identity string, level threat.Level) {
	if current, ok := p.ipThreatLevels[identity]; !ok || level > current {
		p.ipThreatLevels[identity] = level
	}
}

func (p *Policy) buildResponse(action Action, level threat.Level, details string) Response {
	headers := make(map[string]string)
	if p.securityHeaders {
		for k, v := range securityHeaders {
			headers[k] = v
		}
	}

	resp := Response{Headers: headers}
	switch action {
	case ActionBlock, ActionBlockPermanently:
		resp.StatusCode = 403
		headers["X-Security-Event"] = "request-blocked"
		resp.Body = map[string]interface{}{
			"error":        "forbidden",
			"message":      "request blocked by security policy",
			"threat_level": level.String(),
			"action_taken": string(action),
			"request_id":   p.uuidProvider(),
			"details":      details,
		}
	case ActionRateLimit:
		resp.StatusCode = 429
		headers["X-Security-Event"] = "rate-limited"
		headers["Retry-After"] = retryAfterSeconds
		resp.Body = map[string]interface{}{
			"error":        "too_many_requests",
			"message":      "request rate reduced by security policy",
			"threat_level": level.String(),
			"action_taken": string(action),
			"request_id":   p.uuidProvider(),
		}
	default:
		resp.StatusCode = 200
	}
	return resp
}

func (p *Policy) emitEvent(event analytics.Event) {
	event.ID = p.uuidProvider()
	event.Timestamp = p.timeProvider()
	if p.analytics != nil {
		p.analytics.LogEvent(event)
	}
	if p.sink != nil {
		p.sink.Publish(event)
	}
}

func (p *Policy) emitAdminEvent(identity, details string, action Action) {
	p.emitEvent(analytics.Event{
		Type:        analytics.EventAdminAction,
		ThreatLevel: threat.Low,
		ClientID:    identity,
		Details:     details,
		ActionTaken: string(action),
	})
}

// persist pushes a state change to the external store without holding
// up the caller. Failures are logged and dropped; the in-memory state
// is authoritative.
func (p *Policy) persist(fn func(ctx context.Context, s Store) error) {
	if p.store == nil {
		return
	}
	store := p.store
	logger := p.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := fn(ctx, store); err != nil && logger != nil {
			logger.WithError(err).Warn("failed to persist security state")
		}
	}()
}
