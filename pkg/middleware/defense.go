package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/analytics"
	"github.com/wardgate/wardgate/pkg/config"
	"github.com/wardgate/wardgate/pkg/escalation"
	"github.com/wardgate/wardgate/pkg/infra/fingerprint"
	"github.com/wardgate/wardgate/pkg/infra/prometheus"
	"github.com/wardgate/wardgate/pkg/ratelimit"
	"github.com/wardgate/wardgate/pkg/threat"
)

// Extensions that only ever show up in vulnerability scans against an
// API; requests for them are answered 404 without further inspection.
var dangerousExtensions = []string{
	".php", ".asp", ".aspx", ".jsp", ".cgi", ".pl", ".sh", ".bat",
	".exe", ".dll", ".env", ".ini", ".bak", ".sql", ".git",
}

type defenseMiddleware struct {
	cfg        config.SecurityConfig
	classifier *threat.Classifier
	limiter    *ratelimit.Limiter
	policy     *escalation.Policy
	events     *analytics.Analytics
	logger     *logrus.Logger
}

// NewDefenseMiddleware assembles the per-request pipeline: identity,
// standing-block precheck, rate limiting, then content classification.
// Each stage is gated by its config flag before any state is touched.
func NewDefenseMiddleware(
	cfg config.SecurityConfig,
	classifier *threat.Classifier,
	limiter *ratelimit.Limiter,
	policy *escalation.Policy,
	events *analytics.Analytics,
	logger *logrus.Logger,
) Middleware {
	return &defenseMiddleware{
		cfg:        cfg,
		classifier: classifier,
		limiter:    limiter,
		policy:     policy,
		events:     events,
		logger:     logger,
	}
}

func (m *defenseMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if m.cfg.DevelopmentBypass || m.isExcluded(path) {
			return c.Next()
		}

		identity := fingerprint.FromRequest(c).ID()
		req := escalation.RequestInfo{
			Method:    c.Method(),
			Path:      path,
			UserAgent: c.Get("User-Agent"),
		}

		if resp := m.policy.Precheck(identity, req); resp != nil {
			prometheus.RequestsBlocked.WithLabelValues(string(escalation.ActionBlockPermanently)).Inc()
			prometheus.RequestsTotal.WithLabelValues(req.Method, "blocked").Inc()
			return writeResponse(c, *resp)
		}

		if m.hasDangerousExtension(path) {
			m.events.LogEvent(analytics.Event{
				Type:        analytics.EventSuspiciousActivity,
				ThreatLevel: threat.Low,
				ClientID:    identity,
				Path:        path,
				Method:      req.Method,
				UserAgent:   req.UserAgent,
				Details:     "request for blocked file extension",
				ActionTaken: string(escalation.ActionLog),
			})
			prometheus.RequestsTotal.WithLabelValues(req.Method, "not_found").Inc()
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}

		// A whitelisted client never receives a blocking decision, no
		// matter how far its trust profile has decayed.
		whitelisted := m.policy.IsWhitelisted(identity)

		if m.cfg.RateLimitingEnabled && m.cfg.AdaptiveRateLimitingEnabled && !whitelisted {
			if resp := m.enforceRateLimit(c, identity, req); resp != nil {
				return writeResponse(c, *resp)
			}
		}

		if m.cfg.ThreatDetectionEnabled {
			if match, found := m.classify(c, path); found {
				if !whitelisted {
					m.limiter.RecordSecurityViolation(identity, match.Severity, string(match.Category))
				}
				prometheus.ThreatsDetected.WithLabelValues(string(match.Category), match.Severity.String()).Inc()

				resp := m.policy.Handle(match, identity, req)
				if resp.Terminal() {
					prometheus.RequestsBlocked.WithLabelValues(resp.Headers["X-Security-Event"]).Inc()
					prometheus.RequestsTotal.WithLabelValues(req.Method, "blocked").Inc()
					return writeResponse(c, resp)
				}
			}
		}

		m.limiter.RecordRequest(identity)
		prometheus.RequestsTotal.WithLabelValues(req.Method, "allowed").Inc()
		prometheus.ActiveClients.Set(float64(m.limiter.ActiveClients()))
		prometheus.SystemLoad.Set(m.limiter.SystemLoad())

		err := c.Next()

		if err != nil || c.Response().StatusCode() >= fiber.StatusInternalServerError {
			m.limiter.RecordError(identity)
		}
		return err
	}
}

func (m *defenseMiddleware) enforceRateLimit(c *fiber.Ctx, identity string, req escalation.RequestInfo) *escalation.Response {
	decision := m.limiter.ShouldRateLimit(identity)
	if !decision.Limited {
		return nil
	}

	prometheus.RequestsRateLimited.WithLabelValues(decision.Reason).Inc()
	prometheus.RequestsTotal.WithLabelValues(req.Method, "rate_limited").Inc()

	eventType := analytics.EventRateLimitExceeded
	level := threat.Low
	action := escalation.ActionRateLimit
	status := fiber.StatusTooManyRequests
	if decision.Reason == ratelimit.ReasonClientBlocked {
		eventType = analytics.EventBlockedRequest
		level = threat.High
		action = escalation.ActionBlock
		status = fiber.StatusForbidden
	}
	m.events.LogEvent(analytics.Event{
		Type:        eventType,
		ThreatLevel: level,
		ClientID:    identity,
		Path:        req.Path,
		Method:      req.Method,
		UserAgent:   req.UserAgent,
		Details:     decision.Reason,
		ActionTaken: string(action),
	})

	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{
			"client_id": identity,
			"reason":    decision.Reason,
			"path":      req.Path,
		}).Warn("request rate limited")
	}

	resp := escalation.Response{
		StatusCode: status,
		Headers:    map[string]string{},
		Body: fiber.Map{
			"error":   "too_many_requests",
			"message": decision.Reason,
		},
	}
	if status == fiber.StatusTooManyRequests {
		resp.Headers["Retry-After"] = "60"
	} else {
		resp.Body = fiber.Map{
			"error":   "forbidden",
			"message": decision.Reason,
		}
	}
	return &resp
}

// classify runs path, query, header and body scans in escalating cost
// order and returns the most severe finding.
func (m *defenseMiddleware) classify(c *fiber.Ctx, path string) (threat.Match, bool) {
	var matches []threat.Match

	target := path
	if q := string(c.Request().URI().QueryString()); q != "" {
		target += "?" + q
	}
	matches = append(matches, m.classifier.Scan(target)...)

	headers := make(map[string][]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		name := string(key)
		headers[name] = append(headers[name], string(value))
	})
	matches = append(matches, m.classifier.ScanHeaders(headers)...)

	if body := c.Body(); len(body) > 0 {
		matches = append(matches, m.classifier.ScanBody(body, m.isRelaxed(path))...)
	}

	if len(matches) == 0 {
		return threat.Match{}, false
	}
	worst := matches[0]
	for _, match := range matches[1:] {
		if match.Severity > worst.Severity {
			worst = match
		}
	}
	return worst, true
}

func (m *defenseMiddleware) isExcluded(path string) bool {
	for _, p := range m.cfg.ExcludedPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func (m *defenseMiddleware) isRelaxed(path string) bool {
	for _, p := range m.cfg.RelaxedPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func (m *defenseMiddleware) hasDangerousExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range dangerousExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func writeResponse(c *fiber.Ctx, resp escalation.Response) error {
	for k, v := range resp.Headers {
		c.Set(k, v)
	}
	if resp.Body == nil {
		return c.SendStatus(resp.StatusCode)
	}
	return c.Status(resp.StatusCode).JSON(resp.Body)
}
