package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/analytics"
	"github.com/wardgate/wardgate/pkg/escalation"
	"github.com/wardgate/wardgate/pkg/ratelimit"
)

type securityMetricsHandler struct {
	logger    *logrus.Logger
	policy    *escalation.Policy
	limiter   *ratelimit.Limiter
	analytics *analytics.Analytics
	sink      *analytics.Sink
}

func NewSecurityMetricsHandler(
	logger *logrus.Logger,
	policy *escalation.Policy,
	limiter *ratelimit.Limiter,
	analyticsSvc *analytics.Analytics,
	sink *analytics.Sink,
) Handler {
	return &securityMetricsHandler{
		logger:    logger,
		policy:    policy,
		limiter:   limiter,
		analytics: analyticsSvc,
		sink:      sink,
	}
}

// Handle @Summary Security metrics snapshot
// @Description Returns aggregate counters from the defense pipeline
// @Tags Security
// @Param Authorization header string true "Authorization token"
// @Produce json
// @Success 200 {object} map[string]interface{} "Metrics"
// @Router /api/v1/security/metrics [get]
func (s *securityMetricsHandler) Handle(c *fiber.Ctx) error {
	snapshot := s.policy.Snapshot()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"events_handled":       snapshot.EventsHandled,
		"blocked_requests":     snapshot.BlockedRequests,
		"rate_limited":         snapshot.RateLimited,
		"permanent_blocks":     snapshot.PermanentBlocks,
		"whitelisted_passed":   snapshot.WhitelistedPassed,
		"blocklist_size":       snapshot.BlocklistSize,
		"whitelist_size":       snapshot.WhitelistSize,
		"tracked_identities":   snapshot.TrackedIdentities,
		"active_clients":       s.limiter.ActiveClients(),
		"system_load":          s.limiter.SystemLoad(),
		"events_stored":        s.analytics.EventCount(),
		"analytics_faults":     s.analytics.Faults(),
		"audit_events_dropped": s.sink.Dropped(),
	})
}
