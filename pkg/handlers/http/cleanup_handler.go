package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/analytics"
	"github.com/wardgate/wardgate/pkg/ratelimit"
)

type cleanupHandler struct {
	logger        *logrus.Logger
	limiter       *ratelimit.Limiter
	analytics     *analytics.Analytics
	profileMaxAge time.Duration
}

func NewCleanupHandler(
	logger *logrus.Logger,
	limiter *ratelimit.Limiter,
	analyticsSvc *analytics.Analytics,
	profileMaxAge time.Duration,
) Handler {
	return &cleanupHandler{
		logger:        logger,
		limiter:       limiter,
		analytics:     analyticsSvc,
		profileMaxAge: profileMaxAge,
	}
}

// Handle @Summary Evict stale state
// @Description Sweeps idle trust profiles and expired analytics events
// @Tags Security
// @Param Authorization header string true "Authorization token"
// @Produce json
// @Success 200 {object} map[string]interface{} "Eviction counts"
// @Router /api/v1/security/cleanup [post]
func (s *cleanupHandler) Handle(c *fiber.Ctx) error {
	profiles := s.limiter.SweepOldProfiles(s.profileMaxAge)
	events := s.analytics.Cleanup()
	s.logger.WithFields(logrus.Fields{
		"profiles_evicted": profiles,
		"events_evicted":   events,
	}).Info("cleanup completed")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"profiles_evicted": profiles,
		"events_evicted":   events,
	})
}
