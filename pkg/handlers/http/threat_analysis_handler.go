package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/analytics"
)

const defaultAnalysisHours = 24

type threatAnalysisHandler struct {
	logger    *logrus.Logger
	analytics *analytics.Analytics
}

func NewThreatAnalysisHandler(logger *logrus.Logger, analyticsSvc *analytics.Analytics) Handler {
	return &threatAnalysisHandler{
		logger:    logger,
		analytics: analyticsSvc,
	}
}

// Handle @Summary Analyze recorded security events
// @Description Returns a windowed threat analysis with risk score and anomalies
// @Tags Security
// @Param Authorization header string true "Authorization token"
// @Produce json
// @Param hours query int false "Analysis window in hours (default 24)"
// @Success 200 {object} analytics.ThreatAnalysis "Analysis"
// @Router /api/v1/security/threats [get]
func (s *threatAnalysisHandler) Handle(c *fiber.Ctx) error {
	hours := c.QueryInt("hours", defaultAnalysisHours)
	if hours <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "hours must be positive"})
	}
	analysis := s.analytics.AnalyzeThreats(hours)
	s.logger.WithFields(logrus.Fields{
		"hours":      hours,
		"events":     analysis.TotalEvents,
		"risk_score": analysis.RiskScore,
	}).Debug("threat analysis computed")
	return c.Status(fiber.StatusOK).JSON(analysis)
}
