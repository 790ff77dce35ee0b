package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/analytics"
)

type ipAnalysisHandler struct {
	logger    *logrus.Logger
	analytics *analytics.Analytics
}

func NewIPAnalysisHandler(logger *logrus.Logger, analyticsSvc *analytics.Analytics) Handler {
	return &ipAnalysisHandler{
		logger:    logger,
		analytics: analyticsSvc,
	}
}

// Handle @Summary Per-client event drill-down
// @Description Returns event history and risk score for a single client identity
// @Tags Security
// @Param Authorization header string true "Authorization token"
// @Produce json
// @Param client_id path string true "Client identity"
// @Success 200 {object} analytics.IPAnalysis "Analysis"
// @Router /api/v1/security/ips/{client_id} [get]
func (s *ipAnalysisHandler) Handle(c *fiber.Ctx) error {
	clientID := c.Params("client_id")
	if clientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "client_id is required"})
	}
	analysis := s.analytics.AnalyzeClient(clientID)
	if analysis.TotalEvents == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no events recorded for client"})
	}
	return c.Status(fiber.StatusOK).JSON(analysis)
}
