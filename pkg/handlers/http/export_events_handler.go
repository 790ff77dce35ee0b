package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/analytics"
)

type exportEventsHandler struct {
	logger    *logrus.Logger
	analytics *analytics.Analytics
}

func NewExportEventsHandler(logger *logrus.Logger, analyticsSvc *analytics.Analytics) Handler {
	return &exportEventsHandler{
		logger:    logger,
		analytics: analyticsSvc,
	}
}

// Handle @Summary Export recorded security events
// @Description Streams recorded events in JSON or CSV form
// @Tags Security
// @Param Authorization header string true "Authorization token"
// @Produce json
// @Param hours query int false "Export window in hours (default 24)"
// @Param format query string false "Export format, json or csv (default json)"
// @Success 200 {string} string "Serialized events"
// @Router /api/v1/security/events/export [get]
func (s *exportEventsHandler) Handle(c *fiber.Ctx) error {
	hours := c.QueryInt("hours", defaultAnalysisHours)
	if hours <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "hours must be positive"})
	}
	format := c.Query("format", "json")
	data, err := s.analytics.Export(hours, format)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	filename := fmt.Sprintf("security-events-%s.%s", time.Now().UTC().Format("20060102T150405Z"), format)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	if format == "csv" {
		c.Set(fiber.HeaderContentType, "text/csv")
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return c.Status(fiber.StatusOK).Send(data)
}
