package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/ratelimit"
)

type resetClientHandler struct {
	logger  *logrus.Logger
	limiter *ratelimit.Limiter
}

func NewResetClientHandler(logger *logrus.Logger, limiter *ratelimit.Limiter) Handler {
	return &resetClientHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Reset a client trust profile
// @Description Discards the recorded history for a client so it starts fresh
// @Tags Security
// @Param Authorization header string true "Authorization token"
// @Produce json
// @Param client_id path string true "Client identity"
// @Success 200 {object} map[string]interface{} "Reset"
// @Failure 404 {object} map[string]interface{} "Unknown client"
// @Router /api/v1/security/clients/{client_id} [delete]
func (s *resetClientHandler) Handle(c *fiber.Ctx) error {
	clientID := c.Params("client_id")
	if clientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "client_id is required"})
	}
	if !s.limiter.ResetProfile(clientID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown client"})
	}
	s.logger.WithField("client_id", clientID).Info("client profile reset")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"client_id": clientID,
		"reset":     true,
	})
}
