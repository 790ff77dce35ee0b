package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/escalation"
)

type whitelistIPRequest struct {
	Reason string `json:"reason"`
}

type whitelistIPHandler struct {
	logger *logrus.Logger
	policy *escalation.Policy
}

func NewWhitelistIPHandler(logger *logrus.Logger, policy *escalation.Policy) Handler {
	return &whitelistIPHandler{
		logger: logger,
		policy: policy,
	}
}

// Handle @Summary Whitelist a client identity
// @Description Adds a client identity to the whitelist and clears any standing block
// @Tags Security
// @Param Authorization header string true "Authorization token"
// @Accept json
// @Produce json
// @Param client_id path string true "Client identity"
// @Success 201 {object} map[string]interface{} "Whitelisted"
// @Router /api/v1/security/whitelist/{client_id} [post]
func (s *whitelistIPHandler) Handle(c *fiber.Ctx) error {
	clientID := c.Params("client_id")
	if clientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "client_id is required"})
	}
	var req whitelistIPRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual whitelist"
	}
	s.policy.WhitelistIdentity(clientID, reason)
	s.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"reason":    reason,
	}).Info("client added to whitelist")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"client_id":   clientID,
		"whitelisted": true,
	})
}
