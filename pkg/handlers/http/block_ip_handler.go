package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/escalation"
)

type blockIPRequest struct {
	Reason string `json:"reason"`
}

type blockIPHandler struct {
	logger *logrus.Logger
	policy *escalation.Policy
}

func NewBlockIPHandler(logger *logrus.Logger, policy *escalation.Policy) Handler {
	return &blockIPHandler{
		logger: logger,
		policy: policy,
	}
}

// Handle @Summary Block a client identity
// @Description Adds a client identity to the permanent blocklist
// @Tags Security
// @Param Authorization header string true "Authorization token"
// @Accept json
// @Produce json
// @Param client_id path string true "Client identity"
// @Success 201 {object} map[string]interface{} "Blocked"
// @Router /api/v1/security/blocklist/{client_id} [post]
func (s *blockIPHandler) Handle(c *fiber.Ctx) error {
	clientID := c.Params("client_id")
	if clientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "client_id is required"})
	}
	var req blockIPRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual block"
	}
	s.policy.BlockIdentity(clientID, reason)
	s.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"reason":    reason,
	}).Info("client added to blocklist")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"client_id": clientID,
		"blocked":   true,
	})
}
