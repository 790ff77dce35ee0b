package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/version"
)

type getVersionHandler struct {
	logger *logrus.Logger
}

func NewGetVersionHandler(logger *logrus.Logger) Handler {
	return &getVersionHandler{
		logger: logger,
	}
}

// Handle @Summary Get WardGate Version
// @Description Returns the current version of WardGate
// @Tags Version
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Version information"
// @Router /version [get]
func (h *getVersionHandler) Handle(c *fiber.Ctx) error {
	versionInfo := version.GetInfo()
	return c.Status(fiber.StatusOK).JSON(versionInfo)
}
