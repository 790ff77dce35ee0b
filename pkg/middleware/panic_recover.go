package middleware

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type panicRecoverMiddleware struct {
	logger *logrus.Logger
}

// NewPanicRecoverMiddleware converts handler panics into 500 responses
// so a single poisoned request cannot take the listener down.
func NewPanicRecoverMiddleware(logger *logrus.Logger) Middleware {
	return &panicRecoverMiddleware{logger: logger}
}

func (m *panicRecoverMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				m.logger.WithFields(logrus.Fields{
					"error":  r,
					"method": c.Method(),
					"path":   c.Path(),
					"stack":  string(debug.Stack()),
				}).Error("HTTP server panic recovered")

				if c.Response().Header.StatusCode() == 0 {
					_ = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
						"error": "internal server error",
					})
				}
			}
		}()

		return c.Next()
	}
}
