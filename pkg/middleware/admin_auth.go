package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/infra/jwt"
)

const bearerPrefix = "Bearer "

type adminAuthMiddleware struct {
	logger     *logrus.Logger
	jwtManager jwt.Manager
}

// NewAdminAuthMiddleware guards the management API with bearer tokens
// minted by the same process (see jwt.Manager).
func NewAdminAuthMiddleware(
	logger *logrus.Logger,
	jwtManager jwt.Manager,
) Middleware {
	return &adminAuthMiddleware{
		logger:     logger,
		jwtManager: jwtManager,
	}
}

func (m *adminAuthMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return m.reject(ctx, "no authorization header provided", "Authorization required")
		}
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			return m.reject(ctx, "invalid authorization header format", "Invalid authorization format")
		}

		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
		if tokenString == "" {
			return m.reject(ctx, "empty token provided", "Empty token provided")
		}

		if err := m.jwtManager.ValidateToken(tokenString); err != nil {
			m.logger.WithError(err).WithField("ip", ctx.IP()).Debug("invalid token")
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		return ctx.Next()
	}
}

func (m *adminAuthMiddleware) reject(ctx *fiber.Ctx, logMsg, clientMsg string) error {
	m.logger.WithField("ip", ctx.IP()).Debug(logMsg)
	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": clientMsg})
}
