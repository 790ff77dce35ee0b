package middleware

import "github.com/gofiber/fiber/v2"

type Middleware interface {
	Middleware() fiber.Handler
}

type Transport struct {
	PanicRecoverMiddleware    Middleware
	SecurityHeadersMiddleware Middleware
	DefenseMiddleware         Middleware
	AdminAuthMiddleware       Middleware
}
