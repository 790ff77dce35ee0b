package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Proxy
	ForwardedHandler Handler

	// System
	GetVersionHandler Handler

	// Security
	SecurityMetricsHandler Handler
	ThreatAnalysisHandler  Handler
	IPAnalysisHandler      Handler
	BlockIPHandler         Handler
	WhitelistIPHandler     Handler
	ResetClientHandler     Handler
	ExportEventsHandler    Handler
	CleanupHandler         Handler
}
