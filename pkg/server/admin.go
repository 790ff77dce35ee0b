package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/config"
	handlers "github.com/wardgate/wardgate/pkg/handlers/http"
	"github.com/wardgate/wardgate/pkg/middleware"
)

type (
	AdminServerDI struct {
		MiddlewareTransport middleware.Transport
		HandlerTransport    handlers.HandlerTransport
		Config              *config.Config
		Logger              *logrus.Logger
	}
	AdminServer struct {
		*BaseServer
		middlewareTransport middleware.Transport
		handlerTransport    handlers.HandlerTransport
	}
)

func NewAdminServer(di AdminServerDI) *AdminServer {
	return &AdminServer{
		BaseServer:          NewBaseServer(di.Config, di.Logger),
		middlewareTransport: di.MiddlewareTransport,
		handlerTransport:    di.HandlerTransport,
	}
}

func (s *AdminServer) Run() error {
	// Set up routes
	s.setupRoutes()
	s.setupHealthCheck()
	// Start the server
	addr := fmt.Sprintf(":%d", s.Config.Server.AdminPort)
	s.Logger.WithField("addr", addr).Info("Starting admin server")
	return s.Router.Listen(addr)
}

func (s *AdminServer) setupRoutes() {
	baseRouter := s.Router.Group("")
	s.addRoutes(baseRouter)
}

func (s *AdminServer) addRoutes(router fiber.Router) {
	router.Get("/version", s.handlerTransport.GetVersionHandler.Handle)

	v1 := router.Group("/api/v1")
	{
		v1.Use(
			s.middlewareTransport.PanicRecoverMiddleware.Middleware(),
			s.middlewareTransport.AdminAuthMiddleware.Middleware(),
		)

		security := v1.Group("/security")
		{
			security.Get("/metrics", s.handlerTransport.SecurityMetricsHandler.Handle)
			security.Get("/threats", s.handlerTransport.ThreatAnalysisHandler.Handle)
			security.Get("/ips/:client_id", s.handlerTransport.IPAnalysisHandler.Handle)
			security.Get("/events/export", s.handlerTransport.ExportEventsHandler.Handle)
			security.Post("/cleanup", s.handlerTransport.CleanupHandler.Handle)

			// Blocklist and whitelist management
			security.Post("/blocklist/:client_id", s.handlerTransport.BlockIPHandler.Handle)
			security.Post("/whitelist/:client_id", s.handlerTransport.WhitelistIPHandler.Handle)

			// Trust profile management
			security.Delete("/clients/:client_id", s.handlerTransport.ResetClientHandler.Handle)
		}
	}
}

func (s *AdminServer) Shutdown() error {
	return s.Router.Shutdown()
}
