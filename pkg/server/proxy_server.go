package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/config"
	handlers "github.com/wardgate/wardgate/pkg/handlers/http"
	"github.com/wardgate/wardgate/pkg/infra/prometheus"
	"github.com/wardgate/wardgate/pkg/middleware"
)

type (
	ProxyServerDI struct {
		Config              *config.Config
		Logger              *logrus.Logger
		MiddlewareTransport middleware.Transport
		HandlerTransport    handlers.HandlerTransport
	}
	ProxyServer struct {
		*BaseServer
		middlewareTransport middleware.Transport
		handlerTransport    handlers.HandlerTransport
	}
)

const (
	HealthPath = "/health"
	PingPath   = "/__/ping"
)

func NewProxyServer(di ProxyServerDI) *ProxyServer {
	if di.Config.Metrics.Enabled {
		prometheus.Initialize()
	}

	s := &ProxyServer{
		BaseServer:          NewBaseServer(di.Config, di.Logger),
		middlewareTransport: di.MiddlewareTransport,
		handlerTransport:    di.HandlerTransport,
	}

	s.BaseServer.setupMetricsEndpoint()
	return s
}

func (s *ProxyServer) Run() error {

	s.Router.Get(HealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	s.Router.Get(PingPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"message": "pong",
		})
	})

	// Register the defense chain for all non-system routes
	s.Router.Use(
		s.middlewareTransport.PanicRecoverMiddleware.Middleware(),
		s.middlewareTransport.SecurityHeadersMiddleware.Middleware(),
		s.middlewareTransport.DefenseMiddleware.Middleware(),
		s.handlerTransport.ForwardedHandler.Handle,
	)

	s.Logger.WithField("addr", s.Config.Server.ProxyPort).Info("Starting proxy server")
	return s.Router.Listen(fmt.Sprintf(":%d", s.Config.Server.ProxyPort))
}

func (s *ProxyServer) Shutdown() error {
	return s.Router.Shutdown()
}
