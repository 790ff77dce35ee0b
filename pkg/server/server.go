package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/wardgate/wardgate/pkg/config"
)

const (
	AdminHealthPath = "/__/health"

	bodyLimitBytes = 8 * 1024 * 1024
	maxConcurrency = 16384
)

// Server is the common behavior of the proxy and admin listeners.
type Server interface {
	Run() error
	Shutdown() error
}

type BaseServer struct {
	Config         *config.Config
	Logger         *logrus.Logger
	Router         *fiber.App
	metricsStarted bool
}

func NewBaseServer(config *config.Config, logger *logrus.Logger) *BaseServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReduceMemoryUsage:     true,
		Network:               fiber.NetworkTCP,
		EnablePrintRoutes:     false,
		BodyLimit:             bodyLimitBytes,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
		Concurrency:           maxConcurrency,
	})

	tuneListener(app)

	return &BaseServer{
		Config: config,
		Logger: logger,
		Router: app,
	}
}

// tuneListener drops the default response headers and caps per-IP
// connections; the gateway sits in front of untrusted traffic.
func tuneListener(app *fiber.App) {
	srv := app.Server()
	srv.MaxConnsPerIP = 1024
	srv.ReadBufferSize = 8192
	srv.WriteBufferSize = 8192
	srv.NoDefaultServerHeader = true
	srv.NoDefaultDate = true
	srv.NoDefaultContentType = true
}

func (s *BaseServer) setupHealthCheck() {
	s.Router.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	s.Router.Get(AdminHealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

// setupMetricsEndpoint serves /metrics from a dedicated listener so
// scrapes never compete with proxied traffic. Both servers may call
// this; only the first binds the port.
func (s *BaseServer) setupMetricsEndpoint() {
	if !s.Config.Metrics.Enabled {
		s.Logger.Info("prometheus metrics are disabled by configuration")
		return
	}
	if s.metricsStarted {
		return
	}
	s.metricsStarted = true

	metricsApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	metricsApp.Use(recover.New())

	metricsApp.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	go func() {
		addr := fmt.Sprintf(":%d", s.Config.Server.MetricsPort)
		if err := metricsApp.Listen(addr); err != nil {
			if !strings.Contains(err.Error(), "address already in use") {
				s.Logger.WithError(err).Error("Failed to start metrics server")
			}
		}
	}()
}
