package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// hopHeaders are connection-scoped and must not be forwarded upstream.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type forwardedHandler struct {
	logger      *logrus.Logger
	client      *fasthttp.Client
	upstreamURL string
}

func NewForwardedHandler(logger *logrus.Logger, upstreamURL string) Handler {
	client := &fasthttp.Client{
		ReadTimeout:                   60 * time.Second,
		WriteTimeout:                  60 * time.Second,
		MaxConnsPerHost:               16384,
		MaxIdleConnDuration:           120 * time.Second,
		ReadBufferSize:                32768,
		WriteBufferSize:               32768,
		NoDefaultUserAgentHeader:      true,
		DisableHeaderNamesNormalizing: true,
		DisablePathNormalizing:        true,
	}

	return &forwardedHandler{
		logger:      logger,
		client:      client,
		upstreamURL: strings.TrimSuffix(upstreamURL, "/"),
	}
}

func (s *forwardedHandler) Handle(c *fiber.Ctx) error {
	targetURL := s.upstreamURL + c.Path()
	if qs := string(c.Request().URI().QueryString()); qs != "" {
		targetURL += "?" + qs
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	c.Request().Header.CopyTo(&req.Header)
	req.SetRequestURI(targetURL)
	req.Header.SetMethod(c.Method())
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	req.Header.Set("X-Forwarded-For", c.IP())
	if len(c.Body()) > 0 {
		req.SetBodyRaw(c.Body())
	}

	s.logger.Debug("forwarding request to " + targetURL)

	if err := s.client.DoRedirects(req, resp, 3); err != nil {
		s.logger.WithError(err).WithField("target", targetURL).Error("upstream request failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream unavailable"})
	}

	status := resp.StatusCode()
	if status <= 0 || status >= 600 {
		s.logger.WithField("status", status).Error("invalid upstream status code")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "invalid upstream response"})
	}

	resp.Header.VisitAll(func(key, value []byte) {
		c.Response().Header.SetBytesKV(key, value)
	})
	for _, h := range hopHeaders {
		c.Response().Header.Del(h)
	}
	return c.Status(status).Send(resp.Body())
}
