package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardgate/wardgate/pkg/analytics"
	"github.com/wardgate/wardgate/pkg/escalation"
	"github.com/wardgate/wardgate/pkg/ratelimit"
	"github.com/wardgate/wardgate/pkg/threat"
	"github.com/wardgate/wardgate/pkg/trust"
)

type adminFixture struct {
	app     *fiber.App
	events  *analytics.Analytics
	sink    *analytics.Sink
	limiter *ratelimit.Limiter
	policy  *escalation.Policy
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	events := analytics.New(&analytics.Opts{Logger: logger})
	sink := analytics.NewSink(&analytics.SinkOpts{Logger: logger})
	t.Cleanup(sink.Close)
	registry := trust.NewRegistry(nil)
	limiter := ratelimit.NewLimiter(registry, logger, nil)
	policy := escalation.NewPolicy(events, sink, &escalation.Opts{
		Logger:          logger,
		SecurityHeaders: true,
	})

	app := fiber.New()
	security := app.Group("/api/v1/security")
	security.Get("/metrics", NewSecurityMetricsHandler(logger, policy, limiter, events, sink).Handle)
	security.Get("/threats", NewThreatAnalysisHandler(logger, events).Handle)
	security.Get("/ips/:client_id", NewIPAnalysisHandler(logger, events).Handle)
	security.Get("/events/export", NewExportEventsHandler(logger, events).Handle)
	security.Post("/cleanup", NewCleanupHandler(logger, limiter, events, 0).Handle)
	security.Post("/blocklist/:client_id", NewBlockIPHandler(logger, policy).Handle)
	security.Post("/whitelist/:client_id", NewWhitelistIPHandler(logger, policy).Handle)
	security.Delete("/clients/:client_id", NewResetClientHandler(logger, limiter).Handle)
	app.Get("/version", NewGetVersionHandler(logger).Handle)

	return &adminFixture{app: app, events: events, sink: sink, limiter: limiter, policy: policy}
}

func decodeBody(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func threatMatch() threat.Match {
	return threat.Match{
		Category:  threat.SQLInjection,
		Severity:  threat.Critical,
		PatternID: "sql_injection:1",
		Sample:    "'; DROP TABLE users; --",
	}
}

func adminRequest() escalation.RequestInfo {
	return escalation.RequestInfo{Method: "POST", Path: "/api/v1/users", UserAgent: "curl/8.16.0"}
}

func TestSecurityMetricsEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	f.policy.Handle(threatMatch(), "203.0.113.9:ab12cd34", adminRequest())
	f.limiter.RecordRequest("203.0.113.9:ab12cd34")

	resp, err := f.app.Test(httptest.NewRequest("GET", "/api/v1/security/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, float64(1), body["events_handled"])
	assert.Equal(t, float64(1), body["permanent_blocks"])
	assert.Equal(t, float64(1), body["blocklist_size"])
	assert.Equal(t, float64(1), body["active_clients"])
	assert.Equal(t, float64(1), body["events_stored"])
}

func TestThreatAnalysisEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	f.policy.Handle(threatMatch(), "203.0.113.9:ab12cd34", adminRequest())

	resp, err := f.app.Test(httptest.NewRequest("GET", "/api/v1/security/threats?hours=1", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, float64(1), body["total_events"])
	assert.Equal(t, "critical", body["overall_level"])

	resp, err = f.app.Test(httptest.NewRequest("GET", "/api/v1/security/threats?hours=-1", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestIPAnalysisEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	id := "203.0.113.9:ab12cd34"
	f.policy.Handle(threatMatch(), id, adminRequest())

	resp, err := f.app.Test(httptest.NewRequest("GET", "/api/v1/security/ips/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body := decodeBody(t, resp.Body)
	assert.Equal(t, id, body["client_id"])
	assert.Equal(t, float64(1), body["total_events"])

	resp, err = f.app.Test(httptest.NewRequest("GET", "/api/v1/security/ips/198.51.100.1:00000000", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestBlockAndWhitelistEndpoints(t *testing.T) {
	f := newAdminFixture(t)
	id := "203.0.113.9:ab12cd34"

	payload := bytes.NewBufferString(`{"reason":"abuse report"}`)
	req := httptest.NewRequest("POST", "/api/v1/security/blocklist/"+id, payload)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.True(t, f.policy.IsBlocked(id))

	resp, err = f.app.Test(httptest.NewRequest("POST", "/api/v1/security/whitelist/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.True(t, f.policy.IsWhitelisted(id))
	assert.False(t, f.policy.IsBlocked(id))
}

func TestResetClientEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	id := "203.0.113.9:ab12cd34"

	resp, err := f.app.Test(httptest.NewRequest("DELETE", "/api/v1/security/clients/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	f.limiter.RecordRequest(id)
	resp, err = f.app.Test(httptest.NewRequest("DELETE", "/api/v1/security/clients/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 0, f.limiter.ActiveClients())
}

func TestExportEventsEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	f.policy.Handle(threatMatch(), "203.0.113.9:ab12cd34", adminRequest())

	resp, err := f.app.Test(httptest.NewRequest("GET", "/api/v1/security/events/export?format=csv", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	resp, err = f.app.Test(httptest.NewRequest("GET", "/api/v1/security/events/export?format=xml", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestCleanupEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	f.limiter.RecordRequest("203.0.113.9:ab12cd34")

	resp, err := f.app.Test(httptest.NewRequest("POST", "/api/v1/security/cleanup", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, float64(1), body["profiles_evicted"])
}

func TestVersionEndpoint(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/version", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body := decodeBody(t, resp.Body)
	assert.Equal(t, "WardGate", body["app_name"])
}
