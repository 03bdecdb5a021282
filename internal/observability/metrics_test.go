package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordLogin("success")
	m.RecordLogin("success")
	m.RecordLogin("invalid_credentials")
	m.RecordAuthDecision("redirect_login", "missing_token")
	m.RecordStoreFailure("create")
	m.RecordRequest("/api/auth/login", http.MethodPost, 200, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authDecisions.WithLabelValues("redirect_login", "missing_token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeFailures.WithLabelValues("create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/auth/login", http.MethodPost, "200")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordLogin("success")
	m.RecordAuthDecision("allow", "public")
	m.RecordStoreFailure("create")
	m.RecordError("/", http.MethodGet, "X")
	m.RecordRequest("/", http.MethodGet, 200, time.Millisecond)
}

func TestMetricsHandlerAndRequestLogger(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `storefront_auth_http_requests_total{method="GET",route="/ping",status="200"} 1`), string(body))
}

func TestRequestLoggerLabelsUnroutedPathsAsUnmatched(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/metrics", m.Handler())

	for _, path := range []string{"/livros/a", "/livros/b", "/carrinho"} {
		_, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `route="unmatched"`)
	assert.NotContains(t, string(body), "livros")
	assert.NotContains(t, string(body), "carrinho")
}
