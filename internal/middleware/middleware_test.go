package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HealthCheckIn/pkg/response"
)

func newEngine(middlewares ...app.HandlerFunc) *route.Engine {
	engine := route.NewEngine(config.NewOptions([]config.Option{}))
	engine.Use(middlewares...)
	return engine
}

func TestRecoverReturnsStructuredError(t *testing.T) {
	engine := newEngine(RecoverMiddlewareWithConfig(RecoverConfig{StackTraceLevel: "none"}))
	engine.GET("/boom", func(ctx context.Context, c *app.RequestContext) {
		panic("kaboom")
	})

	resp := ut.PerformRequest(engine, http.MethodGet, "/boom", nil).Result()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())

	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.Code)
	assert.Equal(t, "kaboom", body.Error.Details["panic"])
}

func TestRecoverHidesDetailsInProduction(t *testing.T) {
	engine := newEngine(RecoverMiddlewareWithConfig(RecoverConfig{IsProduction: true}))
	engine.GET("/boom", func(ctx context.Context, c *app.RequestContext) {
		panic("secret")
	})

	resp := ut.PerformRequest(engine, http.MethodGet, "/boom", nil).Result()

	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Empty(t, body.Error.Details)
	assert.NotContains(t, body.Error.Message, "secret")
}

func TestCORSPreflight(t *testing.T) {
	engine := newEngine(CORSMiddleware())
	handler := func(ctx context.Context, c *app.RequestContext) {
		c.Status(http.StatusOK)
	}
	engine.GET("/v1/dashboard", handler)
	engine.OPTIONS("/v1/dashboard", handler)

	w := ut.PerformRequest(engine, http.MethodOptions, "/v1/dashboard", nil,
		ut.Header{Key: "Origin", Value: "https://app.example"})
	resp := w.Result()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode())
	assert.Equal(t, "https://app.example", string(resp.Header.Peek("Access-Control-Allow-Origin")))
}

func TestRateLimitPassesThroughWithoutRedis(t *testing.T) {
	engine := newEngine(RefreshRateLimitMiddleware())
	engine.POST("/refresh", func(ctx context.Context, c *app.RequestContext) {
		c.Status(http.StatusAccepted)
	})

	for i := 0; i < RefreshRateLimitConfig.MaxRequests+2; i++ {
		resp := ut.PerformRequest(engine, http.MethodPost, "/refresh", nil).Result()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode())
	}
}

func TestOpenTelemetryMiddlewareWithoutInit(t *testing.T) {
	engine := newEngine(OpenTelemetryMiddleware())
	engine.GET("/healthz", func(ctx context.Context, c *app.RequestContext) {
		c.String(http.StatusOK, "ok")
	})

	resp := ut.PerformRequest(engine, http.MethodGet, "/healthz", nil).Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "ok", string(resp.Body()))
}
