package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coursehub/internal/microservices/http-api/handler"
	"coursehub/internal/microservices/http-api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRouter(readiness map[string]handler.ReadinessCheck) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return handler.NewRouter(handler.RouterConfig{
		ServiceName: "coursehub-test",
		Verifier:    middleware.NewTokenVerifier(strings.Repeat("k", 32), ""),
		Progress:    new(MockProgressService),
		Aggregator:  new(MockAggregator),
		Readiness:   readiness,
		Logger:      zap.NewNop(),
	})
}

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Healthz(t *testing.T) {
	w := serve(newTestRouter(nil), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRouter_Readyz(t *testing.T) {
	t.Run("AllReady", func(t *testing.T) {
		r := newTestRouter(map[string]handler.ReadinessCheck{
			"database": func(context.Context) error { return nil },
		})
		assert.Equal(t, http.StatusOK, serve(r, "/readyz").Code)
	})

	t.Run("DatabaseDown", func(t *testing.T) {
		r := newTestRouter(map[string]handler.ReadinessCheck{
			"database": func(context.Context) error { return errors.New("db down") },
		})
		w := serve(r, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "db down")
	})
}

func TestRouter_ApiRequiresToken(t *testing.T) {
	r := newTestRouter(nil)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/api/v1/dashboard/courses").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/api/v1/playback/ws?lesson_id=l1").Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, serve(newTestRouter(nil), "/nope").Code)
}
