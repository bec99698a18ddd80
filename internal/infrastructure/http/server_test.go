package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig_ApplyDefaults(t *testing.T) {
	t.Run("applies all defaults for zero config", func(t *testing.T) {
		cfg := ServerConfig{}
		cfg.applyDefaults()

		assert.Equal(t, DefaultPort, cfg.Port)
		assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
		assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
		assert.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
		assert.Equal(t, DefaultReadHeaderTimeout, cfg.ReadHeaderTimeout)
		assert.Equal(t, DefaultMaxHeaderBytes, cfg.MaxHeaderBytes)
		assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MaxBodyBytes)
	})

	t.Run("preserves non-zero values", func(t *testing.T) {
		cfg := ServerConfig{Port: "9000", MaxBodyBytes: 512}
		cfg.applyDefaults()

		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, int64(512), cfg.MaxBodyBytes)
	})
}

func TestHealthEndpoint(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router := setupRouter(api, ServerConfig{MaxBodyBytes: DefaultMaxBodyBytes})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouterMountsAPIHandler(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router := setupRouter(api, ServerConfig{MaxBodyBytes: DefaultMaxBodyBytes})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
