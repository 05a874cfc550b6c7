package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/delivery/internal/infrastructure/auth"
	"github.com/erp/delivery/internal/infrastructure/config"
	"github.com/erp/delivery/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:     "test-secret-key-with-enough-entropy!",
		Expiration: 15 * time.Minute,
		Issuer:     "delivery-service-test",
	})
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := handler.NewSystemHandler(nil, "1.2.3", zap.NewNop())
	engine := gin.New()
	h.RegisterRoutes(engine)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"1.2.3"`)
}

func TestReady_NoDatabaseConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := handler.NewSystemHandler(nil, "dev", zap.NewNop())
	engine := gin.New()
	h.RegisterRoutes(engine)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)
}
