package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyAuth(apiKey))
	r.GET("/ai/v1/process", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return r
}

func TestAPIKeyAuth_AllowsMatchingKey(t *testing.T) {
	r := newTestRouter("secret-key")
	req := httptest.NewRequest(http.MethodGet, "/ai/v1/process", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_RejectsWrongKey(t *testing.T) {
	r := newTestRouter("secret-key")
	req := httptest.NewRequest(http.MethodGet, "/ai/v1/process", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_RejectsMissingHeader(t *testing.T) {
	r := newTestRouter("secret-key")
	req := httptest.NewRequest(http.MethodGet, "/ai/v1/process", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_FailsClosedWhenUnconfigured(t *testing.T) {
	r := newTestRouter("")
	req := httptest.NewRequest(http.MethodGet, "/ai/v1/process", nil)
	req.Header.Set("X-API-Key", "anything")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
