package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"beam/internal/http/middleware"
)

type stubVerifier struct {
	callerID string
	err      error
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (string, error) {
	return s.callerID, s.err
}

func authRouter(v middleware.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(v))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": middleware.CallerID(c)})
	})
	return r
}

func TestAuthNilVerifierPassesThrough(t *testing.T) {
	r := authRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMissingHeader(t *testing.T) {
	r := authRouter(&stubVerifier{callerID: "u1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthWrongScheme(t *testing.T) {
	r := authRouter(&stubVerifier{callerID: "u1"})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectedToken(t *testing.T) {
	r := authRouter(&stubVerifier{err: errors.New("expired")})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthSetsCaller(t *testing.T) {
	r := authRouter(&stubVerifier{callerID: "courier-ana"})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "courier-ana")
}
