package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testServiceKey = "svc-key-123"
	testJWTSecret  = "jwt-secret"
)

func newTestAuth(t *testing.T) *AuthMiddleware {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testServiceKey), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthMiddleware(AuthConfig{
		JWTSecret:      testJWTSecret,
		ServiceKeyHash: string(hash),
	})
}

func serveGuarded(guard gin.HandlerFunc, inner gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", guard, inner)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ok(c *gin.Context) { c.Status(http.StatusOK) }

func TestServiceAuthRejectsMissingKey(t *testing.T) {
	m := newTestAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	w := serveGuarded(m.ServiceAuth(), ok, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestServiceAuthRejectsWrongKey(t *testing.T) {
	m := newTestAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set(HeaderServiceKey, "not-the-key")
	w := serveGuarded(m.ServiceAuth(), ok, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid service key")
}

func TestServiceAuthAcceptsValidKey(t *testing.T) {
	m := newTestAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set(HeaderServiceKey, testServiceKey)
	w := serveGuarded(m.ServiceAuth(), ok, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAdminAuthResolvesTenantFromToken(t *testing.T) {
	m := newTestAuth(t)
	tenantID := uuid.New()
	token := signToken(t, testJWTSecret, jwt.MapClaims{
		"tenant_id": tenantID.String(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	var resolved uuid.UUID
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serveGuarded(m.AdminAuth(), func(c *gin.Context) {
		resolved = TenantID(c)
		c.Status(http.StatusOK)
	}, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tenantID, resolved)
}

func TestAdminAuthRejectsBadSignature(t *testing.T) {
	m := newTestAuth(t)
	token := signToken(t, "some-other-secret", jwt.MapClaims{
		"tenant_id": uuid.NewString(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serveGuarded(m.AdminAuth(), ok, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestAdminAuthRejectsMissingTenantClaim(t *testing.T) {
	m := newTestAuth(t)
	token := signToken(t, testJWTSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serveGuarded(m.AdminAuth(), ok, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid tenant claim")
}
