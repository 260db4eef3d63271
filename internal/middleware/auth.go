package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
)

const (
	HeaderServiceKey = "X-Service-Key"
	ContextTenantID  = "tenant_id"
)

type AuthConfig struct {
	// JWTSecret signs admin tokens carrying a tenant_id claim.
	JWTSecret string
	// ServiceKeyHash is the bcrypt hash of the shared key the
	// scheduling system and carrier use on the webhook surface.
	ServiceKeyHash string
}

type AuthMiddleware struct {
	config AuthConfig
}

func NewAuthMiddleware(config AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{config: config}
}

func unauthorized(c *gin.Context, err error) {
	appErr := apperrors.Unauthorized(err)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": appErr.Error()})
}

// ServiceAuth guards the webhook surface with the shared service key.
func (m *AuthMiddleware) ServiceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderServiceKey)
		if key == "" {
			unauthorized(c, errors.New("missing service key"))
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(m.config.ServiceKeyHash), []byte(key)); err != nil {
			unauthorized(c, errors.New("invalid service key"))
			return
		}
		c.Next()
	}
}

// AdminAuth validates the admin JWT and resolves the tenant scope for
// the request.
func (m *AuthMiddleware) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(c, errors.New("missing bearer token"))
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(m.config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, errors.New("invalid token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, errors.New("invalid claims"))
			return
		}

		claim, _ := claims["tenant_id"].(string)
		tenantID, err := uuid.Parse(claim)
		if err != nil {
			unauthorized(c, errors.New("invalid tenant claim"))
			return
		}

		c.Set(ContextTenantID, tenantID)
		c.Next()
	}
}

// TenantID returns the tenant scope set by AdminAuth.
func TenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ContextTenantID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
