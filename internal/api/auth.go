package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const adminRole = "admin"

// adminClaims are the JWT claims issued by /auth/token for dashboard and
// websocket access. Tokens are signed with the admin secret itself, so
// rotating the secret invalidates all outstanding tokens.
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func issueAdminToken(secret string, ttl time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(ttl)
	claims := adminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminRole,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	return signed, expiresAt, err
}

func parseAdminToken(tokenStr, secret string) error {
	token, err := jwt.ParseWithClaims(tokenStr, &adminClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(*adminClaims)
	if !ok || !token.Valid || claims.Role != adminRole {
		return errors.New("invalid token claims")
	}
	return nil
}

// adminAuth guards the control endpoints. It accepts the raw admin
// secret in X-ADMIN-SECRET or a valid admin JWT as a Bearer token. An
// unconfigured secret disables the control plane entirely.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.Current().Admin.Secret
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "admin secret not configured",
			})
			return
		}

		if c.GetHeader("X-ADMIN-SECRET") == secret {
			c.Next()
			return
		}

		if auth := c.GetHeader("Authorization"); auth != "" {
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				if err := parseAdminToken(parts[1], secret); err == nil {
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "unauthorized",
		})
	}
}

// issueToken exchanges the admin secret for a short-lived JWT.
func (s *Server) issueToken(c *gin.Context) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	cfg := s.cfg.Current()
	if cfg.Admin.Secret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admin secret not configured"})
		return
	}
	if req.Secret != cfg.Admin.Secret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, expiresAt, err := issueAdminToken(cfg.Admin.Secret, cfg.Admin.TokenTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
