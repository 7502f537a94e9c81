package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/models"
)

const (
	principalKey = "principal"
	tokenKey     = "access_token"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Principal, error)
}

// Auth resolves the bearer token on every request. Nothing about a token's
// validity is cached: sessions may be revoked between two calls.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			AbortWithError(c, apperr.ErrTokenMissing)
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(tokenKey, token)
		c.Set(principalKey, principal)

		c.Next()
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func CurrentPrincipal(c *gin.Context) (*models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*models.Principal)
	return p, ok && p != nil
}

func CurrentToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}
