package middleware

import (
	"github.com/gin-gonic/gin"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/models"
)

// RequirePermission lets the request through when the caller's role grants
// every one of perms on module. It must run after Auth.
func RequirePermission(module models.Module, perms ...models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			AbortWithError(c, apperr.ErrTokenMissing)
			return
		}

		if !principal.Can(module, perms...) {
			AbortWithError(c, apperr.InsufficientPermissions(string(module), models.PermissionStrings(perms)))
			return
		}

		c.Next()
	}
}
