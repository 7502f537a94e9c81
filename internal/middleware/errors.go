package middleware

import (
	"github.com/gin-gonic/gin"

	"incentivos/api/internal/apperr"
)

// AbortWithError renders err as the {success:false, message} envelope with
// the status its kind maps to.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
		"success": false,
		"message": apperr.PublicMessage(err),
	})
}
