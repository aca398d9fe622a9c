package ginmw

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reoring/formskema/middleware"
)

// ValidateJSON validates the request JSON through a headless form built from
// cfg, stores the values in the request context, and on validation failure
// answers 422 with the error map.
func ValidateJSON(cfg middleware.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := middleware.Check(c.Request, cfg)
		if err != nil {
			c.JSON(middleware.Status(err), gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		if !sub.Valid {
			c.JSON(http.StatusUnprocessableEntity, middleware.ErrorPayload(sub.Errors))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(middleware.ContextWithValues(c.Request.Context(), sub.Values))
		c.Next()
	}
}

// GetValues fetches the validated values from gin.Context.
func GetValues(c *gin.Context) (map[string]any, bool) {
	return middleware.ValuesFromContext(c.Request.Context())
}
