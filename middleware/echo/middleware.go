package echomw

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/reoring/formskema/middleware"
)

// ValidateJSON validates the request JSON through a headless form built from
// cfg, stores the values in the request context on success, or answers 422
// with the error map when validation fails.
func ValidateJSON(cfg middleware.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, err := middleware.Check(c.Request(), cfg)
			if err != nil {
				return c.JSON(middleware.Status(err), map[string]any{"error": err.Error()})
			}
			if !sub.Valid {
				return c.JSON(http.StatusUnprocessableEntity, middleware.ErrorPayload(sub.Errors))
			}
			ctx := middleware.ContextWithValues(c.Request().Context(), sub.Values)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// GetValues fetches the validated values from echo.Context.
func GetValues(c echo.Context) (map[string]any, bool) {
	return middleware.ValuesFromContext(c.Request().Context())
}
