package http

import (
	"net/http"
	"strconv"

	"github.com/hookrelay/hookrelay/internal/http/middleware"
	"github.com/hookrelay/hookrelay/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// setEndpointEnabledHandler toggles the only endpoint field this subsystem
// owns. Re-enabling after a 410 auto-disable is an explicit operator action.
func setEndpointEnabledHandler(endpoints repository.EndpointsRepository, enabled bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid endpoint id"})
		}

		ep, err := endpoints.GetByID(c.Request().Context(), id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if ep == nil || ep.TenantID != tenantID {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "endpoint not found"})
		}

		if err := endpoints.SetEnabled(c.Request().Context(), tenantID, id, enabled); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"id":      id,
			"enabled": enabled,
		})
	}
}
