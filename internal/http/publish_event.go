package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hookrelay/hookrelay/internal/http/middleware"
	"github.com/hookrelay/hookrelay/internal/service/publisher"
	"github.com/hookrelay/hookrelay/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type publishReq struct {
	Key     string          `json:"key"` // dot-namespaced event type
	RefType string          `json:"ref_type"`
	RefID   string          `json:"ref_id"`
	Payload json.RawMessage `json:"payload"`
}

func publishEventHandler(pubSvc *publisher.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req publishReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		// Normalize
		req.Key = util.NormalizeEventKey(req.Key)
		req.RefType = strings.TrimSpace(req.RefType)
		req.RefID = strings.TrimSpace(req.RefID)

		// Basic validation
		if !util.ValidEventKey(req.Key) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid event key"})
		}
		if len(req.RefType) > 100 || len(req.RefID) > 100 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "ref too long"})
		}

		// auth (set by APIKeyMiddleware)
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		// publish (event + fanout outbox row in one TX); delivery is async,
		// outcomes land in the delivery ledger
		id, err := pubSvc.Publish(c.Request().Context(), tenantID, req.Key, req.RefType, req.RefID, req.Payload)
		if err != nil {
			log.Errorf("publish failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"published": true,
			"id":        id,
			"key":       req.Key,
		})
	}
}
