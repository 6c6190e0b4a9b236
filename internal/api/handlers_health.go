// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wms-admin/gateway/internal/health"
)

// HealthHandler reports gateway health plus the cached upstream
// session-store status.
type HealthHandler struct {
	version string
	monitor *health.Monitor
}

// NewHealthHandler creates a new health handler. monitor may be nil.
func NewHealthHandler(version string, monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{
		version: version,
		monitor: monitor,
	}
}

// HandleHealth returns server health status. The session-store section
// reflects the cached probe only and never triggers network I/O.
func (h *HealthHandler) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}

	if h.monitor != nil {
		status, fresh := h.monitor.Current()
		resp["sessionStore"] = map[string]interface{}{
			"available": status.Available,
			"strategy":  status.Strategy,
			"fresh":     fresh,
			"checkedAt": status.CheckedAt,
		}
	}

	return c.JSON(http.StatusOK, resp)
}
