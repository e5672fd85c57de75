// Package v1 provides the operator-facing HTTP handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wardenhq/warden/internal/scan"
)

// Handler handles HTTP requests.
type Handler struct {
	manager *scan.Manager
}

// NewHandler creates a new handler.
func NewHandler(manager *scan.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes registers operator routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/scans", h.CreateScan)
	e.GET("/v1/scans", h.ListScans)
	e.GET("/v1/scans/:scan_id", h.GetScan)
	e.GET("/v1/scans/:scan_id/events", h.GetScanEvents)
	e.GET("/v1/scans/:scan_id/report", h.GetScanReport)
	e.GET("/v1/scans/:scan_id/vulnerabilities", h.GetScanVulnerabilities)
	e.POST("/v1/scans/:scan_id/messages", h.PostScanMessage)
	e.GET("/v1/scans/:scan_id/stream", h.StreamScanEvents)

	e.GET("/v1/status", h.GetStatus)
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// GetStatus returns the control-plane summary.
// GET /v1/status
func (h *Handler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Status())
}
