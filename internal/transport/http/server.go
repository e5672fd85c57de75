// Package http provides the HTTP server for the control plane.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wardenhq/warden/internal/scan"
	v1 "github.com/wardenhq/warden/internal/transport/http/v1"
)

// NewServer creates and configures the operator-facing HTTP server.
func NewServer(manager *scan.Manager) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1.NewHandler(manager).RegisterRoutes(e)

	return e
}
