package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wardenhq/warden/internal/domain"
)

// ScanMessageRequest is the body of POST /v1/scans/:scan_id/messages.
type ScanMessageRequest struct {
	Text string `json:"text"`
}

// PostScanMessage injects operator guidance into a waiting scan.
// POST /v1/scans/:scan_id/messages
func (h *Handler) PostScanMessage(c echo.Context) error {
	var req ScanMessageRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, domain.NewError(domain.ErrValidation, "invalid request body"))
	}

	snap, err := h.manager.SendMessage(c.Request().Context(), c.Param("scan_id"), req.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}
