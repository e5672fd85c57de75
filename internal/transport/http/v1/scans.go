package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wardenhq/warden/internal/domain"
)

// CreateScanRequest is the body of POST /v1/scans.
type CreateScanRequest struct {
	Target      string `json:"target"`
	Instruction string `json:"instruction,omitempty"`
}

// CreateScan launches a scan.
// POST /v1/scans
func (h *Handler) CreateScan(c echo.Context) error {
	var req CreateScanRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, domain.NewError(domain.ErrValidation, "invalid request body"))
	}

	snap, err := h.manager.CreateScan(c.Request().Context(), req.Target, req.Instruction)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}

// ListScans returns snapshots of all scans, newest first.
// GET /v1/scans
func (h *Handler) ListScans(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"scans": h.manager.ListScans(),
	})
}

// GetScan returns one scan snapshot.
// GET /v1/scans/:scan_id
func (h *Handler) GetScan(c echo.Context) error {
	snap, err := h.manager.GetScan(c.Param("scan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// GetScanEvents returns events for a scan, optionally after a sequence
// number for incremental polling.
// GET /v1/scans/:scan_id/events?after=seq
func (h *Handler) GetScanEvents(c echo.Context) error {
	afterSeq := int64(0)
	if after := c.QueryParam("after"); after != "" {
		val, err := strconv.ParseInt(after, 10, 64)
		if err != nil || val < 0 {
			return writeError(c, domain.NewError(domain.ErrValidation, "invalid after parameter %q", after))
		}
		afterSeq = val
	}

	events, err := h.manager.Events(c.Param("scan_id"), afterSeq)
	if err != nil {
		return writeError(c, err)
	}

	nextAfter := afterSeq
	if len(events) > 0 {
		nextAfter = events[len(events)-1].Seq
	}
	return c.JSON(http.StatusOK, map[string]any{
		"events":     events,
		"next_after": nextAfter,
	})
}

// GetScanReport returns the final report text once the scan is terminal.
// GET /v1/scans/:scan_id/report
func (h *Handler) GetScanReport(c echo.Context) error {
	scanID := c.Param("scan_id")
	report, err := h.manager.Report(scanID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"scan_id": scanID,
		"content": report,
	})
}

// GetScanVulnerabilities returns the findings recorded so far.
// GET /v1/scans/:scan_id/vulnerabilities
func (h *Handler) GetScanVulnerabilities(c echo.Context) error {
	scanID := c.Param("scan_id")
	vulns, err := h.manager.Vulnerabilities(scanID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"scan_id": scanID,
		"count":   len(vulns),
		"items":   vulns,
	})
}
