package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wardenhq/warden/internal/domain"
)

// writeError maps a typed control-plane error onto a stable status code and
// a machine-readable error kind.
func writeError(c echo.Context, err error) error {
	kind := domain.KindOf(err)
	return c.JSON(errorStatus(kind), map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func errorStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrConflict, domain.ErrInvalidState:
		return http.StatusConflict
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrLaunch:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
