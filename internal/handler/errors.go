package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/repository"
	"github.com/iliyamo/ppv-access/internal/service"
)

// writeError maps service and repository errors to HTTP responses.
// Unexpected errors are logged and reported as 500 without detail.
func writeError(c echo.Context, log *zap.Logger, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, repository.ErrStreamNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "stream not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStreamName), errors.Is(err, service.ErrInvalidGeo):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	log.Error(op+" failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": op + " failed"})
}
