package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mealorder-service/internal/apperr"
)

// respondError maps an engine error onto the HTTP response. Structured
// fields (offending categories, current status, failed window rule) ride
// along so the client can render a specific message.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Error("Unhandled internal error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	body := echo.Map{
		"error": ae.Message,
		"kind":  string(ae.Kind),
	}
	if len(ae.Fields) > 0 {
		body["details"] = ae.Fields
	}
	return c.JSON(apperr.HTTPStatus(ae), body)
}
