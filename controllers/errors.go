package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
)

// respondServiceError maps service sentinels onto HTTP statuses. Anything unrecognised is
// logged and answered with fallback so internals never reach the client.
func respondServiceError(c *gin.Context, err error, fallback string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.RespondError(c, http.StatusBadRequest, verr)
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidStatus):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrUnauthorized):
		utils.RespondMessage(c, http.StatusUnauthorized, services.ErrUnauthorized.Error())
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrNothingToExport):
		utils.RespondError(c, http.StatusNotFound, err)
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrStatusConflict):
		utils.RespondError(c, http.StatusConflict, err)
	default:
		utils.ErrorLogger.WithError(err).WithField("path", c.Request.URL.Path).Error(fallback)
		utils.RespondMessage(c, http.StatusInternalServerError, fallback)
	}
}

// intQuery reads an optional positive integer parameter capped at maxListLimit. It
// writes the 400 itself and reports false when the value is unusable.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		utils.RespondMessage(c, http.StatusBadRequest, name+" must be between 1 and 500")
		return 0, false
	}
	return n, true
}
