package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pairchat/internal/errs"
	"pairchat/internal/permissions"
)

// writeError maps a service error to a status code. Errors that are not safe
// to show are logged and replaced with fallback.
func writeError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		logger.Error(fallback,
			zap.String("route", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": fallback})
		return
	}

	body := gin.H{"error": err.Error()}
	var denied *permissions.DeniedError
	if errors.As(err, &denied) {
		body["code"] = denied.Code
	}
	c.JSON(status, body)
}
