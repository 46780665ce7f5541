package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/showrunner-io/showrunner/pkg/services"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// abortServiceError maps service-layer errors onto HTTP responses.
func abortServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: validErr.Error()})
		return
	}
	if errors.Is(err, services.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "resource not found"})
		return
	}
	if errors.Is(err, services.ErrInvalidInput) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if errors.Is(err, services.ErrAlreadyExists) || errors.Is(err, services.ErrStateViolation) {
		c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}

	slog.Error("Unexpected service error", "path", c.Request.URL.Path, "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

// abortBadRequest rejects malformed query or path input.
func abortBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message})
}
