package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleetops/internal/domain"
	"fleetops/internal/imaging"
	"fleetops/internal/lifecycle"
	"fleetops/internal/middleware"
	"fleetops/internal/repository"
	"fleetops/internal/service"
	"fleetops/internal/storage"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Server-side failures keep their detail in c.Errors for logging and APM;
// the client only sees a generic message.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code < http.StatusInternalServerError {
		c.JSON(code, ErrorResponse{Error: err.Error()})
		return
	}

	_ = c.Error(err)
	msg := http.StatusText(code)
	if errors.Is(err, service.ErrDispatch) {
		msg = "change saved but notification could not be recorded"
	}
	c.JSON(code, ErrorResponse{Error: msg})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidTripID),
		errors.Is(err, service.ErrInvalidDestination),
		errors.Is(err, service.ErrInvalidVehicleID),
		errors.Is(err, service.ErrInvalidDriverID),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, service.ErrInvalidMessage):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, service.ErrIncompleteTrip),
		errors.Is(err, service.ErrTripNotActive):
		return http.StatusConflict

	case errors.Is(err, imaging.ErrEncodingTooLarge),
		errors.Is(err, storage.ErrObjectRejected):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden

	// Notification store failed after the change was accepted
	case errors.Is(err, service.ErrDispatch):
		return http.StatusBadGateway

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// currentUser returns the authenticated identity or aborts with 401.
func currentUser(c *gin.Context) (domain.Identity, bool) {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "not authenticated"})
	}
	return id, ok
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
