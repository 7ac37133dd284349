package errors

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
)

// ValidationError returns a 400 without exposing internal details
func ValidationError(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// FromDomain maps a domain error to the right HTTP response. Validation
// messages are safe to expose; everything else is generic.
func FromDomain(c echo.Context, err error) error {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return InternalError(c, err)
	}

	switch de.Code {
	case domain.ErrCodeNotFound:
		return NotFoundError(c, "")
	case domain.ErrCodeValidation:
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: de.Message,
		})
	case domain.ErrCodeConflict:
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "conflict",
			Message: de.Message,
		})
	case domain.ErrCodeConfiguration:
		log.Printf("[CONFIGURATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
		return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "configuration_error",
			Message: "Billing configuration problem. Support has been notified.",
		})
	case domain.ErrCodeProvider:
		log.Printf("[PROVIDER ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
		return c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "provider_error",
			Message: "The billing provider is currently unavailable. Please try again later.",
		})
	default:
		return InternalError(c, err)
	}
}
