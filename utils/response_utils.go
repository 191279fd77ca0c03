package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/FCJuventus/DoPi-demo/internal/apperr"
)

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Status  string   `json:"status"`
	Reason  string   `json:"reason"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// SuccessResponse is the envelope of every successful request.
type SuccessResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// RespondWithError sends a JSON error response.
func RespondWithError(c *fiber.Ctx, statusCode int, reason, message string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Status:  "error",
		Reason:  reason,
		Message: message,
	})
}

// RespondWithJSON sends a JSON success response.
func RespondWithJSON(c *fiber.Ctx, statusCode int, data interface{}) error {
	return c.Status(statusCode).JSON(SuccessResponse{
		Status: "success",
		Data:   data,
	})
}

// RespondWithAppError maps err to its HTTP status and writes the error envelope.
func RespondWithAppError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return RespondWithError(c, fe.Code, reasonForStatus(fe.Code), fe.Message)
	}
	kind := apperr.KindOf(err)
	return RespondWithError(c, StatusForKind(kind), string(kind), apperr.ClientMessage(err))
}

// RespondWithValidationError reports request validation failures with one
// detail line per field.
func RespondWithValidationError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Status:  "error",
		Reason:  string(apperr.KindValidation),
		Message: "request validation failed",
		Details: FormatValidationErrors(err),
	})
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindWrongState:
		return fiber.StatusBadRequest
	case apperr.KindUnauthorized:
		return fiber.StatusUnauthorized
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// StatusForError is the status RespondWithAppError would write for err.
func StatusForError(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return StatusForKind(apperr.KindOf(err))
}

func reasonForStatus(code int) string {
	switch {
	case code == fiber.StatusNotFound:
		return string(apperr.KindNotFound)
	case code == fiber.StatusUnauthorized:
		return string(apperr.KindUnauthorized)
	case code == fiber.StatusForbidden:
		return string(apperr.KindForbidden)
	case code < 500:
		return string(apperr.KindValidation)
	default:
		return string(apperr.KindInternal)
	}
}

// FormatValidationErrors formats validation errors from validator/v10.
func FormatValidationErrors(err error) []string {
	var errs []string
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			errs = append(errs, err.Error())
		}
		return errs
	}
	for _, fe := range verrs {
		element := fmt.Sprintf("Field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			element = fmt.Sprintf("%s (value: %s)", element, fe.Param())
		}
		errs = append(errs, element)
	}
	return errs
}

// SanitizeInput trims surrounding whitespace.
func SanitizeInput(input string) string {
	return strings.TrimSpace(input)
}
