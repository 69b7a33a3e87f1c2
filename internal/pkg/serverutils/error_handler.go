package serverutils

import (
	"errors"
	"time"

	"llamatalks-be/internal/pkg/apperror"
	"llamatalks-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

var kindStatus = map[apperror.Kind]int{
	apperror.KindInvalidInput:         fiber.StatusBadRequest,
	apperror.KindConversationNotFound: fiber.StatusNotFound,
	apperror.KindBatchNotFound:        fiber.StatusNotFound,
	apperror.KindConversationBusy:     fiber.StatusConflict,
	apperror.KindUpstreamModel:        fiber.StatusBadGateway,
	apperror.KindRetrieval:            fiber.StatusBadGateway,
	apperror.KindPersistence:          fiber.StatusInternalServerError,
	apperror.KindIngestion:            fiber.StatusInternalServerError,
}

// BuildErrorBody maps any error to the public envelope. Wrapped causes never reach the client.
func BuildErrorBody(err error) *ErrorBody {
	body := &ErrorBody{
		Success:   false,
		Code:      fiber.StatusInternalServerError,
		ErrorType: "INTERNAL_ERROR",
		Message:   "Internal server error",
		Timestamp: time.Now(),
	}

	var validationErr *ValidationError
	var appErr *apperror.Error
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &validationErr):
		body.Code = fiber.StatusBadRequest
		body.ErrorType = string(apperror.KindInvalidInput)
		body.Message = "Validation failed"
		body.Errors = validationErr.Fields
	case errors.As(err, &appErr):
		if status, ok := kindStatus[appErr.Kind]; ok {
			body.Code = status
		}
		body.ErrorType = string(appErr.Kind)
		body.Message = appErr.Message
	case errors.As(err, &fiberErr):
		body.Code = fiberErr.Code
		body.ErrorType = "HTTP_ERROR"
		body.Message = fiberErr.Message
	}

	return body
}

// NewErrorHandler is installed as fiber.Config.ErrorHandler so controllers can just return err.
func NewErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		body := BuildErrorBody(err)
		if body.Code >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"error":  err,
			})
		}
		return ctx.Status(body.Code).JSON(body)
	}
}
