package serverutils

import (
	"errors"

	"ai-memory-chat-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware renders every error returned by a handler in the
// response envelope.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		var (
			verr *ValidationError
			ferr *fiber.Error
		)

		switch {
		case errors.As(err, &verr):
			return ctx.Status(fiber.StatusUnprocessableEntity).JSON(Response[map[string]string]{
				Success: false,
				Code:    fiber.StatusUnprocessableEntity,
				Message: "Validation failed",
				Data:    verr.Fields,
			})
		case IsNotFound(err):
			return ctx.Status(fiber.StatusNotFound).JSON(ErrorResponse(fiber.StatusNotFound, err.Error()))
		case errors.As(err, &ferr):
			return ctx.Status(ferr.Code).JSON(ErrorResponse(ferr.Code, ferr.Message))
		}

		log.Error("HTTP", "Unhandled request error", map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"error":  err.Error(),
		})
		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error"))
	}
}
