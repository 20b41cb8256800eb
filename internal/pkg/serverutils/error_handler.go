package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"loan-intake-be/internal/pkg/errs"
	"loan-intake-be/internal/pkg/logger"
)

// ErrorHandlerMiddleware maps the domain error taxonomy onto HTTP statuses.
// PhaseConflict and validation rejections are expected outcomes and are never
// logged as errors; invariant violations are.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(APIError{Message: fiberErr.Message})
		}

		var phaseConflict *errs.PhaseConflictError
		if errors.As(err, &phaseConflict) {
			return ctx.Status(fiber.StatusConflict).JSON(APIError{
				Message: "phase conflict",
				Detail: fiber.Map{
					"current":  phaseConflict.Current,
					"expected": phaseConflict.Expected,
				},
			})
		}

		if errors.Is(err, errs.ErrSessionNotFound) || errors.Is(err, errs.ErrSessionExpired) {
			return ctx.Status(fiber.StatusNotFound).JSON(APIError{Message: "session not found"})
		}

		if errors.Is(err, errs.ErrConflict) {
			return ctx.Status(fiber.StatusConflict).JSON(APIError{Message: "session removed concurrently"})
		}

		var invalidTransition *errs.InvalidTransitionError
		if errors.As(err, &invalidTransition) {
			// Internal invariant violation; the store has already forced the
			// session to ERROR. Logged loudly because this is a bug.
			log.Error("HTTP", "Invalid phase transition", map[string]interface{}{
				"path":  ctx.Path(),
				"error": invalidTransition.Error(),
			})
			return ctx.Status(fiber.StatusInternalServerError).JSON(APIError{Message: "internal state error"})
		}

		log.Error("HTTP", "Unhandled error", map[string]interface{}{
			"path":  ctx.Path(),
			"error": err.Error(),
		})
		return ctx.Status(fiber.StatusInternalServerError).JSON(APIError{Message: "internal server error"})
	}
}
