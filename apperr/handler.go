package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ErrorHandler renders every error returned by a handler as
// {"success": false, "error": {...}}. The wrapped cause is only exposed when
// showDetails is set.
func ErrorHandler(showDetails bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := Render(err, showDetails)
		if status >= fiber.StatusInternalServerError {
			logrus.WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
				"status": status,
			}).WithError(err).Error("request failed")
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   body,
		})
	}
}

// Render converts err into a status code and the error body of a response.
func Render(err error, showDetails bool) (int, fiber.Map) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fiber.Map{
			"kind":    kindForStatus(fe.Code),
			"message": fe.Message,
		}
	}

	var ae *Error
	if !errors.As(err, &ae) {
		ae = Internal("internal server error", err)
	}
	body := fiber.Map{
		"kind":    ae.Kind,
		"message": ae.Message,
	}
	if ae.Reason != "" {
		body["reason"] = ae.Reason
	}
	if showDetails && ae.Err != nil {
		body["details"] = ae.Err.Error()
	}
	return HTTPStatus(ae.Kind), body
}
