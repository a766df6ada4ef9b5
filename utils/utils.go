package utils

import (
	"github.com/gofiber/fiber/v2"
)

// SuccessResponse creates a standardized success response
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}

// MessageResponse is a success response carrying only a message.
func MessageResponse(message string) fiber.Map {
	return fiber.Map{
		"success": true,
		"message": message,
	}
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}
