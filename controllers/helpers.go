package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"taskboard/apperr"
	"taskboard/middleware"
	"taskboard/utils"
)

// parseBody decodes the JSON body into out and validates it.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	return utils.ValidateStruct(out)
}

func currentUser(c *fiber.Ctx) string {
	return middleware.CurrentUserID(c)
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
