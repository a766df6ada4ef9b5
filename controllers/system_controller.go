package controller

import (
	"github.com/gofiber/fiber/v2"

	"taskboard/cache"
	"taskboard/realtime"
	"taskboard/utils"
)

type SystemController struct {
	cache    *cache.ResponseCache
	registry *realtime.Registry
	version  string
}

func NewSystemController(rc *cache.ResponseCache, registry *realtime.Registry, version string) *SystemController {
	return &SystemController{cache: rc, registry: registry, version: version}
}

func (sc *SystemController) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "running",
		"version": sc.version,
	})
}

func (sc *SystemController) CacheStats(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"cache":    sc.cache.Stats(),
		"realtime": sc.registry.Stats(),
	}))
}
