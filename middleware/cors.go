package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"taskboard/cache"
)

// CORSConfig lists what the browser frontend may send and read.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	MaxAge           int // seconds
}

// DefaultCORSConfig allows the frontend origin with cookies, and exposes the
// response cache validators so conditional requests work from the browser.
func DefaultCORSConfig(frontendURL string) CORSConfig {
	return CORSConfig{
		AllowedOrigins:   []string{strings.TrimRight(frontendURL, "/")},
		AllowCredentials: true,
		AllowedMethods: []string{
			fiber.MethodGet, fiber.MethodPost, fiber.MethodPut,
			fiber.MethodDelete, fiber.MethodPatch, fiber.MethodOptions,
		},
		AllowedHeaders: []string{
			fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept,
			fiber.HeaderAuthorization, fiber.HeaderXRequestedWith,
			fiber.HeaderIfNoneMatch, fiber.HeaderIfModifiedSince,
		},
		ExposedHeaders: []string{
			fiber.HeaderContentLength, fiber.HeaderETag,
			fiber.HeaderLastModified, cache.HeaderCacheStatus,
		},
		MaxAge: 3600,
	}
}

func CORS(cfg CORSConfig) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowCredentials: cfg.AllowCredentials,
		AllowMethods:     strings.Join(cfg.AllowedMethods, ","),
		AllowHeaders:     strings.Join(cfg.AllowedHeaders, ","),
		ExposeHeaders:    strings.Join(cfg.ExposedHeaders, ","),
		MaxAge:           cfg.MaxAge,
	})
}
