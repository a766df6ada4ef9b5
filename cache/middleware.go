package cache

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const HeaderCacheStatus = "X-Cache"

// UserIDFunc extracts the authenticated user id from the request.
type UserIDFunc func(c *fiber.Ctx) string

// Key builds the cache key: path, sorted query string and user id.
func Key(c *fiber.Ctx, userID string) string {
	key := c.Path()
	if raw := string(c.Request().URI().QueryString()); raw != "" {
		if values, err := url.ParseQuery(raw); err == nil {
			key += "?" + values.Encode()
		} else {
			key += "?" + raw
		}
	}
	return key + "|" + userID
}

// Middleware serves GET requests from the cache and stores successful
// responses of the wrapped handler. Other methods pass straight through.
func (rc *ResponseCache) Middleware(userID UserIDFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet {
			return c.Next()
		}

		key := Key(c, userID(c))
		if entry, ok := rc.Get(key); ok {
			rc.setValidators(c, entry)
			c.Set(HeaderCacheStatus, "HIT")
			if notModified(c, entry) {
				c.Status(fiber.StatusNotModified)
				return nil
			}
			c.Set(fiber.HeaderContentType, entry.ContentType)
			return c.Status(fiber.StatusOK).Send(entry.Body)
		}

		if err := c.Next(); err != nil {
			return err
		}
		if c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}

		body := append([]byte(nil), c.Response().Body()...)
		entry := rc.Set(key, body, string(c.Response().Header.ContentType()))
		rc.setValidators(c, entry)
		c.Set(HeaderCacheStatus, "MISS")
		return nil
	}
}

func (rc *ResponseCache) setValidators(c *fiber.Ctx, entry Entry) {
	c.Set(fiber.HeaderCacheControl, "private, max-age="+strconv.Itoa(int(rc.cfg.TTL.Seconds())))
	c.Set(fiber.HeaderETag, entry.ETag)
	c.Set(fiber.HeaderLastModified, entry.LastModified.UTC().Format(http.TimeFormat))
}

// notModified reports a match on If-None-Match first. When no entity tag
// matches it falls back to comparing If-Modified-Since with the entry's
// last-modified time.
func notModified(c *fiber.Ctx, entry Entry) bool {
	if inm := c.Get(fiber.HeaderIfNoneMatch); inm != "" {
		for _, tag := range strings.Split(inm, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || strings.TrimPrefix(tag, "W/") == entry.ETag {
				return true
			}
		}
	}
	if ims := c.Get(fiber.HeaderIfModifiedSince); ims != "" {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		return !since.Before(entry.LastModified.Truncate(time.Second))
	}
	return false
}
