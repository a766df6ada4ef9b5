package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("wrapped app error keeps its kind", func(t *testing.T) {
		err := fmt.Errorf("respond: %w", NotFound("invitation not found"))
		assert.Equal(t, KindNotFound, KindOf(err))
		assert.True(t, Is(err, KindNotFound))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	})

	t.Run("nil has no kind", func(t *testing.T) {
		assert.Equal(t, Kind(""), KindOf(nil))
		assert.False(t, Is(nil, KindInternal))
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstream, "github request failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestRender(t *testing.T) {
	cause := errors.New("disk full")

	t.Run("details hidden in production", func(t *testing.T) {
		status, body := Render(Internal("save failed", cause), false)
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Equal(t, KindInternal, body["kind"])
		assert.NotContains(t, body, "details")
	})

	t.Run("details shown outside production", func(t *testing.T) {
		_, body := Render(Internal("save failed", cause), true)
		assert.Equal(t, "disk full", body["details"])
	})

	t.Run("unauthorized carries reason", func(t *testing.T) {
		status, body := Render(Unauthorized(ReasonTokenExpired, "token expired"), false)
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, ReasonTokenExpired, body["reason"])
	})

	t.Run("fiber errors map by status", func(t *testing.T) {
		status, body := Render(fiber.ErrNotFound, false)
		assert.Equal(t, fiber.StatusNotFound, status)
		assert.Equal(t, KindNotFound, body["kind"])
	})

	t.Run("status per kind", func(t *testing.T) {
		cases := map[Kind]int{
			KindConflict:   fiber.StatusConflict,
			KindBadRequest: fiber.StatusBadRequest,
			KindForbidden:  fiber.StatusForbidden,
			KindUpstream:   fiber.StatusBadGateway,
		}
		for kind, want := range cases {
			status, _ := Render(New(kind, "x"), false)
			assert.Equal(t, want, status, kind)
		}
	})
}
