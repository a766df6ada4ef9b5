package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/apperr"
	"taskboard/auth"
	"taskboard/boards"
	"taskboard/cache"
	controller "taskboard/controllers"
	"taskboard/github"
	"taskboard/hooks"
	"taskboard/keylock"
	"taskboard/membership"
	"taskboard/middleware"
	"taskboard/models"
	"taskboard/notifications"
	"taskboard/realtime"
	"taskboard/repository"
	"taskboard/store"
)

type nopMailer struct{}

func (nopMailer) SendVerificationCode(string, string, time.Duration) error { return nil }
func (nopMailer) SendInvitation(string, string, string) error              { return nil }

type testServer struct {
	app    *fiber.App
	repo   *repository.Repository
	tokens *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	log.Logger.SetOutput(io.Discard)

	repo := repository.New(store.NewMemoryStore())
	locks := keylock.New()
	registry := realtime.NewRegistry()
	gateway := realtime.NewGateway(registry, log)
	engine := notifications.NewEngine(repo, gateway, locks, log)
	dispatcher := hooks.NewDispatcher(log)
	t.Cleanup(dispatcher.Wait)

	tokens := auth.NewJWTManager("test-secret", time.Hour)
	members := membership.NewService(repo, engine, gateway, gateway, dispatcher, locks, nopMailer{}, log)
	codes := auth.NewCodeService(repo, nopMailer{}, tokens, 10*time.Minute, log)
	accounts := github.NewAccounts(repo, github.NewOAuth("id", "secret", ""), "0123456789abcdef", log)
	boardService := boards.NewService(repo, engine, gateway, locks, accounts, log)
	rc := cache.New(cache.Config{TTL: time.Minute, MaxEntries: 100, SweepInterval: time.Minute}, log)

	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(true)})
	SetupRoutes(app, Deps{
		Verifier:      tokens,
		Cache:         rc,
		Socket:        realtime.NewSocketServer(registry, gateway, tokens, members, log),
		InviteLimiter: middleware.InviteRateLimiter(2, nil),

		Auth:          controller.NewAuthController(codes, tokens, repo, accounts, "http://localhost:3000", false, log),
		Boards:        controller.NewBoardController(boardService, members),
		Cards:         controller.NewCardController(boardService),
		Tasks:         controller.NewTaskController(boardService),
		Notifications: controller.NewNotificationController(engine),
		GitHub:        controller.NewGitHubController(accounts),
		System:        controller.NewSystemController(rc, registry, "test"),
	})
	return &testServer{app: app, repo: repo, tokens: tokens}
}

func (s *testServer) login(t *testing.T, id, email string) string {
	t.Helper()
	user := &models.User{ID: id, Email: email, EmailVerified: true}
	require.NoError(t, s.repo.CreateUser(context.Background(), user))
	token, _, err := s.tokens.Issue(*user)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string, headers ...string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, fiber.MethodGet, "/health", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/boards", "/api/notifications", "/api/github/status", "/api/cache/stats"} {
		resp := s.do(t, fiber.MethodGet, path, "", "")
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestBoardLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, "owner", "owner@example.com")
	guestToken := s.login(t, "guest", "guest@example.com")

	resp := s.do(t, fiber.MethodPost, "/api/boards", owner, `{"name":"Roadmap"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var board models.Board
	decodeData(t, resp, &board)
	require.NotEmpty(t, board.ID)

	resp = s.do(t, fiber.MethodGet, "/api/boards/"+board.ID, guestToken, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = s.do(t, fiber.MethodPost, "/api/boards/"+board.ID+"/invite", owner, `{"member_id":"guest"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var inv models.Invitation
	decodeData(t, resp, &inv)

	resp = s.do(t, fiber.MethodGet, "/api/boards/invitations/pending", guestToken, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var pending []models.Invitation
	decodeData(t, resp, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, inv.ID, pending[0].ID)

	resp = s.do(t, fiber.MethodPost, "/api/boards/invitation/respond", guestToken,
		`{"invitationId":"`+inv.ID+`","status":"accepted"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = s.do(t, fiber.MethodGet, "/api/boards/"+board.ID, guestToken, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMembersResponseIsCached(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, "owner", "owner@example.com")

	resp := s.do(t, fiber.MethodPost, "/api/boards", owner, `{"name":"Roadmap"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var board models.Board
	decodeData(t, resp, &board)
	path := "/api/boards/" + board.ID + "/members"

	first := s.do(t, fiber.MethodGet, path, owner, "")
	require.Equal(t, fiber.StatusOK, first.StatusCode)
	assert.Equal(t, "MISS", first.Header.Get(cache.HeaderCacheStatus))
	etag := first.Header.Get(fiber.HeaderETag)
	require.NotEmpty(t, etag)

	second := s.do(t, fiber.MethodGet, path, owner, "")
	require.Equal(t, fiber.StatusOK, second.StatusCode)
	assert.Equal(t, "HIT", second.Header.Get(cache.HeaderCacheStatus))

	conditional := s.do(t, fiber.MethodGet, path, owner, "", fiber.HeaderIfNoneMatch, etag)
	assert.Equal(t, fiber.StatusNotModified, conditional.StatusCode)

	// a different caller never sees another user's entry
	other := s.login(t, "other", "other@example.com")
	resp = s.do(t, fiber.MethodGet, path, other, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(cache.HeaderCacheStatus))
}

func TestInviteRouteIsRateLimited(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, "owner", "owner@example.com")

	resp := s.do(t, fiber.MethodPost, "/api/boards", owner, `{"name":"Roadmap"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var board models.Board
	decodeData(t, resp, &board)

	path := "/api/boards/" + board.ID + "/invite"
	for _, email := range []string{"a@example.com", "b@example.com"} {
		resp = s.do(t, fiber.MethodPost, path, owner, `{"email":"`+email+`"}`)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode, email)
	}
	resp = s.do(t, fiber.MethodPost, path, owner, `{"email":"c@example.com"}`)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
