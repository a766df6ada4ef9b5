package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/apperr"
	"taskboard/auth"
)

type staticVerifier map[string]auth.Identity

func (v staticVerifier) VerifyToken(token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, apperr.Unauthorized(apperr.ReasonTokenMissing, "authorization required")
	}
	id, ok := v[token]
	if !ok {
		return auth.Identity{}, apperr.Unauthorized(apperr.ReasonTokenInvalid, "invalid token")
	}
	return id, nil
}

type boardMembers map[string][]string

func (m boardMembers) IsBoardMember(_ context.Context, boardID, userID string) (bool, error) {
	for _, id := range m[boardID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func setupSocketServer(t *testing.T) (*SocketServer, *Registry) {
	t.Helper()
	r, g := setupGateway(t)
	verifier := staticVerifier{"good": {UserID: "alice", Email: "alice@example.com"}}
	members := boardMembers{"b1": {"alice", "bob"}}
	return NewSocketServer(r, g, verifier, members, logrus.NewEntry(logrus.New())), r
}

func connect(s *SocketServer, userID string) *socketClient {
	c := newSocketClient(auth.Identity{UserID: userID, Email: userID + "@example.com"}, 8)
	s.registry.Register(c)
	return c
}

func drain(t *testing.T, c *socketClient) []received {
	t.Helper()
	var out []received
	for {
		select {
		case msg := <-c.send:
			var r received
			require.NoError(t, json.Unmarshal(msg, &r))
			out = append(out, r)
		default:
			return out
		}
	}
}

func send(s *SocketServer, c *socketClient, event string, data any) {
	raw, _ := json.Marshal(data)
	s.dispatch(c, inboundMessage{Event: event, Data: raw}, s.log)
}

func TestAuthenticate(t *testing.T) {
	s, _ := setupSocketServer(t)
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(false)})
	app.Get("/ws", s.Authenticate(), func(c *fiber.Ctx) error {
		id := c.Locals(identityLocal).(auth.Identity)
		return c.SendString(id.UserID)
	})

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"valid query token", "/ws?token=good", "", fiber.StatusOK},
		{"valid bearer token", "/ws", "Bearer good", fiber.StatusOK},
		{"missing token", "/ws", "", fiber.StatusUnauthorized},
		{"invalid token", "/ws?token=bad", "", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}

	t.Run("plain http is refused", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/ws?token=good", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	})
}

func TestJoinBoard(t *testing.T) {
	s, r := setupSocketServer(t)
	alice := connect(s, "alice")
	bob := connect(s, "bob")
	mallory := connect(s, "mallory")

	send(s, bob, "join_board", "b1")
	send(s, alice, "join_board", map[string]string{"boardId": "b1"})

	assert.True(t, r.InRoom(alice.id, BoardRoom("b1")))
	events := drain(t, bob)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserJoined, events[0].Event)
	assert.Empty(t, drain(t, alice), "the joiner is not told about itself")

	t.Run("non member is refused", func(t *testing.T) {
		send(s, mallory, "join_board", "b1")
		assert.False(t, r.InRoom(mallory.id, BoardRoom("b1")))
		events := drain(t, mallory)
		require.Len(t, events, 1)
		assert.Equal(t, EventError, events[0].Event)
		assert.Empty(t, drain(t, bob))
	})

	t.Run("leave announces to the rest", func(t *testing.T) {
		send(s, alice, "leave_board", "b1")
		assert.False(t, r.InRoom(alice.id, BoardRoom("b1")))
		events := drain(t, bob)
		require.Len(t, events, 1)
		assert.Equal(t, EventUserLeft, events[0].Event)
	})
}

func TestDisconnect(t *testing.T) {
	s, r := setupSocketServer(t)
	alice := connect(s, "alice")
	bob := connect(s, "bob")
	send(s, alice, "join_board", "b1")
	send(s, bob, "join_board", "b1")
	drain(t, alice)
	drain(t, bob)

	s.disconnect(alice)

	assert.False(t, r.InRoom(alice.id, BoardRoom("b1")))
	assert.Empty(t, r.MembersOf(UserRoom("alice")))
	events := drain(t, bob)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserLeft, events[0].Event)
	assert.Equal(t, 1, r.Stats().Connections)
}

func TestClientEchoes(t *testing.T) {
	s, _ := setupSocketServer(t)
	alice := connect(s, "alice")
	bob := connect(s, "bob")
	send(s, alice, "join_board", "b1")
	send(s, bob, "join_board", "b1")
	drain(t, alice)
	drain(t, bob)

	send(s, alice, EventTaskUpdated, map[string]any{
		"taskId":  "t1",
		"boardId": "b1",
		"updates": map[string]any{"title": "new"},
	})

	assert.Empty(t, drain(t, alice))
	events := drain(t, bob)
	require.Len(t, events, 1)
	var ev TaskUpdated
	require.NoError(t, json.Unmarshal(events[0].Data, &ev))
	assert.Equal(t, "t1", ev.TaskID)
	assert.Equal(t, Actor{UserID: "alice", UserEmail: "alice@example.com"}, ev.UpdatedBy)

	t.Run("sender identity cannot be spoofed", func(t *testing.T) {
		send(s, alice, EventAttachmentAdded, map[string]any{
			"taskId":  "t1",
			"boardId": "b1",
			"addedBy": map[string]string{"userId": "bob"},
		})
		events := drain(t, bob)
		require.Len(t, events, 1)
		var ev AttachmentAdded
		require.NoError(t, json.Unmarshal(events[0].Data, &ev))
		assert.Equal(t, "alice", ev.AddedBy.UserID)
	})

	t.Run("echo to unjoined board is rejected", func(t *testing.T) {
		send(s, alice, EventAttachmentRemoved, map[string]any{"taskId": "t1", "boardId": "b2"})
		assert.Empty(t, drain(t, bob))
		events := drain(t, alice)
		require.Len(t, events, 1)
		assert.Equal(t, EventError, events[0].Event)
	})

	t.Run("mark read reaches the user's other connections", func(t *testing.T) {
		alicePhone := connect(s, "alice")
		send(s, alice, "mark_notification_read", "n1")
		assert.Empty(t, drain(t, alice))
		events := drain(t, alicePhone)
		require.Len(t, events, 1)
		assert.Equal(t, EventNotificationMarkedRead, events[0].Event)
		assert.Empty(t, drain(t, bob))
	})
}

func TestSocketClientSend(t *testing.T) {
	c := newSocketClient(auth.Identity{UserID: "alice"}, 1)
	assert.True(t, c.Send([]byte("a")))
	assert.False(t, c.Send([]byte("b")), "full queue drops")
	c.close()
	<-c.send
	assert.False(t, c.Send([]byte("c")), "closed client drops")
}
