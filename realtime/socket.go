package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/auth"
)

const (
	identityLocal     = "socket_identity"
	defaultSendBuffer = 64
	writeWait         = 10 * time.Second
)

// MembershipChecker answers whether a user may subscribe to a board room.
type MembershipChecker interface {
	IsBoardMember(ctx context.Context, boardID, userID string) (bool, error)
}

// SocketServer accepts authenticated websocket connections and handles the
// client-originated events.
type SocketServer struct {
	registry   *Registry
	gateway    *Gateway
	verifier   auth.Verifier
	members    MembershipChecker
	log        *logrus.Entry
	sendBuffer int
}

func NewSocketServer(registry *Registry, gateway *Gateway, verifier auth.Verifier, members MembershipChecker, log *logrus.Entry) *SocketServer {
	return &SocketServer{
		registry:   registry,
		gateway:    gateway,
		verifier:   verifier,
		members:    members,
		log:        log,
		sendBuffer: defaultSendBuffer,
	}
}

// Authenticate verifies the token before the upgrade. A connection with a
// missing, expired or invalid token is refused with 401 and never upgraded.
func (s *SocketServer) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		identity, err := s.verifier.VerifyToken(token)
		if err != nil {
			s.log.WithField("ip", c.IP()).WithError(err).Warn("socket authentication rejected")
			return err
		}
		c.Locals(identityLocal, identity)
		return c.Next()
	}
}

// Handler serves an upgraded connection.
func (s *SocketServer) Handler() fiber.Handler {
	return websocket.New(s.serve)
}

type socketClient struct {
	id       string
	identity auth.Identity
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func newSocketClient(identity auth.Identity, buffer int) *socketClient {
	return &socketClient{
		id:       uuid.NewString(),
		identity: identity,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *socketClient) ID() string     { return c.id }
func (c *socketClient) UserID() string { return c.identity.UserID }

// Send queues msg without blocking. Messages are written in queue order, so
// a single connection sees events in send order.
func (c *socketClient) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *socketClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *socketClient) actor() Actor {
	return Actor{UserID: c.identity.UserID, UserEmail: c.identity.Email}
}

func (c *socketClient) writeLoop(conn *websocket.Conn, log *logrus.Entry) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).Debug("socket write failed")
				c.close()
				return
			}
		}
	}
}

type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *SocketServer) serve(conn *websocket.Conn) {
	identity, ok := conn.Locals(identityLocal).(auth.Identity)
	if !ok {
		_ = conn.Close()
		return
	}

	client := newSocketClient(identity, s.sendBuffer)
	log := s.log.WithFields(logrus.Fields{"conn_id": client.id, "user_id": identity.UserID})
	s.registry.Register(client)
	log.Info("socket connected")

	go client.writeLoop(conn, log)
	defer func() {
		s.disconnect(client)
		client.close()
		_ = conn.Close()
		log.Info("socket disconnected")
	}()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("socket read failed")
			}
			return
		}
		s.dispatch(client, msg, log)
	}
}

func (s *SocketServer) dispatch(client *socketClient, msg inboundMessage, log *logrus.Entry) {
	switch msg.Event {
	case "join_board":
		s.joinBoard(client, boardIDFrom(msg.Data))
	case "leave_board":
		s.leaveBoard(client, boardIDFrom(msg.Data))
	case "mark_notification_read":
		var id string
		if json.Unmarshal(msg.Data, &id) != nil || id == "" {
			s.reject(client, msg.Event, "notification id required")
			return
		}
		s.gateway.EchoToUser(client.UserID(), NotificationMarkedRead{NotificationID: id}, client.id)
	case EventTaskUpdated:
		var ev TaskUpdated
		if !s.decodeBoardEvent(client, msg, &ev, func() string { return ev.BoardID }) {
			return
		}
		ev.Task = nil
		ev.UpdatedBy = client.actor()
		s.gateway.EchoToBoard(ev.BoardID, ev, client.id)
	case EventAttachmentAdded:
		var ev AttachmentAdded
		if !s.decodeBoardEvent(client, msg, &ev, func() string { return ev.BoardID }) {
			return
		}
		ev.AddedBy = client.actor()
		s.gateway.EchoToBoard(ev.BoardID, ev, client.id)
	case EventAttachmentRemoved:
		var ev AttachmentRemoved
		if !s.decodeBoardEvent(client, msg, &ev, func() string { return ev.BoardID }) {
			return
		}
		ev.RemovedBy = client.actor()
		s.gateway.EchoToBoard(ev.BoardID, ev, client.id)
	default:
		log.WithField("event", msg.Event).Debug("ignoring unknown socket event")
	}
}

// decodeBoardEvent decodes a client echo and checks the sender has joined
// the board room it targets.
func (s *SocketServer) decodeBoardEvent(client *socketClient, msg inboundMessage, out Event, boardID func() string) bool {
	if err := json.Unmarshal(msg.Data, out); err != nil {
		s.reject(client, msg.Event, "invalid payload")
		return false
	}
	if !s.registry.InRoom(client.id, BoardRoom(boardID())) {
		s.reject(client, msg.Event, "join the board before sending board events")
		return false
	}
	return true
}

func (s *SocketServer) joinBoard(client *socketClient, boardID string) {
	if boardID == "" {
		s.reject(client, "join_board", "board id required")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := s.members.IsBoardMember(ctx, boardID, client.UserID())
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		s.log.WithError(err).WithField("board_id", boardID).Error("membership check failed")
		s.reject(client, "join_board", "could not join board")
		return
	}
	if !ok {
		s.reject(client, "join_board", "not a member of this board")
		return
	}

	s.registry.Join(client.id, BoardRoom(boardID))
	s.gateway.EchoToBoard(boardID, UserJoined{
		UserID:    client.identity.UserID,
		UserEmail: client.identity.Email,
		BoardID:   boardID,
	}, client.id)
}

func (s *SocketServer) leaveBoard(client *socketClient, boardID string) {
	if boardID == "" {
		return
	}
	room := BoardRoom(boardID)
	if !s.registry.InRoom(client.id, room) {
		return
	}
	s.registry.Leave(client.id, room)
	s.gateway.EchoToBoard(boardID, UserLeft{
		UserID:    client.identity.UserID,
		UserEmail: client.identity.Email,
		BoardID:   boardID,
	}, client.id)
}

// disconnect tells every board room the connection had joined that the user
// left, then drops the connection from the registry.
func (s *SocketServer) disconnect(client *socketClient) {
	for _, room := range s.registry.RoomsOf(client.id) {
		if room.IsBoard() {
			s.leaveBoard(client, room.BoardID())
		}
	}
	s.registry.Unregister(client.id)
}

func (s *SocketServer) reject(client *socketClient, event, message string) {
	s.gateway.SendTo(client, SocketError{Message: message, Event: event})
}

// boardIDFrom accepts either a bare string or {"boardId": "..."}.
func boardIDFrom(data json.RawMessage) string {
	var id string
	if json.Unmarshal(data, &id) == nil {
		return id
	}
	var obj struct {
		BoardID string `json:"boardId"`
	}
	if json.Unmarshal(data, &obj) == nil {
		return obj.BoardID
	}
	return ""
}
