package realtime

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Broadcaster is what services use to announce state changes. Delivery is
// best-effort: events for rooms with no live connections are dropped.
type Broadcaster interface {
	BroadcastToBoard(boardID string, ev Event)
	SendToUser(userID string, ev Event)
}

// RoomEvictor takes a user's live connections out of a board room once the
// user is no longer a member, so later board events stop reaching them.
type RoomEvictor interface {
	EvictFromBoard(boardID, userID string) int
}

type envelope struct {
	Event string `json:"event"`
	Data  Event  `json:"data"`
}

type Gateway struct {
	registry *Registry
	log      *logrus.Entry
}

func NewGateway(registry *Registry, log *logrus.Entry) *Gateway {
	return &Gateway{registry: registry, log: log}
}

// BroadcastToBoard delivers ev to every connection in the board room,
// including the originator's.
func (g *Gateway) BroadcastToBoard(boardID string, ev Event) {
	g.emit(BoardRoom(boardID), ev, "")
}

// SendToUser delivers ev to every connection of userID.
func (g *Gateway) SendToUser(userID string, ev Event) {
	g.emit(UserRoom(userID), ev, "")
}

// EchoToBoard relays a client-originated event to the rest of the board room.
func (g *Gateway) EchoToBoard(boardID string, ev Event, senderConnID string) int {
	return g.emit(BoardRoom(boardID), ev, senderConnID)
}

// EchoToUser relays to the user's other connections.
func (g *Gateway) EchoToUser(userID string, ev Event, senderConnID string) int {
	return g.emit(UserRoom(userID), ev, senderConnID)
}

// EvictFromBoard removes every connection of userID from the board room.
func (g *Gateway) EvictFromBoard(boardID, userID string) int {
	n := g.registry.LeaveUser(userID, BoardRoom(boardID))
	if n > 0 {
		g.log.WithFields(logrus.Fields{
			"board_id":    boardID,
			"user_id":     userID,
			"connections": n,
		}).Debug("evicted connections from board room")
	}
	return n
}

// SendTo delivers ev to a single connection.
func (g *Gateway) SendTo(conn Connection, ev Event) bool {
	msg, err := encode(ev)
	if err != nil {
		g.log.WithError(err).WithField("event", ev.EventName()).Error("failed to encode event")
		return false
	}
	return conn.Send(msg)
}

func (g *Gateway) emit(room Room, ev Event, except string) int {
	members := g.registry.MembersOf(room)
	if len(members) == 0 {
		return 0
	}
	msg, err := encode(ev)
	if err != nil {
		g.log.WithError(err).WithField("event", ev.EventName()).Error("failed to encode event")
		return 0
	}

	delivered := 0
	for _, conn := range members {
		if conn.ID() == except {
			continue
		}
		if !conn.Send(msg) {
			g.log.WithFields(logrus.Fields{
				"event":   ev.EventName(),
				"room":    room,
				"conn_id": conn.ID(),
			}).Warn("dropped event for slow or closed connection")
			continue
		}
		delivered++
	}
	return delivered
}

func encode(ev Event) ([]byte, error) {
	return json.Marshal(envelope{Event: ev.EventName(), Data: ev})
}
