package membership

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/apperr"
	"taskboard/auth"
	"taskboard/hooks"
	"taskboard/keylock"
	"taskboard/models"
	"taskboard/notifications"
	"taskboard/realtime"
	"taskboard/repository"
	"taskboard/store"
)

type sentInvite struct {
	to, boardName, inviter string
}

type fakeMailer struct {
	mu      sync.Mutex
	invites []sentInvite
	codes   map[string]string
	err     error
}

func (f *fakeMailer) SendInvitation(to, boardName, inviterName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.invites = append(f.invites, sentInvite{to, boardName, inviterName})
	return nil
}

func (f *fakeMailer) SendVerificationCode(to, code string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[to] = code
	return nil
}

type liveConn struct {
	id, userID string
	mu         sync.Mutex
	received   []string
}

func (c *liveConn) ID() string     { return c.id }
func (c *liveConn) UserID() string { return c.userID }

func (c *liveConn) Send(msg []byte) bool {
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, env.Event)
	return true
}

func (c *liveConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.received...)
}

type env struct {
	svc      *Service
	repo     *repository.Repository
	engine   *notifications.Engine
	registry *realtime.Registry
	hooks    *hooks.Dispatcher
	mailer   *fakeMailer
	board    *models.Board
}

func setup(t *testing.T) env {
	t.Helper()
	return setupWithStore(t, store.NewMemoryStore())
}

func setupWithStore(t *testing.T, s store.Store) env {
	t.Helper()
	ctx := context.Background()
	log := logrus.NewEntry(logrus.New())
	repo := repository.New(s)
	registry := realtime.NewRegistry()
	gateway := realtime.NewGateway(registry, log)
	locks := keylock.New()
	engine := notifications.NewEngine(repo, gateway, locks, log)
	dispatcher := hooks.NewDispatcher(log)
	mailer := &fakeMailer{codes: map[string]string{}}
	svc := NewService(repo, engine, gateway, gateway, dispatcher, locks, mailer, log)

	for _, u := range []*models.User{
		{ID: "owner", Email: "owner@example.com", Name: "Olivia"},
		{ID: "member", Email: "member@example.com", Name: "Max"},
		{ID: "alice", Email: "alice@example.com", Name: "Alice"},
		{ID: "outsider", Email: "outsider@example.com"},
	} {
		require.NoError(t, repo.CreateUser(ctx, u))
	}
	board := &models.Board{Name: "Sprint", OwnerID: "owner"}
	require.NoError(t, repo.CreateBoard(ctx, board))
	_, err := repo.AddMember(ctx, board.ID, "member")
	require.NoError(t, err)

	return env{svc: svc, repo: repo, engine: engine, registry: registry, hooks: dispatcher, mailer: mailer, board: board}
}

func (e env) connect(userID string, boards ...string) *liveConn {
	c := &liveConn{id: "conn-" + userID, userID: userID}
	e.registry.Register(c)
	for _, b := range boards {
		e.registry.Join(c.id, realtime.BoardRoom(b))
	}
	return c
}

func TestInvite(t *testing.T) {
	ctx := context.Background()

	t.Run("by member id notifies invitee", func(t *testing.T) {
		e := setup(t)
		alice := e.connect("alice")

		inv, err := e.svc.Invite(ctx, e.board.ID, "member", InviteRequest{MemberID: "alice"})
		require.NoError(t, err)
		assert.Equal(t, models.InvitationPending, inv.Status)
		assert.Equal(t, "Sprint", inv.BoardName)
		assert.Equal(t, "owner", inv.OwnerID)
		assert.Equal(t, "member", inv.InviterID)

		ns, err := e.repo.NotificationsForRecipient(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.Equal(t, inv.ID, ns[0].Data.InvitationID)
		assert.Equal(t, []string{realtime.EventNewNotification}, alice.events())
	})

	t.Run("registered email resolves to user", func(t *testing.T) {
		e := setup(t)
		inv, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{Email: "Alice@Example.com"})
		require.NoError(t, err)
		assert.Equal(t, "alice", inv.MemberID)
		assert.Equal(t, "alice@example.com", inv.MemberEmail)

		e.hooks.Wait()
		require.Len(t, e.mailer.invites, 1)
		assert.Equal(t, sentInvite{"alice@example.com", "Sprint", "Olivia"}, e.mailer.invites[0])
	})

	t.Run("unknown email stays email only", func(t *testing.T) {
		e := setup(t)
		inv, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{Email: "new@example.com"})
		require.NoError(t, err)
		assert.Empty(t, inv.MemberID)

		e.hooks.Wait()
		require.Len(t, e.mailer.invites, 1)
		assert.Equal(t, "new@example.com", e.mailer.invites[0].to)

		pending, err := e.repo.FindPendingInvitation(ctx, e.board.ID, "", "new@example.com")
		require.NoError(t, err)
		require.NotNil(t, pending)
		assert.Equal(t, inv.ID, pending.ID)
	})

	t.Run("member id matches an earlier email invitation", func(t *testing.T) {
		e := setup(t)
		earlier := &models.Invitation{
			BoardID:     e.board.ID,
			BoardName:   e.board.Name,
			OwnerID:     "owner",
			InviterID:   "owner",
			MemberEmail: "alice@example.com",
		}
		require.NoError(t, e.repo.CreateInvitation(ctx, earlier))

		_, err := e.svc.Invite(ctx, e.board.ID, "member", InviteRequest{MemberID: "alice"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))

		invs, err := e.repo.InvitationsForBoard(ctx, e.board.ID)
		require.NoError(t, err)
		assert.Len(t, invs, 1)
	})

	t.Run("rejections", func(t *testing.T) {
		e := setup(t)
		_, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))

		_, err = e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{Email: "not-an-email"})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))

		_, err = e.svc.Invite(ctx, "missing", "owner", InviteRequest{MemberID: "alice"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		_, err = e.svc.Invite(ctx, e.board.ID, "outsider", InviteRequest{MemberID: "alice"})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))

		_, err = e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{MemberID: "member"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))

		_, err = e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{MemberID: "alice"})
		require.NoError(t, err)
		_, err = e.svc.Invite(ctx, e.board.ID, "member", InviteRequest{MemberID: "alice"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
		_, err = e.svc.Invite(ctx, e.board.ID, "member", InviteRequest{Email: "alice@example.com"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})

	t.Run("concurrent invites create one pending invitation", func(t *testing.T) {
		e := setup(t)
		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{MemberID: "alice"}); err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)

		invs, err := e.repo.InvitationsForBoard(ctx, e.board.ID)
		require.NoError(t, err)
		assert.Len(t, invs, 1)
	})

	t.Run("mail failure does not fail the invite", func(t *testing.T) {
		e := setup(t)
		e.mailer.err = errors.New("smtp down")
		_, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{Email: "someone@example.com"})
		assert.NoError(t, err)
		e.hooks.Wait()
	})
}

func TestRespond(t *testing.T) {
	ctx := context.Background()

	t.Run("accept joins board and announces", func(t *testing.T) {
		e := setup(t)
		owner := e.connect("owner", e.board.ID)
		inv, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{MemberID: "alice"})
		require.NoError(t, err)

		got, err := e.svc.Respond(ctx, inv.ID, "alice", models.InvitationAccepted)
		require.NoError(t, err)
		assert.Equal(t, models.InvitationAccepted, got.Status)
		require.NotNil(t, got.RespondedAt)

		board, err := e.repo.GetBoard(ctx, e.board.ID)
		require.NoError(t, err)
		assert.True(t, board.IsMember("alice"))

		assert.Contains(t, owner.events(), realtime.EventMemberJoined)
		assert.Contains(t, owner.events(), realtime.EventNewNotification)

		ns, err := e.repo.NotificationsForRecipient(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.Equal(t, models.NotificationBoardInvitationAccepted, ns[0].Type)

		inviterNs, err := e.repo.NotificationsForRecipient(ctx, "owner")
		require.NoError(t, err)
		require.Len(t, inviterNs, 1)
		assert.Equal(t, models.NotificationBoardMemberAdded, inviterNs[0].Type)

		_, err = e.svc.Respond(ctx, inv.ID, "alice", models.InvitationDeclined)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("decline leaves membership unchanged", func(t *testing.T) {
		e := setup(t)
		inv, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{MemberID: "alice"})
		require.NoError(t, err)

		_, err = e.svc.Respond(ctx, inv.ID, "alice", models.InvitationDeclined)
		require.NoError(t, err)

		board, err := e.repo.GetBoard(ctx, e.board.ID)
		require.NoError(t, err)
		assert.False(t, board.IsMember("alice"))

		_, err = e.svc.Respond(ctx, inv.ID, "alice", models.InvitationAccepted)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("failed member add reverts to pending", func(t *testing.T) {
		e := setup(t)
		owner := e.connect("owner", e.board.ID)
		inv, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{MemberID: "alice"})
		require.NoError(t, err)
		require.NoError(t, e.repo.DeleteBoard(ctx, e.board.ID))

		_, err = e.svc.Respond(ctx, inv.ID, "alice", models.InvitationAccepted)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		got, err := e.repo.GetInvitation(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvitationPending, got.Status)
		assert.Nil(t, got.RespondedAt)
		assert.NotContains(t, owner.events(), realtime.EventMemberJoined)

		// still answerable after the rollback
		declined, err := e.svc.Respond(ctx, inv.ID, "alice", models.InvitationDeclined)
		require.NoError(t, err)
		assert.Equal(t, models.InvitationDeclined, declined.Status)
	})

	t.Run("rejections", func(t *testing.T) {
		e := setup(t)
		inv, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{MemberID: "alice"})
		require.NoError(t, err)

		_, err = e.svc.Respond(ctx, inv.ID, "alice", models.InvitationCancelled)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
		_, err = e.svc.Respond(ctx, "missing", "alice", models.InvitationAccepted)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		_, err = e.svc.Respond(ctx, inv.ID, "outsider", models.InvitationAccepted)
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})

	t.Run("notification failure does not fail the response", func(t *testing.T) {
		mem := store.NewMemoryStore()
		seed := setupWithStore(t, mem)
		inv, err := seed.svc.Invite(ctx, seed.board.ID, "owner", InviteRequest{MemberID: "alice"})
		require.NoError(t, err)

		broken := setupWithStoreNoSeed(t, failingNotifications{Store: mem})
		got, err := broken.svc.Respond(ctx, inv.ID, "alice", models.InvitationAccepted)
		require.NoError(t, err)
		assert.Equal(t, models.InvitationAccepted, got.Status)
	})
}

// failingNotifications rejects every notification write.
type failingNotifications struct {
	store.Store
}

func (f failingNotifications) Set(ctx context.Context, collection, id string, value any) error {
	if collection == models.CollectionNotifications {
		return errors.New("notifications unavailable")
	}
	return f.Store.Set(ctx, collection, id, value)
}

func setupWithStoreNoSeed(t *testing.T, s store.Store) env {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	repo := repository.New(s)
	registry := realtime.NewRegistry()
	gateway := realtime.NewGateway(registry, log)
	locks := keylock.New()
	engine := notifications.NewEngine(repo, gateway, locks, log)
	dispatcher := hooks.NewDispatcher(log)
	svc := NewService(repo, engine, gateway, gateway, dispatcher, locks, nil, log)
	return env{svc: svc, repo: repo, engine: engine, registry: registry, hooks: dispatcher}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	inv, err := e.svc.Invite(ctx, e.board.ID, "member", InviteRequest{MemberID: "alice"})
	require.NoError(t, err)

	assert.True(t, apperr.Is(e.svc.Cancel(ctx, e.board.ID, inv.ID, "member"), apperr.KindForbidden))
	assert.True(t, apperr.Is(e.svc.Cancel(ctx, e.board.ID, "missing", "owner"), apperr.KindNotFound))

	require.NoError(t, e.svc.Cancel(ctx, e.board.ID, inv.ID, "owner"))

	got, err := e.repo.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationCancelled, got.Status)

	ns, err := e.repo.NotificationsForRecipient(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "cancelled", ns[0].Data.Status)

	assert.True(t, apperr.Is(e.svc.Cancel(ctx, e.board.ID, inv.ID, "owner"), apperr.KindBadRequest))
	_, err = e.svc.Respond(ctx, inv.ID, "alice", models.InvitationAccepted)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	t.Run("invitation from another board", func(t *testing.T) {
		other := &models.Board{Name: "Other", OwnerID: "owner"}
		require.NoError(t, e.repo.CreateBoard(ctx, other))
		inv, err := e.svc.Invite(ctx, other.ID, "owner", InviteRequest{MemberID: "alice"})
		require.NoError(t, err)
		assert.True(t, apperr.Is(e.svc.Cancel(ctx, e.board.ID, inv.ID, "owner"), apperr.KindNotFound))
	})
}

func TestRemoveAndLeave(t *testing.T) {
	ctx := context.Background()

	t.Run("owner removes member", func(t *testing.T) {
		e := setup(t)
		owner := e.connect("owner", e.board.ID)
		removed := e.connect("member", e.board.ID)

		require.NoError(t, e.svc.RemoveMember(ctx, e.board.ID, "member", "owner"))

		board, err := e.repo.GetBoard(ctx, e.board.ID)
		require.NoError(t, err)
		assert.False(t, board.IsMember("member"))
		assert.Equal(t, []string{realtime.EventMemberRemoved}, owner.events())
		assert.Equal(t, []string{realtime.EventMemberRemoved, realtime.EventRemovedFromBoard}, removed.events())

		// later board events no longer reach the removed user
		assert.False(t, e.registry.InRoom(removed.id, realtime.BoardRoom(e.board.ID)))
		e.svc.broadcaster.BroadcastToBoard(e.board.ID, realtime.BoardDeleted{BoardID: e.board.ID, DeletedBy: "owner"})
		assert.Equal(t, []string{realtime.EventMemberRemoved, realtime.EventBoardDeleted}, owner.events())
		assert.Equal(t, []string{realtime.EventMemberRemoved, realtime.EventRemovedFromBoard}, removed.events())
	})

	t.Run("remove rejections", func(t *testing.T) {
		e := setup(t)
		assert.True(t, apperr.Is(e.svc.RemoveMember(ctx, e.board.ID, "owner", "member"), apperr.KindForbidden))
		assert.True(t, apperr.Is(e.svc.RemoveMember(ctx, e.board.ID, "owner", "owner"), apperr.KindBadRequest))
		assert.True(t, apperr.Is(e.svc.RemoveMember(ctx, e.board.ID, "alice", "owner"), apperr.KindNotFound))
		assert.True(t, apperr.Is(e.svc.RemoveMember(ctx, "missing", "member", "owner"), apperr.KindNotFound))
	})

	t.Run("member leaves", func(t *testing.T) {
		e := setup(t)
		owner := e.connect("owner", e.board.ID)
		leaver := e.connect("member", e.board.ID)
		require.NoError(t, e.svc.Leave(ctx, e.board.ID, "member"))

		board, err := e.repo.GetBoard(ctx, e.board.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"owner"}, board.Members)
		assert.Equal(t, []string{realtime.EventMemberRemoved}, owner.events())
		assert.Equal(t, []string{realtime.EventMemberRemoved}, leaver.events())
		assert.False(t, e.registry.InRoom(leaver.id, realtime.BoardRoom(e.board.ID)))
		assert.True(t, e.registry.InRoom(leaver.id, realtime.UserRoom("member")))

		assert.True(t, apperr.Is(e.svc.Leave(ctx, e.board.ID, "member"), apperr.KindBadRequest))
	})

	t.Run("owner cannot leave", func(t *testing.T) {
		e := setup(t)
		assert.True(t, apperr.Is(e.svc.Leave(ctx, e.board.ID, "owner"), apperr.KindBadRequest))
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	inv, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{MemberID: "alice"})
	require.NoError(t, err)

	got, err := e.svc.InvitationStatus(ctx, inv.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.InvitationPending, got.Status)
	_, err = e.svc.InvitationStatus(ctx, inv.ID, "member")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	invs, err := e.svc.BoardInvitations(ctx, e.board.ID, "member")
	require.NoError(t, err)
	assert.Len(t, invs, 1)
	_, err = e.svc.BoardInvitations(ctx, e.board.ID, "alice")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	pending, err := e.svc.PendingInvitations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	members, err := e.svc.Members(ctx, e.board.ID, "member")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.True(t, members[0].IsOwner)
	assert.Equal(t, "Olivia", members[0].Name)
	_, err = e.svc.Members(ctx, e.board.ID, "alice")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	ok, err := e.svc.IsBoardMember(ctx, e.board.ID, "member")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.svc.IsBoardMember(ctx, "missing", "member")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmailInviteResolvedOnSignup(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	owner := e.connect("owner", e.board.ID)

	inv, err := e.svc.Invite(ctx, e.board.ID, "owner", InviteRequest{Email: "newcomer@example.com"})
	require.NoError(t, err)
	require.Empty(t, inv.MemberID)

	codes := auth.NewCodeService(e.repo, e.mailer, auth.NewJWTManager("secret", time.Hour), 10*time.Minute, logrus.NewEntry(logrus.New()))
	codes.OnSignup(e.svc.ResolveEmailInvitations)

	require.NoError(t, codes.SendCode(ctx, "newcomer@example.com"))
	e.mailer.mu.Lock()
	code := e.mailer.codes["newcomer@example.com"]
	e.mailer.mu.Unlock()
	login, err := codes.VerifyCode(ctx, "newcomer@example.com", code, "Newcomer")
	require.NoError(t, err)
	require.True(t, login.IsNew)
	userID := login.User.ID

	pending, err := e.svc.PendingInvitations(ctx, userID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, inv.ID, pending[0].ID)

	ns, err := e.repo.NotificationsForRecipient(ctx, userID)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, models.NotificationBoardInvitation, ns[0].Type)

	_, err = e.svc.Respond(ctx, inv.ID, userID, models.InvitationAccepted)
	require.NoError(t, err)

	board, err := e.repo.GetBoard(ctx, e.board.ID)
	require.NoError(t, err)
	assert.True(t, board.IsMember(userID))
	assert.Contains(t, owner.events(), realtime.EventMemberJoined)
}
