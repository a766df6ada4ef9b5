// Package membership owns the invitation lifecycle and the board member set.
//
// Invitation states are pending, accepted, declined and cancelled; every
// state but pending is absorbing. Uniqueness of a pending invitation per
// (board, invitee) is a check-then-act over the store. Inside one process
// the check and the create run under a keylock; separate processes sharing
// a store can still race.
package membership

import (
	"context"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/hooks"
	"taskboard/keylock"
	"taskboard/models"
	"taskboard/notifications"
	"taskboard/realtime"
	"taskboard/repository"
)

// InvitationMailer delivers invitation emails.
type InvitationMailer interface {
	SendInvitation(to, boardName, inviterName string) error
}

type Service struct {
	repo          *repository.Repository
	notifications *notifications.Engine
	broadcaster   realtime.Broadcaster
	rooms         realtime.RoomEvictor
	hooks         *hooks.Dispatcher
	locks         *keylock.Locker
	mailer        InvitationMailer
	log           *logrus.Entry
}

func NewService(
	repo *repository.Repository,
	engine *notifications.Engine,
	broadcaster realtime.Broadcaster,
	rooms realtime.RoomEvictor,
	dispatcher *hooks.Dispatcher,
	locks *keylock.Locker,
	mailer InvitationMailer,
	log *logrus.Entry,
) *Service {
	return &Service{
		repo:          repo,
		notifications: engine,
		broadcaster:   broadcaster,
		rooms:         rooms,
		hooks:         dispatcher,
		locks:         locks,
		mailer:        mailer,
		log:           log,
	}
}

// BoardLockKey guards read-modify-write changes to a board's member set.
func BoardLockKey(boardID string) string {
	return keylock.Key("board", boardID)
}

func inviteLockKey(boardID, invitee string) string {
	return keylock.Key("invite", boardID, invitee)
}

// InviteRequest names the invitee by user id, by email, or both.
type InviteRequest struct {
	MemberID string `json:"member_id"`
	Email    string `json:"email"`
}

// Invite creates a pending invitation to boardID on behalf of inviterID.
// An email belonging to a registered user is resolved to that user first.
func (s *Service) Invite(ctx context.Context, boardID, inviterID string, req InviteRequest) (*models.Invitation, error) {
	memberID := strings.TrimSpace(req.MemberID)
	email := repository.NormalizeEmail(req.Email)
	if memberID == "" && email == "" {
		return nil, apperr.BadRequest("member_id or email is required")
	}
	if email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			return nil, apperr.BadRequest("invalid email address")
		}
	}

	if memberID == "" {
		u, err := s.repo.FindUserByEmail(ctx, email)
		switch {
		case err == nil:
			memberID = u.ID
		case !apperr.Is(err, apperr.KindNotFound):
			s.log.WithError(err).WithField("email", email).Warn("could not resolve invitee email")
		}
	}

	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if !board.IsMember(inviterID) {
		return nil, apperr.Forbidden("you are not authorized to invite members to this board")
	}
	if memberID != "" && board.IsMember(memberID) {
		return nil, apperr.Conflict("this user is already a member of the board")
	}

	// An email-only invitation sent before the invitee registered still
	// counts as pending for them, so id invites look up by address too.
	lookupEmail := email
	if lookupEmail == "" {
		lookupEmail = s.inviteeEmail(ctx, memberID)
	}
	invitee := lookupEmail
	if invitee == "" {
		invitee = memberID
	}
	unlock := s.locks.Lock(inviteLockKey(boardID, invitee))
	defer unlock()

	existing, err := s.repo.FindPendingInvitation(ctx, boardID, memberID, lookupEmail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("an invitation has already been sent to this user")
	}

	inv := &models.Invitation{
		BoardID:     boardID,
		BoardName:   board.Name,
		OwnerID:     board.OwnerID,
		InviterID:   inviterID,
		MemberID:    memberID,
		MemberEmail: email,
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"board_id":      boardID,
		"inviter_id":    inviterID,
	}).Info("invitation created")

	s.afterInvite(ctx, inv)
	return inv, nil
}

func (s *Service) inviteeEmail(ctx context.Context, userID string) string {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			s.log.WithError(err).WithField("member_id", userID).Warn("could not load invitee")
		}
		return ""
	}
	return repository.NormalizeEmail(u.Email)
}

func (s *Service) afterInvite(ctx context.Context, inv *models.Invitation) {
	if inv.MemberEmail != "" && s.mailer != nil {
		sent := *inv
		s.hooks.Go(ctx, "invitation_email", func(ctx context.Context) error {
			return s.mailer.SendInvitation(sent.MemberEmail, sent.BoardName, s.displayName(ctx, sent.InviterID))
		})
	}
	if inv.MemberID != "" {
		s.hooks.Run(ctx, "invitation_notification", func(ctx context.Context) error {
			_, err := s.notifications.NotifyBoardInvitation(ctx, inv)
			return err
		})
	}
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return "A teammate"
	}
	return u.DisplayName()
}

// Respond applies the invitee's decision to a pending invitation. An
// invitation that is already terminal is reported as not found.
func (s *Service) Respond(ctx context.Context, invitationID, userID string, decision models.InvitationStatus) (*models.Invitation, error) {
	if decision != models.InvitationAccepted && decision != models.InvitationDeclined {
		return nil, apperr.BadRequest(`status must be either "accepted" or "declined"`)
	}
	if invitationID == "" {
		return nil, apperr.BadRequest("invitation id is required")
	}

	unlock := s.locks.Lock(notifications.InvitationLockKey(invitationID))
	defer unlock()

	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if !inv.IsInvitee(userID) {
		return nil, apperr.Forbidden("you are not authorized to respond to this invitation")
	}
	if inv.Status != models.InvitationPending {
		return nil, apperr.NotFound("invitation not found or already answered")
	}

	now := s.repo.Now()
	if err := s.repo.UpdateInvitation(ctx, inv.ID, map[string]any{
		"status":      decision,
		"respondedAt": now,
	}); err != nil {
		return nil, err
	}
	inv.Status = decision
	inv.RespondedAt = &now

	if decision == models.InvitationAccepted {
		if err := s.join(ctx, inv, userID); err != nil {
			s.revert(ctx, inv)
			return nil, err
		}
		s.broadcaster.BroadcastToBoard(inv.BoardID, realtime.MemberJoined{
			BoardID:     inv.BoardID,
			NewMemberID: userID,
			JoinedAt:    now,
		})
		s.hooks.Run(ctx, "member_joined_notification", func(ctx context.Context) error {
			_, err := s.notifications.NotifyMemberJoined(ctx, inv, userID)
			return err
		})
	}

	s.hooks.Run(ctx, "invitation_response_reconcile", func(ctx context.Context) error {
		return s.notifications.ReconcileInvitationResponse(ctx, inv, decision, userID)
	})

	s.log.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"board_id":      inv.BoardID,
		"status":        decision,
	}).Info("invitation answered")
	return inv, nil
}

func (s *Service) join(ctx context.Context, inv *models.Invitation, userID string) error {
	unlock := s.locks.Lock(BoardLockKey(inv.BoardID))
	defer unlock()
	_, err := s.repo.AddMember(ctx, inv.BoardID, userID)
	return err
}

// revert puts an accepted invitation back to pending when the member could
// not be added, so the invitee can retry.
func (s *Service) revert(ctx context.Context, inv *models.Invitation) {
	err := s.repo.UpdateInvitation(ctx, inv.ID, map[string]any{
		"status":      models.InvitationPending,
		"respondedAt": nil,
	})
	if err != nil {
		s.log.WithError(err).WithField("invitation_id", inv.ID).Error("failed to revert invitation after member add failure")
	}
}

// Cancel withdraws a pending invitation. Only the board owner may cancel.
func (s *Service) Cancel(ctx context.Context, boardID, invitationID, userID string) error {
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if !board.IsOwner(userID) {
		return apperr.Forbidden("only the board owner can cancel invitations")
	}

	unlock := s.locks.Lock(notifications.InvitationLockKey(invitationID))
	defer unlock()

	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.BoardID != boardID {
		return apperr.NotFound("invitation not found for this board")
	}
	if inv.Status != models.InvitationPending {
		return apperr.BadRequest("only pending invitations can be cancelled")
	}

	now := s.repo.Now()
	if err := s.repo.UpdateInvitation(ctx, inv.ID, map[string]any{
		"status":      models.InvitationCancelled,
		"respondedAt": now,
	}); err != nil {
		return err
	}
	inv.Status = models.InvitationCancelled
	inv.RespondedAt = &now

	s.hooks.Run(ctx, "invitation_cancel_reconcile", func(ctx context.Context) error {
		return s.notifications.ReconcileInvitationCancelled(ctx, inv)
	})
	return nil
}

// RemoveMember lets the owner remove memberID from the board.
func (s *Service) RemoveMember(ctx context.Context, boardID, memberID, userID string) error {
	unlock := s.locks.Lock(BoardLockKey(boardID))
	defer unlock()

	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if !board.IsOwner(userID) {
		return apperr.Forbidden("only the board owner can remove members")
	}
	if memberID == board.OwnerID {
		return apperr.BadRequest("the board owner cannot be removed from the board")
	}
	if !board.IsMember(memberID) {
		return apperr.NotFound("member not found on this board")
	}
	if _, err := s.repo.RemoveMember(ctx, boardID, memberID); err != nil {
		return err
	}

	s.broadcaster.BroadcastToBoard(boardID, realtime.MemberRemoved{
		BoardID:         boardID,
		RemovedMemberID: memberID,
		RemovedBy:       userID,
	})
	s.rooms.EvictFromBoard(boardID, memberID)
	s.broadcaster.SendToUser(memberID, realtime.RemovedFromBoard{
		BoardID:   boardID,
		BoardName: board.Name,
		RemovedBy: userID,
	})
	return nil
}

// Leave removes userID from the board. The owner cannot leave.
func (s *Service) Leave(ctx context.Context, boardID, userID string) error {
	unlock := s.locks.Lock(BoardLockKey(boardID))
	defer unlock()

	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if !board.IsMember(userID) {
		return apperr.BadRequest("you are not a member of this board")
	}
	if board.IsOwner(userID) {
		return apperr.BadRequest("board owner cannot leave the board, transfer ownership or delete the board instead")
	}
	if _, err := s.repo.RemoveMember(ctx, boardID, userID); err != nil {
		return err
	}

	s.broadcaster.BroadcastToBoard(boardID, realtime.MemberRemoved{
		BoardID:         boardID,
		RemovedMemberID: userID,
		LeftVoluntarily: true,
	})
	s.rooms.EvictFromBoard(boardID, userID)
	return nil
}
