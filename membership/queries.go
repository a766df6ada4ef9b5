package membership

import (
	"context"

	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/models"
)

// Member is one entry of a board's member listing.
type Member struct {
	models.PublicUser
	IsOwner bool `json:"isOwner"`
}

// IsBoardMember reports whether userID belongs to boardID. A missing board
// is reported as not a member.
func (s *Service) IsBoardMember(ctx context.Context, boardID, userID string) (bool, error) {
	board, err := s.repo.GetBoard(ctx, boardID)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return board.IsMember(userID), nil
}

// Members lists the board's members for a caller who is one of them.
// Members whose account cannot be loaded are skipped.
func (s *Service) Members(ctx context.Context, boardID, userID string) ([]Member, error) {
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if !board.IsMember(userID) {
		return nil, apperr.Forbidden("you are not a member of this board")
	}

	members := make([]Member, 0, len(board.Members))
	for _, id := range board.Members {
		u, err := s.repo.GetUser(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("member_id", id).Warn("failed to load board member")
			continue
		}
		members = append(members, Member{PublicUser: u.Public(), IsOwner: board.IsOwner(id)})
	}
	return members, nil
}

// InvitationStatus returns an invitation to its invitee.
func (s *Service) InvitationStatus(ctx context.Context, invitationID, userID string) (*models.Invitation, error) {
	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if !inv.IsInvitee(userID) {
		return nil, apperr.Forbidden("you are not authorized to view this invitation")
	}
	return inv, nil
}

// BoardInvitations lists every invitation of a board, newest first.
func (s *Service) BoardInvitations(ctx context.Context, boardID, userID string) ([]models.Invitation, error) {
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if !board.IsMember(userID) {
		return nil, apperr.Forbidden("you are not authorized to view this board's invitations")
	}
	return s.repo.InvitationsForBoard(ctx, boardID)
}

// PendingInvitations lists the pending invitations addressed to userID.
func (s *Service) PendingInvitations(ctx context.Context, userID string) ([]models.Invitation, error) {
	invs, err := s.repo.InvitationsForMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending := invs[:0]
	for _, inv := range invs {
		if inv.Status == models.InvitationPending {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}

// ResolveEmailInvitations binds pending email-only invitations to a newly
// registered user and mirrors each into a board_invitation notification.
// It is registered as a signup hook.
func (s *Service) ResolveEmailInvitations(ctx context.Context, user *models.User) error {
	invs, err := s.repo.InvitationsForEmail(ctx, user.Email)
	if err != nil {
		return err
	}

	resolved := 0
	for i := range invs {
		inv := invs[i]
		if inv.Status != models.InvitationPending || inv.MemberID != "" {
			continue
		}
		if err := s.bind(ctx, &inv, user.ID); err != nil {
			return err
		}
		resolved++
		s.hooks.Run(ctx, "invitation_notification", func(ctx context.Context) error {
			_, err := s.notifications.NotifyBoardInvitation(ctx, &inv)
			return err
		})
	}

	if resolved > 0 {
		s.log.WithFields(logrus.Fields{
			"user_id":     user.ID,
			"invitations": resolved,
		}).Info("email invitations resolved")
	}
	return nil
}

func (s *Service) bind(ctx context.Context, inv *models.Invitation, userID string) error {
	unlock := s.locks.Lock(inviteLockKey(inv.BoardID, inv.MemberEmail))
	defer unlock()
	if err := s.repo.UpdateInvitation(ctx, inv.ID, map[string]any{"memberId": userID}); err != nil {
		return err
	}
	inv.MemberID = userID
	return nil
}
