package notifications

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"taskboard/keylock"
	"taskboard/models"
	"taskboard/realtime"
)

// InvitationLockKey is the lock shared by every writer of an invitation's
// status.
func InvitationLockKey(invitationID string) string {
	return keylock.Key("invitation", invitationID)
}

// ReconcileInvitationResponse rewrites the responding user's notification
// for inv after an accept or decline. A prior accepted relabel is matched
// too, so running it again after a partial failure converges. Finding no
// notification is not an error.
func (e *Engine) ReconcileInvitationResponse(ctx context.Context, inv *models.Invitation, status models.InvitationStatus, userID string) error {
	ns, err := e.repo.NotificationsForInvitation(ctx, inv.ID)
	if err != nil {
		return err
	}

	for i := range ns {
		n := ns[i]
		if n.RecipientID != userID {
			continue
		}
		if n.Type != models.NotificationBoardInvitation && n.Type != models.NotificationBoardInvitationAccepted {
			continue
		}

		boardName := n.Data.BoardName
		if boardName == "" {
			boardName = inv.BoardName
		}
		if boardName == "" {
			boardName = "board"
		}

		switch status {
		case models.InvitationAccepted:
			n.Type = models.NotificationBoardInvitationAccepted
			n.Message = fmt.Sprintf("You accepted the invitation to join \"%s\"", boardName)
		case models.InvitationDeclined:
			n.Message = fmt.Sprintf("You declined the invitation to join \"%s\"", boardName)
		default:
			continue
		}
		n.Read = true
		n.Data.Status = string(status)
		n.Data.InvitationID = inv.ID
		if n.Data.BoardName == "" {
			n.Data.BoardName = inv.BoardName
		}

		if err := e.repo.SaveNotification(ctx, &n); err != nil {
			return err
		}
		e.pushUpdated(userID, &n)
	}
	return nil
}

// ReconcileInvitationCancelled marks every notification mirroring inv as
// cancelled so the invitee can no longer act on it.
func (e *Engine) ReconcileInvitationCancelled(ctx context.Context, inv *models.Invitation) error {
	ns, err := e.repo.NotificationsForInvitation(ctx, inv.ID)
	if err != nil {
		return err
	}
	for i := range ns {
		n := ns[i]
		if n.Type != models.NotificationBoardInvitation {
			continue
		}
		n.Message = fmt.Sprintf("The invitation to join \"%s\" was cancelled", inv.BoardName)
		n.Read = true
		n.Data.Status = string(models.InvitationCancelled)
		if err := e.repo.SaveNotification(ctx, &n); err != nil {
			return err
		}
		e.pushUpdated(n.RecipientID, &n)
	}
	return nil
}

func (e *Engine) pushUpdated(userID string, n *models.Notification) {
	e.broadcaster.SendToUser(userID, realtime.NotificationUpdated{
		NotificationID: n.ID,
		Notification:   n,
		Action:         ActionUpdated,
	})
}

// Delete removes a notification owned by userID. Dismissing an unanswered
// board invitation declines the invitation, provided it is still pending.
func (e *Engine) Delete(ctx context.Context, id, userID string) error {
	n, err := e.owned(ctx, id, userID)
	if err != nil {
		return err
	}

	e.OnNotificationDeleted(ctx, n, userID)

	if err := e.repo.DeleteNotification(ctx, id); err != nil {
		return err
	}
	e.broadcaster.SendToUser(userID, realtime.NotificationDeleted{NotificationID: id})
	return nil
}

// OnNotificationDeleted applies the implicit decline. Failures are logged
// and never stop the deletion.
func (e *Engine) OnNotificationDeleted(ctx context.Context, n *models.Notification, userID string) {
	if !n.IsUnactionedInvitation() || n.Data.InvitationID == "" {
		return
	}
	declined, err := e.declineIfPending(ctx, n.Data.InvitationID, userID)
	log := e.log.WithFields(logrus.Fields{
		"invitation_id":   n.Data.InvitationID,
		"notification_id": n.ID,
	})
	if err != nil {
		log.WithError(err).Warn("failed to auto-decline invitation")
		return
	}
	if declined {
		log.Info("invitation declined by dismissing its notification")
	}
}

// declineIfPending re-reads the invitation under its lock and declines it
// only if it is still pending and addressed to userID.
func (e *Engine) declineIfPending(ctx context.Context, invitationID, userID string) (bool, error) {
	unlock := e.locks.Lock(InvitationLockKey(invitationID))
	defer unlock()

	inv, err := e.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return false, err
	}
	if inv.Status != models.InvitationPending || !inv.IsInvitee(userID) {
		return false, nil
	}
	now := e.repo.Now()
	err = e.repo.UpdateInvitation(ctx, invitationID, map[string]any{
		"status":      models.InvitationDeclined,
		"respondedAt": now,
	})
	return err == nil, err
}
