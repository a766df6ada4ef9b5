// Package notifications keeps notification records in step with the events
// they describe and pushes every change to the recipient's live connections.
//
// The store offers no uniqueness constraints, so duplicate detection is
// check-then-act. Within one process the check and the create run under a
// per-correlation-key lock; across processes duplicates remain possible.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/keylock"
	"taskboard/models"
	"taskboard/realtime"
	"taskboard/repository"
)

const (
	DefaultListLimit = 50
	ActionUpdated    = "updated"
	AllNotifications = "all"
)

type Engine struct {
	repo        *repository.Repository
	broadcaster realtime.Broadcaster
	locks       *keylock.Locker
	log         *logrus.Entry
}

func NewEngine(repo *repository.Repository, broadcaster realtime.Broadcaster, locks *keylock.Locker, log *logrus.Entry) *Engine {
	return &Engine{
		repo:        repo,
		broadcaster: broadcaster,
		locks:       locks,
		log:         log,
	}
}

// Draft describes a notification to create. Type, SenderID and the
// correlating data fields (BoardName, InvitationID, TaskID) identify the
// logical event for duplicate detection.
type Draft struct {
	Type        models.NotificationType
	RecipientID string
	SenderID    string
	Title       string
	Message     string
	Data        models.NotificationData
}

func (d Draft) lockKey() string {
	return keylock.Key("notification", d.RecipientID, string(d.Type), d.SenderID,
		d.Data.BoardName, d.Data.InvitationID, d.Data.TaskID)
}

func (d Draft) matches(n models.Notification) bool {
	return n.Type == d.Type &&
		n.SenderID == d.SenderID &&
		n.Data.BoardName == d.Data.BoardName &&
		n.Data.InvitationID == d.Data.InvitationID &&
		n.Data.TaskID == d.Data.TaskID
}

// CreateIfAbsent persists the draft unless a notification for the same
// logical event already exists for the recipient. It returns the stored
// record and whether it was created by this call. Only a created record is
// pushed as new_notification.
func (e *Engine) CreateIfAbsent(ctx context.Context, d Draft) (*models.Notification, bool, error) {
	if d.RecipientID == "" {
		return nil, false, apperr.BadRequest("notification recipient required")
	}

	unlock := e.locks.Lock(d.lockKey())
	defer unlock()

	existing, err := e.repo.NotificationsForRecipient(ctx, d.RecipientID)
	if err != nil {
		return nil, false, err
	}
	for i := range existing {
		if d.matches(existing[i]) {
			e.log.WithFields(logrus.Fields{
				"notification_id": existing[i].ID,
				"type":            d.Type,
			}).Debug("duplicate notification skipped")
			return &existing[i], false, nil
		}
	}

	n := &models.Notification{
		RecipientID: d.RecipientID,
		SenderID:    d.SenderID,
		Type:        d.Type,
		Title:       d.Title,
		Message:     d.Message,
		Data:        d.Data,
	}
	if err := e.repo.CreateNotification(ctx, n); err != nil {
		return nil, false, err
	}
	e.broadcaster.SendToUser(n.RecipientID, realtime.NewNotification{Notification: *n})
	return n, true, nil
}

func (e *Engine) senderName(ctx context.Context, senderID string) string {
	if senderID == "" {
		return "Someone"
	}
	u, err := e.repo.GetUser(ctx, senderID)
	if err != nil {
		return "Someone"
	}
	return u.DisplayName()
}

// NotifyBoardInvitation mirrors inv into a board_invitation notification
// for the resolved invitee.
func (e *Engine) NotifyBoardInvitation(ctx context.Context, inv *models.Invitation) (*models.Notification, error) {
	if inv.MemberID == "" {
		return nil, apperr.BadRequest("invitation has no resolved invitee")
	}
	sender := e.senderName(ctx, inv.InviterID)
	n, _, err := e.CreateIfAbsent(ctx, Draft{
		Type:        models.NotificationBoardInvitation,
		RecipientID: inv.MemberID,
		SenderID:    inv.InviterID,
		Title:       "Board Invitation",
		Message:     fmt.Sprintf("%s invited you to join \"%s\"", sender, inv.BoardName),
		Data: models.NotificationData{
			InvitationID: inv.ID,
			BoardID:      inv.BoardID,
			BoardName:    inv.BoardName,
			SenderName:   sender,
			Status:       string(inv.Status),
		},
	})
	return n, err
}

// NotifyTaskAssigned tells assigneeID that senderID assigned them to task.
func (e *Engine) NotifyTaskAssigned(ctx context.Context, task *models.Task, assigneeID, senderID string) (*models.Notification, error) {
	sender := e.senderName(ctx, senderID)
	n, _, err := e.CreateIfAbsent(ctx, Draft{
		Type:        models.NotificationTaskAssigned,
		RecipientID: assigneeID,
		SenderID:    senderID,
		Title:       "Task Assigned",
		Message:     fmt.Sprintf("%s assigned you to \"%s\"", sender, task.Title),
		Data: models.NotificationData{
			BoardID:    task.BoardID,
			CardID:     task.CardID,
			TaskID:     task.ID,
			TaskTitle:  task.Title,
			SenderName: sender,
		},
	})
	return n, err
}

// WithdrawTaskAssignment deletes assigneeID's task_assigned notifications
// for taskID so that a later assignment is announced again.
func (e *Engine) WithdrawTaskAssignment(ctx context.Context, assigneeID, taskID string) (int, error) {
	existing, err := e.repo.NotificationsForRecipient(ctx, assigneeID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, n := range existing {
		if n.Type != models.NotificationTaskAssigned || n.Data.TaskID != taskID {
			continue
		}
		d := Draft{Type: n.Type, RecipientID: n.RecipientID, SenderID: n.SenderID, Data: n.Data}
		unlock := e.locks.Lock(d.lockKey())
		err := e.repo.DeleteNotification(ctx, n.ID)
		unlock()
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return removed, err
		}
		if err == nil {
			removed++
			e.broadcaster.SendToUser(assigneeID, realtime.NotificationDeleted{NotificationID: n.ID})
		}
	}
	return removed, nil
}

// NotifyMemberJoined tells the inviter that newMemberID joined the board.
func (e *Engine) NotifyMemberJoined(ctx context.Context, inv *models.Invitation, newMemberID string) (*models.Notification, error) {
	member := e.senderName(ctx, newMemberID)
	n, _, err := e.CreateIfAbsent(ctx, Draft{
		Type:        models.NotificationBoardMemberAdded,
		RecipientID: inv.InviterID,
		SenderID:    newMemberID,
		Title:       "New Board Member",
		Message:     fmt.Sprintf("%s joined \"%s\"", member, inv.BoardName),
		Data: models.NotificationData{
			InvitationID: inv.ID,
			BoardID:      inv.BoardID,
			BoardName:    inv.BoardName,
			SenderName:   member,
		},
	})
	return n, err
}

// List returns the user's notifications, newest first.
func (e *Engine) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	ns, err := e.repo.NotificationsForRecipient(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ns) > limit {
		ns = ns[:limit]
	}
	return ns, nil
}

func (e *Engine) UnreadCount(ctx context.Context, userID string) (int, error) {
	ns, err := e.repo.NotificationsForRecipient(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range ns {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (e *Engine) owned(ctx context.Context, id, userID string) (*models.Notification, error) {
	n, err := e.repo.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != userID {
		return nil, apperr.Forbidden("access denied")
	}
	return n, nil
}

func (e *Engine) MarkRead(ctx context.Context, id, userID string) error {
	if _, err := e.owned(ctx, id, userID); err != nil {
		return err
	}
	if err := e.repo.UpdateNotification(ctx, id, map[string]any{"read": true}); err != nil {
		return err
	}
	e.broadcaster.SendToUser(userID, realtime.NotificationUpdated{
		NotificationID: id,
		Updates:        &realtime.NotificationPatch{Read: true},
	})
	return nil
}

// MarkAllRead marks every unread notification of userID and returns how
// many changed.
func (e *Engine) MarkAllRead(ctx context.Context, userID string) (int, error) {
	ns, err := e.repo.NotificationsForRecipient(ctx, userID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, n := range ns {
		if n.Read {
			continue
		}
		if err := e.repo.UpdateNotification(ctx, n.ID, map[string]any{"read": true}); err != nil {
			return changed, err
		}
		changed++
	}
	e.broadcaster.SendToUser(userID, realtime.NotificationUpdated{
		NotificationID: AllNotifications,
		Updates:        &realtime.NotificationPatch{Read: true},
	})
	return changed, nil
}

// DeleteOlderThan removes notifications created before cutoff.
func (e *Engine) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	old, err := e.repo.NotificationsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for i, n := range old {
		if err := e.repo.DeleteNotification(ctx, n.ID); err != nil {
			return i, err
		}
	}
	return len(old), nil
}
