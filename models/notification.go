package models

import "time"

const CollectionNotifications = "notifications"

type NotificationType string

const (
	NotificationBoardInvitation         NotificationType = "board_invitation"
	NotificationBoardInvitationAccepted NotificationType = "board_invitation_accepted"
	NotificationTaskAssigned            NotificationType = "task_assigned"
	NotificationBoardMemberAdded        NotificationType = "board_member_added"
	NotificationTaskComment             NotificationType = "task_comment"
)

type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipientId"`
	SenderID    string           `json:"senderId,omitempty"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        NotificationData `json:"data"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// NotificationData is the denormalised context of a notification. For
// invitation notifications InvitationID and Status mirror the invitation.
type NotificationData struct {
	InvitationID string `json:"invitationId,omitempty"`
	BoardID      string `json:"boardId,omitempty"`
	BoardName    string `json:"boardName,omitempty"`
	SenderName   string `json:"senderName,omitempty"`
	Status       string `json:"status,omitempty"`
	CardID       string `json:"cardId,omitempty"`
	TaskID       string `json:"taskId,omitempty"`
	TaskTitle    string `json:"taskTitle,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

// IsUnactionedInvitation reports whether this is a board invitation the
// recipient has not responded to yet.
func (n Notification) IsUnactionedInvitation() bool {
	return n.Type == NotificationBoardInvitation &&
		(n.Data.Status == "" || n.Data.Status == string(InvitationPending))
}
