package realtime

import (
	"time"

	"taskboard/models"
)

// Event is a payload pushed over the live channel. The set of events is
// closed: every implementation lives in this file.
type Event interface {
	EventName() string
	event()
}

const (
	EventBoardCreated           = "board_created"
	EventBoardUpdated           = "board_updated"
	EventBoardDeleted           = "board_deleted"
	EventMemberJoined           = "member_joined"
	EventMemberRemoved          = "member_removed"
	EventRemovedFromBoard       = "removed_from_board"
	EventCardCreated            = "card_created"
	EventCardUpdated            = "card_updated"
	EventCardDeleted            = "card_deleted"
	EventCardMoved              = "card_moved"
	EventCardsReordered         = "cards_reordered"
	EventCardMembersAssigned    = "card_members_assigned"
	EventTaskCreated            = "task_created"
	EventTaskUpdated            = "task_updated"
	EventTaskDeleted            = "task_deleted"
	EventTaskStatusChanged      = "task_status_changed"
	EventTaskAssigned           = "task_assigned"
	EventTaskUnassigned         = "task_unassigned"
	EventAttachmentAdded        = "github_attachment_added"
	EventAttachmentRemoved      = "github_attachment_removed"
	EventNewNotification        = "new_notification"
	EventNotificationUpdated    = "notification_updated"
	EventNotificationDeleted    = "notification_deleted"
	EventNotificationMarkedRead = "notification_marked_read"
	EventUserJoined             = "user_joined"
	EventUserLeft               = "user_left"
	EventError                  = "error"
)

// Actor identifies the user behind a client-originated event.
type Actor struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
}

type BoardCreated struct {
	models.Board
}

type BoardUpdated struct {
	models.Board
	UpdatedBy string `json:"updatedBy"`
}

type BoardDeleted struct {
	BoardID   string `json:"boardId"`
	DeletedBy string `json:"deletedBy"`
}

type MemberJoined struct {
	BoardID     string    `json:"boardId"`
	NewMemberID string    `json:"newMemberId"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type MemberRemoved struct {
	BoardID         string `json:"boardId"`
	RemovedMemberID string `json:"removedMemberId"`
	RemovedBy       string `json:"removedBy,omitempty"`
	LeftVoluntarily bool   `json:"leftVoluntarily,omitempty"`
}

type RemovedFromBoard struct {
	BoardID   string `json:"boardId"`
	BoardName string `json:"boardName"`
	RemovedBy string `json:"removedBy"`
}

type CardCreated struct {
	models.Card
}

type CardUpdated struct {
	models.Card
}

type CardDeleted struct {
	CardID    string `json:"cardId"`
	BoardID   string `json:"boardId"`
	DeletedBy string `json:"deletedBy"`
}

type CardMoved struct {
	models.Card
}

type CardPosition struct {
	CardID   string `json:"cardId"`
	Position int    `json:"position"`
}

type CardsReordered struct {
	BoardID       string         `json:"boardId"`
	CardPositions []CardPosition `json:"cardPositions"`
	ReorderedBy   string         `json:"reorderedBy"`
	Timestamp     int64          `json:"timestamp"`
}

type CardMembersAssigned struct {
	CardID          string      `json:"cardId"`
	AssignedMembers []string    `json:"assignedMembers"`
	AssignedBy      string      `json:"assignedBy"`
	Card            models.Card `json:"card"`
}

type TaskCreated struct {
	Task    models.Task `json:"task"`
	CardID  string      `json:"cardId"`
	BoardID string      `json:"boardId"`
}

// TaskUpdated is emitted by the server after a write and echoed between
// clients for optimistic updates; clients send Updates instead of Task.
type TaskUpdated struct {
	TaskID    string         `json:"taskId"`
	CardID    string         `json:"cardId,omitempty"`
	BoardID   string         `json:"boardId"`
	Task      *models.Task   `json:"task,omitempty"`
	Updates   map[string]any `json:"updates,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	UpdatedBy Actor          `json:"updatedBy"`
}

type TaskDeleted struct {
	TaskID    string `json:"taskId"`
	CardID    string `json:"cardId"`
	BoardID   string `json:"boardId"`
	DeletedBy string `json:"deletedBy"`
}

type TaskStatusChanged struct {
	Task      models.Task `json:"task"`
	CardID    string      `json:"cardId"`
	BoardID   string      `json:"boardId"`
	OldStatus string      `json:"oldStatus"`
	NewStatus string      `json:"newStatus"`
	ChangedBy string      `json:"changedBy"`
}

type TaskAssigned struct {
	TaskID     string      `json:"taskId"`
	CardID     string      `json:"cardId"`
	BoardID    string      `json:"boardId"`
	MemberID   string      `json:"memberId"`
	AssignedBy string      `json:"assignedBy"`
	Task       models.Task `json:"task"`
}

type TaskUnassigned struct {
	TaskID       string      `json:"taskId"`
	CardID       string      `json:"cardId"`
	BoardID      string      `json:"boardId"`
	MemberID     string      `json:"memberId"`
	UnassignedBy string      `json:"unassignedBy"`
	Task         models.Task `json:"task"`
}

type AttachmentAdded struct {
	TaskID     string                  `json:"taskId"`
	CardID     string                  `json:"cardId"`
	BoardID    string                  `json:"boardId"`
	Attachment models.GitHubAttachment `json:"attachment"`
	Timestamp  int64                   `json:"timestamp"`
	AddedBy    Actor                   `json:"addedBy"`
}

type AttachmentRemoved struct {
	TaskID       string `json:"taskId"`
	CardID       string `json:"cardId"`
	BoardID      string `json:"boardId"`
	AttachmentID string `json:"attachmentId"`
	Timestamp    int64  `json:"timestamp"`
	RemovedBy    Actor  `json:"removedBy"`
}

type NewNotification struct {
	models.Notification
}

// NotificationUpdated carries either the full record (Action "updated") or a
// partial Updates patch.
type NotificationUpdated struct {
	NotificationID string               `json:"notificationId"`
	Notification   *models.Notification `json:"notification,omitempty"`
	Updates        *NotificationPatch   `json:"updates,omitempty"`
	Action         string               `json:"action,omitempty"`
}

type NotificationPatch struct {
	Read bool `json:"isRead"`
}

type NotificationDeleted struct {
	NotificationID string `json:"notificationId"`
}

type NotificationMarkedRead struct {
	NotificationID string `json:"notificationId"`
}

type UserJoined struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	BoardID   string `json:"boardId"`
}

type UserLeft struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	BoardID   string `json:"boardId"`
}

// SocketError is sent only to the connection whose message was rejected.
type SocketError struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

func (BoardCreated) EventName() string           { return EventBoardCreated }
func (BoardUpdated) EventName() string           { return EventBoardUpdated }
func (BoardDeleted) EventName() string           { return EventBoardDeleted }
func (MemberJoined) EventName() string           { return EventMemberJoined }
func (MemberRemoved) EventName() string          { return EventMemberRemoved }
func (RemovedFromBoard) EventName() string       { return EventRemovedFromBoard }
func (CardCreated) EventName() string            { return EventCardCreated }
func (CardUpdated) EventName() string            { return EventCardUpdated }
func (CardDeleted) EventName() string            { return EventCardDeleted }
func (CardMoved) EventName() string              { return EventCardMoved }
func (CardsReordered) EventName() string         { return EventCardsReordered }
func (CardMembersAssigned) EventName() string    { return EventCardMembersAssigned }
func (TaskCreated) EventName() string            { return EventTaskCreated }
func (TaskUpdated) EventName() string            { return EventTaskUpdated }
func (TaskDeleted) EventName() string            { return EventTaskDeleted }
func (TaskStatusChanged) EventName() string      { return EventTaskStatusChanged }
func (TaskAssigned) EventName() string           { return EventTaskAssigned }
func (TaskUnassigned) EventName() string         { return EventTaskUnassigned }
func (AttachmentAdded) EventName() string        { return EventAttachmentAdded }
func (AttachmentRemoved) EventName() string      { return EventAttachmentRemoved }
func (NewNotification) EventName() string        { return EventNewNotification }
func (NotificationUpdated) EventName() string    { return EventNotificationUpdated }
func (NotificationDeleted) EventName() string    { return EventNotificationDeleted }
func (NotificationMarkedRead) EventName() string { return EventNotificationMarkedRead }
func (UserJoined) EventName() string             { return EventUserJoined }
func (UserLeft) EventName() string               { return EventUserLeft }
func (SocketError) EventName() string            { return EventError }

func (BoardCreated) event()           {}
func (BoardUpdated) event()           {}
func (BoardDeleted) event()           {}
func (MemberJoined) event()           {}
func (MemberRemoved) event()          {}
func (RemovedFromBoard) event()       {}
func (CardCreated) event()            {}
func (CardUpdated) event()            {}
func (CardDeleted) event()            {}
func (CardMoved) event()              {}
func (CardsReordered) event()         {}
func (CardMembersAssigned) event()    {}
func (TaskCreated) event()            {}
func (TaskUpdated) event()            {}
func (TaskDeleted) event()            {}
func (TaskStatusChanged) event()      {}
func (TaskAssigned) event()           {}
func (TaskUnassigned) event()         {}
func (AttachmentAdded) event()        {}
func (AttachmentRemoved) event()      {}
func (NewNotification) event()        {}
func (NotificationUpdated) event()    {}
func (NotificationDeleted) event()    {}
func (NotificationMarkedRead) event() {}
func (UserJoined) event()             {}
func (UserLeft) event()               {}
func (SocketError) event()            {}
