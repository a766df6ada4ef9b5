package models

import "time"

const CollectionInvitations = "invitations"

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s InvitationStatus) IsTerminal() bool {
	return s == InvitationAccepted || s == InvitationDeclined || s == InvitationCancelled
}

// Invitation targets a board and an invitee identified by user id, by email,
// or both once an email invitee signs up.
type Invitation struct {
	ID          string           `json:"id"`
	BoardID     string           `json:"boardId"`
	BoardName   string           `json:"boardName"`
	OwnerID     string           `json:"ownerId"`
	InviterID   string           `json:"inviterId"`
	MemberID    string           `json:"memberId,omitempty"`
	MemberEmail string           `json:"memberEmail,omitempty"`
	Status      InvitationStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	RespondedAt *time.Time       `json:"respondedAt,omitempty"`
}

// IsInvitee reports whether userID is the resolved invitee.
func (i Invitation) IsInvitee(userID string) bool {
	return i.MemberID != "" && i.MemberID == userID
}
