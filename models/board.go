package models

import (
	"slices"
	"time"
)

const (
	CollectionBoards = "boards"
	CollectionCards  = "cards"
	CollectionTasks  = "tasks"
)

// Board is a shared workspace. Members always includes the owner.
type Board struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (b Board) IsOwner(userID string) bool {
	return b.OwnerID == userID
}

func (b Board) IsMember(userID string) bool {
	return slices.Contains(b.Members, userID)
}

type Card struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"boardId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Position    int       `json:"position"`
	TasksCount  int       `json:"tasksCount"`
	Members     []string  `json:"assignedMembers,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in-progress"
	TaskStatusDone       = "done"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type Task struct {
	ID                string             `json:"id"`
	BoardID           string             `json:"boardId"`
	CardID            string             `json:"cardId"`
	Title             string             `json:"title"`
	Description       string             `json:"description,omitempty"`
	Status            string             `json:"status"`
	Priority          string             `json:"priority"`
	AssignedTo        []string           `json:"assignedTo"`
	DueDate           *time.Time         `json:"dueDate,omitempty"`
	Position          int                `json:"position"`
	CreatedBy         string             `json:"createdBy"`
	GitHubAttachments []GitHubAttachment `json:"githubAttachments"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

func (t Task) IsAssigned(userID string) bool {
	return slices.Contains(t.AssignedTo, userID)
}

// Attachment returns the attachment with the given id.
func (t Task) Attachment(id string) (GitHubAttachment, bool) {
	for _, a := range t.GitHubAttachments {
		if a.ID == id {
			return a, true
		}
	}
	return GitHubAttachment{}, false
}

const (
	AttachmentBranch      = "branch"
	AttachmentCommit      = "commit"
	AttachmentIssue       = "issue"
	AttachmentPullRequest = "pull_request"
)

// GitHubAttachment links a task to a GitHub object. Only the reference is
// owned here; metadata is fetched fresh on read.
type GitHubAttachment struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Repository RepoRef   `json:"repository"`
	GitHubID   string    `json:"githubId"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url,omitempty"`
	AddedBy    string    `json:"addedBy"`
	AddedAt    time.Time `json:"addedAt"`
}

type RepoRef struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
}

// SameTarget reports whether two attachments point at the same GitHub object.
func (a GitHubAttachment) SameTarget(other GitHubAttachment) bool {
	return a.Type == other.Type &&
		a.Repository.FullName == other.Repository.FullName &&
		a.GitHubID == other.GitHubID
}
