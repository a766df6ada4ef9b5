package boards

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/github"
	"taskboard/models"
	"taskboard/realtime"
)

type AttachmentInput struct {
	Type       string         `json:"type" validate:"required,oneof=branch commit issue pull_request"`
	Repository models.RepoRef `json:"repository"`
	GitHubID   string         `json:"githubId" validate:"required"`
	Title      string         `json:"title"`
	URL        string         `json:"url"`
}

// AttachmentView is an attachment with its live GitHub metadata.
type AttachmentView struct {
	models.GitHubAttachment
	Metadata github.Metadata `json:"metadata"`
}

func (s *Service) AddAttachment(ctx context.Context, boardID, cardID, taskID, userID string, in AttachmentInput) (*models.GitHubAttachment, error) {
	if _, _, err := s.access(ctx, boardID, cardID, taskID, userID); err != nil {
		return nil, err
	}
	repo := in.Repository
	if repo.FullName == "" && repo.Owner != "" && repo.Name != "" {
		repo.FullName = repo.Owner + "/" + repo.Name
	}
	if repo.Owner == "" || repo.Name == "" {
		if owner, name, ok := strings.Cut(repo.FullName, "/"); ok {
			repo.Owner, repo.Name = owner, name
		}
	}
	if repo.FullName == "" || strings.TrimSpace(in.GitHubID) == "" {
		return nil, apperr.BadRequest("repository and githubId are required")
	}

	attachment := models.GitHubAttachment{
		ID:         uuid.NewString(),
		Type:       in.Type,
		Repository: repo,
		GitHubID:   strings.TrimSpace(in.GitHubID),
		Title:      in.Title,
		URL:        in.URL,
		AddedBy:    userID,
		AddedAt:    time.Now().UTC(),
	}

	unlock := s.locks.Lock(taskLockKey(taskID))
	task, err := s.repo.GetTask(ctx, taskID)
	if err == nil {
		for _, existing := range task.GitHubAttachments {
			if existing.SameTarget(attachment) {
				err = apperr.Conflict("this GitHub item is already attached to the task")
				break
			}
		}
	}
	if err == nil {
		attachments := append(task.GitHubAttachments, attachment)
		err = s.repo.UpdateTask(ctx, taskID, map[string]any{"githubAttachments": attachments})
	}
	unlock()
	if err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastToBoard(boardID, realtime.AttachmentAdded{
		TaskID:     taskID,
		CardID:     cardID,
		BoardID:    boardID,
		Attachment: attachment,
		Timestamp:  time.Now().UnixMilli(),
		AddedBy:    s.actor(ctx, userID),
	})
	return &attachment, nil
}

// Attachments lists a task's attachments newest first. Metadata is fetched
// with the caller's GitHub account, then with whoever added the attachment,
// and falls back to what was stored.
func (s *Service) Attachments(ctx context.Context, boardID, cardID, taskID, userID string) ([]AttachmentView, error) {
	_, task, err := s.access(ctx, boardID, cardID, taskID, userID)
	if err != nil {
		return nil, err
	}

	views := make([]AttachmentView, 0, len(task.GitHubAttachments))
	for _, a := range task.GitHubAttachments {
		views = append(views, AttachmentView{GitHubAttachment: a, Metadata: s.metadataFor(ctx, userID, a)})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].AddedAt.After(views[j].AddedAt)
	})
	return views, nil
}

func (s *Service) metadataFor(ctx context.Context, userID string, a models.GitHubAttachment) github.Metadata {
	if s.metadata == nil {
		return github.FallbackMetadata(a)
	}
	candidates := []string{userID}
	if a.AddedBy != "" && a.AddedBy != userID {
		candidates = append(candidates, a.AddedBy)
	}
	for _, id := range candidates {
		md, err := s.metadata.AttachmentMetadata(ctx, id, a)
		if err == nil {
			return *md
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"attachment_id": a.ID,
			"user_id":       id,
		}).Debug("attachment metadata unavailable")
	}
	return github.FallbackMetadata(a)
}

func (s *Service) RemoveAttachment(ctx context.Context, boardID, cardID, taskID, attachmentID, userID string) error {
	if _, _, err := s.access(ctx, boardID, cardID, taskID, userID); err != nil {
		return err
	}

	unlock := s.locks.Lock(taskLockKey(taskID))
	task, err := s.repo.GetTask(ctx, taskID)
	if err == nil {
		if _, ok := task.Attachment(attachmentID); !ok {
			err = apperr.NotFound("attachment not found")
		}
	}
	if err == nil {
		kept := make([]models.GitHubAttachment, 0, len(task.GitHubAttachments))
		for _, a := range task.GitHubAttachments {
			if a.ID != attachmentID {
				kept = append(kept, a)
			}
		}
		err = s.repo.UpdateTask(ctx, taskID, map[string]any{"githubAttachments": kept})
	}
	unlock()
	if err != nil {
		return err
	}

	s.broadcaster.BroadcastToBoard(boardID, realtime.AttachmentRemoved{
		TaskID:       taskID,
		CardID:       cardID,
		BoardID:      boardID,
		AttachmentID: attachmentID,
		Timestamp:    time.Now().UnixMilli(),
		RemovedBy:    s.actor(ctx, userID),
	})
	return nil
}
