// Package boards implements boards, cards, tasks and GitHub attachments.
// Every write is followed by a live event to the board room; authorisation
// is board membership unless noted otherwise.
package boards

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/github"
	"taskboard/keylock"
	"taskboard/models"
	"taskboard/notifications"
	"taskboard/realtime"
	"taskboard/repository"
)

// MetadataSource fetches GitHub metadata with a given user's credentials.
type MetadataSource interface {
	AttachmentMetadata(ctx context.Context, userID string, a models.GitHubAttachment) (*github.Metadata, error)
}

type Service struct {
	repo          *repository.Repository
	notifications *notifications.Engine
	broadcaster   realtime.Broadcaster
	locks         *keylock.Locker
	metadata      MetadataSource
	log           *logrus.Entry
}

func NewService(
	repo *repository.Repository,
	engine *notifications.Engine,
	broadcaster realtime.Broadcaster,
	locks *keylock.Locker,
	metadata MetadataSource,
	log *logrus.Entry,
) *Service {
	return &Service{
		repo:          repo,
		notifications: engine,
		broadcaster:   broadcaster,
		locks:         locks,
		metadata:      metadata,
		log:           log,
	}
}

type BoardInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type BoardPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// memberBoard loads the board and checks userID belongs to it.
func (s *Service) memberBoard(ctx context.Context, boardID, userID string) (*models.Board, error) {
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if !board.IsMember(userID) {
		return nil, apperr.Forbidden("you are not a member of this board")
	}
	return board, nil
}

func (s *Service) ownedBoard(ctx context.Context, boardID, userID string) (*models.Board, error) {
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if !board.IsOwner(userID) {
		return nil, apperr.Forbidden("only the board owner can do this")
	}
	return board, nil
}

func (s *Service) actor(ctx context.Context, userID string) realtime.Actor {
	a := realtime.Actor{UserID: userID, UserEmail: "Unknown"}
	if u, err := s.repo.GetUser(ctx, userID); err == nil {
		a.UserEmail = u.Email
	}
	return a
}

func (s *Service) CreateBoard(ctx context.Context, userID string, in BoardInput) (*models.Board, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.BadRequest("board name is required")
	}
	board := &models.Board{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		OwnerID:     userID,
	}
	if err := s.repo.CreateBoard(ctx, board); err != nil {
		return nil, err
	}
	s.broadcaster.SendToUser(userID, realtime.BoardCreated{Board: *board})
	return board, nil
}

func (s *Service) Board(ctx context.Context, boardID, userID string) (*models.Board, error) {
	return s.memberBoard(ctx, boardID, userID)
}

func (s *Service) Boards(ctx context.Context, userID string) ([]models.Board, error) {
	return s.repo.BoardsForUser(ctx, userID)
}

func (s *Service) UpdateBoard(ctx context.Context, boardID, userID string, patch BoardPatch) (*models.Board, error) {
	if _, err := s.ownedBoard(ctx, boardID, userID); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.BadRequest("board name cannot be empty")
		}
		fields["name"] = name
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if len(fields) > 0 {
		if err := s.repo.UpdateBoard(ctx, boardID, fields); err != nil {
			return nil, err
		}
	}
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.BoardUpdated{Board: *board, UpdatedBy: userID})
	return board, nil
}

// DeleteBoard removes the board with its cards and tasks. Invitations are
// kept as history.
func (s *Service) DeleteBoard(ctx context.Context, boardID, userID string) error {
	if _, err := s.ownedBoard(ctx, boardID, userID); err != nil {
		return err
	}

	tasks, err := s.repo.TasksForBoard(ctx, boardID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.repo.DeleteTask(ctx, t.ID); err != nil {
			return err
		}
	}
	cards, err := s.repo.CardsForBoard(ctx, boardID)
	if err != nil {
		return err
	}
	for _, c := range cards {
		if err := s.repo.DeleteCard(ctx, c.ID); err != nil {
			return err
		}
	}
	if err := s.repo.DeleteBoard(ctx, boardID); err != nil {
		return err
	}

	s.broadcaster.BroadcastToBoard(boardID, realtime.BoardDeleted{BoardID: boardID, DeletedBy: userID})
	s.log.WithFields(logrus.Fields{
		"board_id": boardID,
		"cards":    len(cards),
		"tasks":    len(tasks),
	}).Info("board deleted")
	return nil
}
