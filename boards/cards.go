package boards

import (
	"context"
	"strings"
	"time"

	"taskboard/apperr"
	"taskboard/models"
	"taskboard/realtime"
)

type CardInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Position    *int   `json:"position" validate:"omitempty,min=0"`
}

type CardPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
}

// boardCard loads a card and checks it belongs to boardID.
func (s *Service) boardCard(ctx context.Context, boardID, cardID string) (*models.Card, error) {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.BoardID != boardID {
		return nil, apperr.NotFound("the requested card does not exist in this board")
	}
	return card, nil
}

func (s *Service) CreateCard(ctx context.Context, boardID, userID string, in CardInput) (*models.Card, error) {
	if _, err := s.memberBoard(ctx, boardID, userID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.BadRequest("card name is required")
	}

	position := 0
	if in.Position != nil {
		position = *in.Position
	} else {
		cards, err := s.repo.CardsForBoard(ctx, boardID)
		if err != nil {
			return nil, err
		}
		position = len(cards)
	}

	card := &models.Card{
		BoardID:     boardID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Position:    position,
		CreatedBy:   userID,
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.CardCreated{Card: *card})
	return card, nil
}

func (s *Service) Cards(ctx context.Context, boardID, userID string) ([]models.Card, error) {
	if _, err := s.memberBoard(ctx, boardID, userID); err != nil {
		return nil, err
	}
	return s.repo.CardsForBoard(ctx, boardID)
}

// CardsForMember lists the cards of boardID that memberID is assigned to.
func (s *Service) CardsForMember(ctx context.Context, boardID, userID, memberID string) ([]models.Card, error) {
	cards, err := s.Cards(ctx, boardID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Card, 0, len(cards))
	for _, c := range cards {
		for _, m := range c.Members {
			if m == memberID {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (s *Service) Card(ctx context.Context, boardID, cardID, userID string) (*models.Card, error) {
	if _, err := s.memberBoard(ctx, boardID, userID); err != nil {
		return nil, err
	}
	return s.boardCard(ctx, boardID, cardID)
}

func (s *Service) UpdateCard(ctx context.Context, boardID, cardID, userID string, patch CardPatch) (*models.Card, error) {
	if _, err := s.Card(ctx, boardID, cardID, userID); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.BadRequest("card name cannot be empty")
		}
		fields["name"] = name
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Position != nil {
		fields["position"] = *patch.Position
	}
	if len(fields) > 0 {
		if err := s.repo.UpdateCard(ctx, cardID, fields); err != nil {
			return nil, err
		}
	}
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.CardUpdated{Card: *card})
	return card, nil
}

func (s *Service) MoveCard(ctx context.Context, boardID, cardID, userID string, position int) (*models.Card, error) {
	if position < 0 {
		return nil, apperr.BadRequest("position must not be negative")
	}
	if _, err := s.Card(ctx, boardID, cardID, userID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCard(ctx, cardID, map[string]any{"position": position}); err != nil {
		return nil, err
	}
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.CardMoved{Card: *card})
	return card, nil
}

// ReorderCards applies a batch of positions. Positions are written one card
// at a time; a failure part way leaves earlier cards moved.
func (s *Service) ReorderCards(ctx context.Context, boardID, userID string, positions []realtime.CardPosition) error {
	if _, err := s.memberBoard(ctx, boardID, userID); err != nil {
		return err
	}
	if len(positions) == 0 {
		return apperr.BadRequest("cardPositions is required")
	}
	for _, p := range positions {
		if _, err := s.boardCard(ctx, boardID, p.CardID); err != nil {
			return err
		}
	}
	for _, p := range positions {
		if err := s.repo.UpdateCard(ctx, p.CardID, map[string]any{"position": p.Position}); err != nil {
			return err
		}
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.CardsReordered{
		BoardID:       boardID,
		CardPositions: positions,
		ReorderedBy:   userID,
		Timestamp:     time.Now().UnixMilli(),
	})
	return nil
}

// AssignCardMembers replaces the card's assigned members. Every member must
// belong to the board.
func (s *Service) AssignCardMembers(ctx context.Context, boardID, cardID, userID string, memberIDs []string) (*models.Card, error) {
	board, err := s.memberBoard(ctx, boardID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.boardCard(ctx, boardID, cardID); err != nil {
		return nil, err
	}
	for _, id := range memberIDs {
		if !board.IsMember(id) {
			return nil, apperr.BadRequest("some members are not part of this board")
		}
	}
	if memberIDs == nil {
		memberIDs = []string{}
	}
	if err := s.repo.UpdateCard(ctx, cardID, map[string]any{"assignedMembers": memberIDs}); err != nil {
		return nil, err
	}
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.CardMembersAssigned{
		CardID:          cardID,
		AssignedMembers: memberIDs,
		AssignedBy:      userID,
		Card:            *card,
	})
	return card, nil
}

// DeleteCard removes the card and its tasks.
func (s *Service) DeleteCard(ctx context.Context, boardID, cardID, userID string) error {
	if _, err := s.Card(ctx, boardID, cardID, userID); err != nil {
		return err
	}
	tasks, err := s.repo.TasksForCard(ctx, cardID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.repo.DeleteTask(ctx, t.ID); err != nil {
			return err
		}
	}
	if err := s.repo.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.CardDeleted{CardID: cardID, BoardID: boardID, DeletedBy: userID})
	return nil
}
