package repository

import (
	"context"
	"slices"
	"sort"

	"taskboard/models"
)

func (r *Repository) CreateBoard(ctx context.Context, b *models.Board) error {
	now := r.now()
	b.ID = r.store.PushID(models.CollectionBoards)
	if !slices.Contains(b.Members, b.OwnerID) {
		b.Members = append([]string{b.OwnerID}, b.Members...)
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	return r.set(ctx, models.CollectionBoards, b.ID, b, "board")
}

func (r *Repository) GetBoard(ctx context.Context, id string) (*models.Board, error) {
	var b models.Board
	if err := r.get(ctx, models.CollectionBoards, id, &b, "board"); err != nil {
		return nil, err
	}
	return &b, nil
}

// BoardsForUser returns every board userID is a member of, newest first.
// Membership is an array field so this scans the collection.
func (r *Repository) BoardsForUser(ctx context.Context, userID string) ([]models.Board, error) {
	all, err := list[models.Board](ctx, r, models.CollectionBoards)
	if err != nil {
		return nil, err
	}
	mine := make([]models.Board, 0)
	for _, b := range all {
		if b.IsMember(userID) {
			mine = append(mine, b)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	return mine, nil
}

func (r *Repository) UpdateBoard(ctx context.Context, id string, fields map[string]any) error {
	return r.update(ctx, models.CollectionBoards, id, fields, "board")
}

func (r *Repository) DeleteBoard(ctx context.Context, id string) error {
	return r.delete(ctx, models.CollectionBoards, id, "board")
}

// AddMember appends userID to the board's members. It is a read-modify-write
// over the members array; callers serialise concurrent changes to one board.
func (r *Repository) AddMember(ctx context.Context, boardID, userID string) (*models.Board, error) {
	b, err := r.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b.IsMember(userID) {
		return b, nil
	}
	b.Members = append(b.Members, userID)
	if err := r.UpdateBoard(ctx, boardID, map[string]any{"members": b.Members}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Repository) RemoveMember(ctx context.Context, boardID, userID string) (*models.Board, error) {
	b, err := r.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	idx := slices.Index(b.Members, userID)
	if idx < 0 {
		return b, nil
	}
	b.Members = slices.Delete(b.Members, idx, idx+1)
	if err := r.UpdateBoard(ctx, boardID, map[string]any{"members": b.Members}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Repository) CreateCard(ctx context.Context, c *models.Card) error {
	now := r.now()
	c.ID = r.store.PushID(models.CollectionCards)
	c.CreatedAt = now
	c.UpdatedAt = now
	return r.set(ctx, models.CollectionCards, c.ID, c, "card")
}

func (r *Repository) GetCard(ctx context.Context, id string) (*models.Card, error) {
	var c models.Card
	if err := r.get(ctx, models.CollectionCards, id, &c, "card"); err != nil {
		return nil, err
	}
	return &c, nil
}

// CardsForBoard returns the board's cards ordered by position.
func (r *Repository) CardsForBoard(ctx context.Context, boardID string) ([]models.Card, error) {
	cards, err := query[models.Card](ctx, r, models.CollectionCards, "boardId", boardID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].Position < cards[j].Position })
	return cards, nil
}

func (r *Repository) UpdateCard(ctx context.Context, id string, fields map[string]any) error {
	return r.update(ctx, models.CollectionCards, id, fields, "card")
}

func (r *Repository) DeleteCard(ctx context.Context, id string) error {
	return r.delete(ctx, models.CollectionCards, id, "card")
}

// AdjustTaskCount adds delta to the card's tasksCount, never going below zero.
func (r *Repository) AdjustTaskCount(ctx context.Context, cardID string, delta int) error {
	c, err := r.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	count := c.TasksCount + delta
	if count < 0 {
		count = 0
	}
	return r.UpdateCard(ctx, cardID, map[string]any{"tasksCount": count})
}

func (r *Repository) CreateTask(ctx context.Context, t *models.Task) error {
	now := r.now()
	t.ID = r.store.PushID(models.CollectionTasks)
	if t.GitHubAttachments == nil {
		t.GitHubAttachments = []models.GitHubAttachment{}
	}
	if t.AssignedTo == nil {
		t.AssignedTo = []string{}
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return r.set(ctx, models.CollectionTasks, t.ID, t, "task")
}

func (r *Repository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	if err := r.get(ctx, models.CollectionTasks, id, &t, "task"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) TasksForCard(ctx context.Context, cardID string) ([]models.Task, error) {
	tasks, err := query[models.Task](ctx, r, models.CollectionTasks, "cardId", cardID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })
	return tasks, nil
}

func (r *Repository) TasksForBoard(ctx context.Context, boardID string) ([]models.Task, error) {
	return query[models.Task](ctx, r, models.CollectionTasks, "boardId", boardID)
}

func (r *Repository) UpdateTask(ctx context.Context, id string, fields map[string]any) error {
	return r.update(ctx, models.CollectionTasks, id, fields, "task")
}

func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	return r.delete(ctx, models.CollectionTasks, id, "task")
}
