package boards

import (
	"context"
	"slices"
	"strings"
	"time"

	"taskboard/apperr"
	"taskboard/keylock"
	"taskboard/models"
	"taskboard/realtime"
)

type TaskInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"dueDate"`
	AssignedTo  []string   `json:"assignedTo"`
}

type TaskPatch struct {
	Title        *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string    `json:"description" validate:"omitempty,max=2000"`
	Status       *string    `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	Priority     *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate      *time.Time `json:"dueDate"`
	ClearDueDate bool       `json:"clearDueDate"`
	TargetCardID string     `json:"targetCardId"`
}

func taskLockKey(taskID string) string {
	return keylock.Key("task", taskID)
}

// cardTask loads a task and checks it belongs to cardID.
func (s *Service) cardTask(ctx context.Context, cardID, taskID string) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.CardID != cardID {
		return nil, apperr.NotFound("the requested task does not exist in this card")
	}
	return task, nil
}

// access checks membership and the board/card/task chain in one go.
func (s *Service) access(ctx context.Context, boardID, cardID, taskID, userID string) (*models.Board, *models.Task, error) {
	board, err := s.memberBoard(ctx, boardID, userID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.boardCard(ctx, boardID, cardID); err != nil {
		return nil, nil, err
	}
	task, err := s.cardTask(ctx, cardID, taskID)
	if err != nil {
		return nil, nil, err
	}
	return board, task, nil
}

func (s *Service) nextTaskPosition(ctx context.Context, cardID string) (int, error) {
	tasks, err := s.repo.TasksForCard(ctx, cardID)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, t := range tasks {
		if t.Position >= next {
			next = t.Position + 1
		}
	}
	return next, nil
}

func (s *Service) CreateTask(ctx context.Context, boardID, cardID, userID string, in TaskInput) (*models.Task, error) {
	board, err := s.memberBoard(ctx, boardID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.boardCard(ctx, boardID, cardID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.BadRequest("task title is required")
	}
	for _, id := range in.AssignedTo {
		if !board.IsMember(id) {
			return nil, apperr.BadRequest("some assigned members are not part of this board")
		}
	}

	position, err := s.nextTaskPosition(ctx, cardID)
	if err != nil {
		return nil, err
	}
	task := &models.Task{
		BoardID:     boardID,
		CardID:      cardID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		AssignedTo:  slices.Compact(slices.Clone(in.AssignedTo)),
		Position:    position,
		CreatedBy:   userID,
	}
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	if err := s.repo.AdjustTaskCount(ctx, cardID, 1); err != nil {
		s.log.WithError(err).WithField("card_id", cardID).Warn("failed to update card task count")
	}

	s.broadcaster.BroadcastToBoard(boardID, realtime.TaskCreated{Task: *task, CardID: cardID, BoardID: boardID})
	for _, assignee := range task.AssignedTo {
		s.notifyAssigned(ctx, task, assignee, userID)
	}
	return task, nil
}

func (s *Service) Tasks(ctx context.Context, boardID, cardID, userID string) ([]models.Task, error) {
	if _, err := s.memberBoard(ctx, boardID, userID); err != nil {
		return nil, err
	}
	if _, err := s.boardCard(ctx, boardID, cardID); err != nil {
		return nil, err
	}
	return s.repo.TasksForCard(ctx, cardID)
}

func (s *Service) Task(ctx context.Context, boardID, cardID, taskID, userID string) (*models.Task, error) {
	_, task, err := s.access(ctx, boardID, cardID, taskID, userID)
	return task, err
}

func (s *Service) UpdateTask(ctx context.Context, boardID, cardID, taskID, userID string, patch TaskPatch) (*models.Task, error) {
	if _, _, err := s.access(ctx, boardID, cardID, taskID, userID); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperr.BadRequest("task title cannot be empty")
		}
		fields["title"] = title
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Status != nil {
		fields["status"] = *patch.Status
	}
	if patch.Priority != nil {
		fields["priority"] = *patch.Priority
	}
	if patch.DueDate != nil {
		fields["dueDate"] = patch.DueDate
	} else if patch.ClearDueDate {
		fields["dueDate"] = nil
	}
	moved := patch.TargetCardID != "" && patch.TargetCardID != cardID
	if moved {
		if _, err := s.boardCard(ctx, boardID, patch.TargetCardID); err != nil {
			return nil, apperr.NotFound("the requested target card does not exist in this board")
		}
		position, err := s.nextTaskPosition(ctx, patch.TargetCardID)
		if err != nil {
			return nil, err
		}
		fields["cardId"] = patch.TargetCardID
		fields["position"] = position
	}

	if len(fields) > 0 {
		if err := s.repo.UpdateTask(ctx, taskID, fields); err != nil {
			return nil, err
		}
	}
	if moved {
		s.shiftTaskCount(ctx, cardID, patch.TargetCardID)
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.TaskUpdated{
		TaskID:    taskID,
		CardID:    task.CardID,
		BoardID:   boardID,
		Task:      task,
		Updates:   fields,
		Timestamp: time.Now().UnixMilli(),
		UpdatedBy: s.actor(ctx, userID),
	})
	return task, nil
}

func (s *Service) shiftTaskCount(ctx context.Context, from, to string) {
	if err := s.repo.AdjustTaskCount(ctx, from, -1); err != nil {
		s.log.WithError(err).WithField("card_id", from).Warn("failed to update card task count")
	}
	if err := s.repo.AdjustTaskCount(ctx, to, 1); err != nil {
		s.log.WithError(err).WithField("card_id", to).Warn("failed to update card task count")
	}
}

// MoveTask moves a task to targetCardID. A nil position appends it.
func (s *Service) MoveTask(ctx context.Context, boardID, taskID, userID, targetCardID string, position *int) (*models.Task, error) {
	if _, err := s.memberBoard(ctx, boardID, userID); err != nil {
		return nil, err
	}
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.BoardID != boardID {
		return nil, apperr.NotFound("the requested task does not exist in this board")
	}
	if _, err := s.boardCard(ctx, boardID, targetCardID); err != nil {
		return nil, apperr.NotFound("the target card does not exist in this board")
	}

	pos := 0
	if position != nil {
		pos = *position
	} else if pos, err = s.nextTaskPosition(ctx, targetCardID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTask(ctx, taskID, map[string]any{"cardId": targetCardID, "position": pos}); err != nil {
		return nil, err
	}
	if task.CardID != targetCardID {
		s.shiftTaskCount(ctx, task.CardID, targetCardID)
	}

	updated, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.TaskUpdated{
		TaskID:    taskID,
		CardID:    targetCardID,
		BoardID:   boardID,
		Task:      updated,
		Updates:   map[string]any{"cardId": targetCardID, "position": pos},
		Timestamp: time.Now().UnixMilli(),
		UpdatedBy: s.actor(ctx, userID),
	})
	return updated, nil
}

// ToggleStatus flips a task between done and todo.
func (s *Service) ToggleStatus(ctx context.Context, boardID, cardID, taskID, userID string) (*models.Task, error) {
	_, task, err := s.access(ctx, boardID, cardID, taskID, userID)
	if err != nil {
		return nil, err
	}
	oldStatus := task.Status
	newStatus := models.TaskStatusDone
	if oldStatus == models.TaskStatusDone {
		newStatus = models.TaskStatusTodo
	}
	if err := s.repo.UpdateTask(ctx, taskID, map[string]any{"status": newStatus}); err != nil {
		return nil, err
	}
	task.Status = newStatus

	s.broadcaster.BroadcastToBoard(boardID, realtime.TaskStatusChanged{
		Task:      *task,
		CardID:    cardID,
		BoardID:   boardID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		ChangedBy: userID,
	})
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, boardID, cardID, taskID, userID string) error {
	if _, _, err := s.access(ctx, boardID, cardID, taskID, userID); err != nil {
		return err
	}
	if err := s.repo.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	if err := s.repo.AdjustTaskCount(ctx, cardID, -1); err != nil {
		s.log.WithError(err).WithField("card_id", cardID).Warn("failed to update card task count")
	}
	s.broadcaster.BroadcastToBoard(boardID, realtime.TaskDeleted{
		TaskID:    taskID,
		CardID:    cardID,
		BoardID:   boardID,
		DeletedBy: userID,
	})
	return nil
}

// AssignTask adds memberID to the task's assignees. Assigning someone else
// also notifies them.
func (s *Service) AssignTask(ctx context.Context, boardID, cardID, taskID, userID, memberID string) (*models.Task, error) {
	board, _, err := s.access(ctx, boardID, cardID, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !board.IsMember(memberID) {
		return nil, apperr.BadRequest("the member to assign is not part of this board")
	}

	unlock := s.locks.Lock(taskLockKey(taskID))
	task, err := s.repo.GetTask(ctx, taskID)
	if err == nil && !task.IsAssigned(memberID) {
		task.AssignedTo = append(task.AssignedTo, memberID)
		err = s.repo.UpdateTask(ctx, taskID, map[string]any{"assignedTo": task.AssignedTo})
	}
	unlock()
	if err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastToBoard(boardID, realtime.TaskAssigned{
		TaskID:     taskID,
		CardID:     cardID,
		BoardID:    boardID,
		MemberID:   memberID,
		AssignedBy: userID,
		Task:       *task,
	})
	s.notifyAssigned(ctx, task, memberID, userID)
	return task, nil
}

func (s *Service) notifyAssigned(ctx context.Context, task *models.Task, assigneeID, senderID string) {
	if assigneeID == senderID {
		return
	}
	if _, err := s.notifications.NotifyTaskAssigned(ctx, task, assigneeID, senderID); err != nil {
		s.log.WithError(err).WithField("task_id", task.ID).Warn("failed to create task assignment notification")
	}
}

func (s *Service) UnassignTask(ctx context.Context, boardID, cardID, taskID, userID, memberID string) (*models.Task, error) {
	if _, _, err := s.access(ctx, boardID, cardID, taskID, userID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(taskLockKey(taskID))
	task, err := s.repo.GetTask(ctx, taskID)
	if err == nil {
		if idx := slices.Index(task.AssignedTo, memberID); idx >= 0 {
			task.AssignedTo = slices.Delete(task.AssignedTo, idx, idx+1)
			err = s.repo.UpdateTask(ctx, taskID, map[string]any{"assignedTo": task.AssignedTo})
		} else {
			err = apperr.NotFound("member is not assigned to this task")
		}
	}
	unlock()
	if err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastToBoard(boardID, realtime.TaskUnassigned{
		TaskID:       taskID,
		CardID:       cardID,
		BoardID:      boardID,
		MemberID:     memberID,
		UnassignedBy: userID,
		Task:         *task,
	})
	if _, err := s.notifications.WithdrawTaskAssignment(ctx, memberID, taskID); err != nil {
		s.log.WithError(err).WithField("task_id", taskID).Warn("failed to withdraw task assignment notification")
	}
	return task, nil
}

// TaskMembers returns the public profiles of the task's assignees.
func (s *Service) TaskMembers(ctx context.Context, boardID, cardID, taskID, userID string) ([]models.PublicUser, error) {
	_, task, err := s.access(ctx, boardID, cardID, taskID, userID)
	if err != nil {
		return nil, err
	}
	members := make([]models.PublicUser, 0, len(task.AssignedTo))
	for _, id := range task.AssignedTo {
		u, err := s.repo.GetUser(ctx, id)
		if err != nil {
			continue
		}
		members = append(members, u.Public())
	}
	return members, nil
}
