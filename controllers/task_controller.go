package controller

import (
	"github.com/gofiber/fiber/v2"

	"taskboard/boards"
	"taskboard/utils"
)

type TaskController struct {
	boards *boards.Service
}

func NewTaskController(boardService *boards.Service) *TaskController {
	return &TaskController{boards: boardService}
}

func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	var input boards.TaskInput
	if err := parseBody(c, &input); err != nil {
		return err
	}
	task, err := tc.boards.CreateTask(c.UserContext(), c.Params("boardId"), c.Params("cardId"), currentUser(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	tasks, err := tc.boards.Tasks(c.UserContext(), c.Params("boardId"), c.Params("cardId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(tasks))
}

func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	task, err := tc.boards.Task(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	var input boards.TaskPatch
	if err := parseBody(c, &input); err != nil {
		return err
	}
	task, err := tc.boards.UpdateTask(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c), input)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) ToggleStatus(c *fiber.Ctx) error {
	task, err := tc.boards.ToggleStatus(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	if err := tc.boards.DeleteTask(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Task deleted successfully"))
}

func (tc *TaskController) MoveTask(c *fiber.Ctx) error {
	var input struct {
		TargetCardID string `json:"targetCardId" validate:"required"`
		NewPosition  *int   `json:"newPosition" validate:"omitempty,min=0"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}
	task, err := tc.boards.MoveTask(c.UserContext(), c.Params("boardId"), c.Params("taskId"), currentUser(c), input.TargetCardID, input.NewPosition)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) AssignTask(c *fiber.Ctx) error {
	var input struct {
		MemberID string `json:"memberId" validate:"required"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}
	task, err := tc.boards.AssignTask(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c), input.MemberID)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) GetTaskMembers(c *fiber.Ctx) error {
	members, err := tc.boards.TaskMembers(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(members))
}

func (tc *TaskController) UnassignTask(c *fiber.Ctx) error {
	task, err := tc.boards.UnassignTask(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c), c.Params("memberId"))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) AddAttachment(c *fiber.Ctx) error {
	var input boards.AttachmentInput
	if err := parseBody(c, &input); err != nil {
		return err
	}
	attachment, err := tc.boards.AddAttachment(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(attachment))
}

func (tc *TaskController) GetAttachments(c *fiber.Ctx) error {
	views, err := tc.boards.Attachments(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(views))
}

func (tc *TaskController) RemoveAttachment(c *fiber.Ctx) error {
	err := tc.boards.RemoveAttachment(c.UserContext(), c.Params("boardId"), c.Params("cardId"), c.Params("taskId"), c.Params("attachmentId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Attachment removed"))
}
