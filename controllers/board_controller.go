package controller

import (
	"github.com/gofiber/fiber/v2"

	"taskboard/apperr"
	"taskboard/boards"
	"taskboard/membership"
	"taskboard/models"
	"taskboard/utils"
)

type BoardController struct {
	boards  *boards.Service
	members *membership.Service
}

func NewBoardController(boardService *boards.Service, memberService *membership.Service) *BoardController {
	return &BoardController{boards: boardService, members: memberService}
}

func (bc *BoardController) CreateBoard(c *fiber.Ctx) error {
	var input boards.BoardInput
	if err := parseBody(c, &input); err != nil {
		return err
	}
	board, err := bc.boards.CreateBoard(c.UserContext(), currentUser(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(board))
}

func (bc *BoardController) GetBoards(c *fiber.Ctx) error {
	list, err := bc.boards.Boards(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(list))
}

func (bc *BoardController) GetBoard(c *fiber.Ctx) error {
	board, err := bc.boards.Board(c.UserContext(), c.Params("id"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(board))
}

func (bc *BoardController) UpdateBoard(c *fiber.Ctx) error {
	var input boards.BoardPatch
	if err := parseBody(c, &input); err != nil {
		return err
	}
	board, err := bc.boards.UpdateBoard(c.UserContext(), c.Params("id"), currentUser(c), input)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(board))
}

func (bc *BoardController) DeleteBoard(c *fiber.Ctx) error {
	if err := bc.boards.DeleteBoard(c.UserContext(), c.Params("id"), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Board deleted successfully"))
}

// Invite invites a user by id or by email.
func (bc *BoardController) Invite(c *fiber.Ctx) error {
	var input struct {
		MemberID    string `json:"member_id"`
		Email       string `json:"email" validate:"omitempty,email"`
		EmailMember string `json:"email_member" validate:"omitempty,email"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}
	if input.Email == "" {
		input.Email = input.EmailMember
	}

	inv, err := bc.members.Invite(c.UserContext(), c.Params("boardId"), currentUser(c), membership.InviteRequest{
		MemberID: input.MemberID,
		Email:    input.Email,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(inv))
}

func (bc *BoardController) InvitationStatus(c *fiber.Ctx) error {
	inv, err := bc.members.InvitationStatus(c.UserContext(), c.Params("invitationId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(inv))
}

func (bc *BoardController) RespondInvitation(c *fiber.Ctx) error {
	var input struct {
		InviteID     string `json:"invite_id"`
		InvitationID string `json:"invitationId"`
		Status       string `json:"status" validate:"required,oneof=accepted declined"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}
	id := input.InvitationID
	if id == "" {
		id = input.InviteID
	}
	if id == "" {
		return apperr.BadRequest("invitationId is required")
	}

	inv, err := bc.members.Respond(c.UserContext(), id, currentUser(c), models.InvitationStatus(input.Status))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(inv))
}

func (bc *BoardController) CancelInvitation(c *fiber.Ctx) error {
	if err := bc.members.Cancel(c.UserContext(), c.Params("boardId"), c.Params("invitationId"), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Invitation cancelled"))
}

func (bc *BoardController) BoardInvitations(c *fiber.Ctx) error {
	list, err := bc.members.BoardInvitations(c.UserContext(), c.Params("boardId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(list))
}

func (bc *BoardController) PendingInvitations(c *fiber.Ctx) error {
	list, err := bc.members.PendingInvitations(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(list))
}

func (bc *BoardController) GetMembers(c *fiber.Ctx) error {
	list, err := bc.members.Members(c.UserContext(), c.Params("id"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(list))
}

func (bc *BoardController) RemoveMember(c *fiber.Ctx) error {
	if err := bc.members.RemoveMember(c.UserContext(), c.Params("id"), c.Params("memberId"), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Member removed"))
}

func (bc *BoardController) LeaveBoard(c *fiber.Ctx) error {
	if err := bc.members.Leave(c.UserContext(), c.Params("id"), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("You left the board"))
}
