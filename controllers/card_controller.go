package controller

import (
	"github.com/gofiber/fiber/v2"

	"taskboard/apperr"
	"taskboard/boards"
	"taskboard/realtime"
	"taskboard/utils"
)

type CardController struct {
	boards *boards.Service
}

func NewCardController(boardService *boards.Service) *CardController {
	return &CardController{boards: boardService}
}

func (cc *CardController) CreateCard(c *fiber.Ctx) error {
	var input boards.CardInput
	if err := parseBody(c, &input); err != nil {
		return err
	}
	card, err := cc.boards.CreateCard(c.UserContext(), c.Params("boardId"), currentUser(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(card))
}

func (cc *CardController) GetCards(c *fiber.Ctx) error {
	cards, err := cc.boards.Cards(c.UserContext(), c.Params("boardId"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(cards))
}

func (cc *CardController) GetCard(c *fiber.Ctx) error {
	card, err := cc.boards.Card(c.UserContext(), c.Params("boardId"), c.Params("id"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(card))
}

func (cc *CardController) GetCardsForMember(c *fiber.Ctx) error {
	cards, err := cc.boards.CardsForMember(c.UserContext(), c.Params("boardId"), currentUser(c), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(cards))
}

func (cc *CardController) UpdateCard(c *fiber.Ctx) error {
	var input boards.CardPatch
	if err := parseBody(c, &input); err != nil {
		return err
	}
	card, err := cc.boards.UpdateCard(c.UserContext(), c.Params("boardId"), c.Params("id"), currentUser(c), input)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(card))
}

func (cc *CardController) MoveCard(c *fiber.Ctx) error {
	var input struct {
		Position *int `json:"position" validate:"required,min=0"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}
	card, err := cc.boards.MoveCard(c.UserContext(), c.Params("boardId"), c.Params("id"), currentUser(c), *input.Position)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(card))
}

func (cc *CardController) ReorderCards(c *fiber.Ctx) error {
	var input struct {
		CardPositions []realtime.CardPosition `json:"cardPositions"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}
	if err := cc.boards.ReorderCards(c.UserContext(), c.Params("boardId"), currentUser(c), input.CardPositions); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Cards reordered"))
}

func (cc *CardController) AssignMembers(c *fiber.Ctx) error {
	var input struct {
		MemberIDs []string `json:"memberIds"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}
	if input.MemberIDs == nil {
		return apperr.BadRequest("memberIds is required")
	}
	card, err := cc.boards.AssignCardMembers(c.UserContext(), c.Params("boardId"), c.Params("id"), currentUser(c), input.MemberIDs)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(card))
}

func (cc *CardController) DeleteCard(c *fiber.Ctx) error {
	if err := cc.boards.DeleteCard(c.UserContext(), c.Params("boardId"), c.Params("id"), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Card deleted successfully"))
}
