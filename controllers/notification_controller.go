package controller

import (
	"github.com/gofiber/fiber/v2"

	"taskboard/notifications"
	"taskboard/utils"
)

type NotificationController struct {
	engine *notifications.Engine
}

func NewNotificationController(engine *notifications.Engine) *NotificationController {
	return &NotificationController{engine: engine}
}

func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", notifications.DefaultListLimit)
	list, err := nc.engine.List(c.UserContext(), currentUser(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(list))
}

func (nc *NotificationController) GetUnreadCount(c *fiber.Ctx) error {
	count, err := nc.engine.UnreadCount(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"count": count}))
}

func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	if err := nc.engine.MarkRead(c.UserContext(), c.Params("id"), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Notification marked as read"))
}

func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	updated, err := nc.engine.MarkAllRead(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"updated": updated}))
}

// DeleteNotification removes a notification. Deleting a pending invitation
// notification declines the invitation.
func (nc *NotificationController) DeleteNotification(c *fiber.Ctx) error {
	if err := nc.engine.Delete(c.UserContext(), c.Params("id"), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Notification deleted"))
}
