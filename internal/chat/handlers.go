package chat

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the message endpoints under /sessions/:id/messages.
// fence rejects writes once the session began terminating.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, fence fiber.Handler) {
	r.Post("/", authMiddleware, fence, func(c *fiber.Ctx) error {
		var body struct {
			Body string `json:"body"`
		}
		if err := c.BodyParser(&body); err != nil || body.Body == "" {
			return fiber.NewError(fiber.StatusBadRequest, "body required")
		}
		authorID, _ := c.Locals("user_id").(string)
		msg, err := svc.Post(c.Context(), c.Params("id"), authorID, body.Body)
		if errors.Is(err, ErrNotMember) {
			return fiber.NewError(fiber.StatusForbidden, "not a session member")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit"))
		messages, err := svc.Recent(c.Context(), c.Params("id"), limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(messages)
	})
}
