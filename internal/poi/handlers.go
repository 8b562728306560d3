package poi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the POI endpoints under /sessions/:id/pois. fence
// rejects writes once the session began terminating.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, fence fiber.Handler) {
	r.Post("/", authMiddleware, fence, func(c *fiber.Ctx) error {
		var req Poi
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		req.SessionID = c.Params("id")
		req.CreatorID, _ = c.Locals("user_id").(string)

		created, err := svc.Create(c.Context(), req)
		if errors.Is(err, ErrNotMember) {
			return fiber.NewError(fiber.StatusForbidden, "not a session member")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		pois, err := svc.List(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(pois)
	})

	r.Delete("/:poiID", authMiddleware, fence, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		err := svc.Delete(c.Context(), c.Params("id"), c.Params("poiID"), userID)
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "poi not found")
		case errors.Is(err, ErrNotMember):
			return fiber.NewError(fiber.StatusForbidden, "not a session member")
		case errors.Is(err, ErrForbidden):
			return fiber.NewError(fiber.StatusForbidden, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
