package route

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Route
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.OwnerID, _ = c.Locals("user_id").(string)
		if req.Name == "" || len(req.Path) < 2 {
			return fiber.NewError(fiber.StatusBadRequest, "name and at least two path points required")
		}
		created, err := svc.Create(c.Context(), req, c.Query("session_id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		ownerID, _ := c.Locals("user_id").(string)
		routes, err := svc.ByOwner(c.Context(), ownerID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(routes)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		found, err := svc.Get(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "route not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(found)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		ownerID, _ := c.Locals("user_id").(string)
		err := svc.Delete(c.Context(), c.Params("id"), ownerID, c.Query("session_id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "route not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
