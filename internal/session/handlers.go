package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&body); err != nil || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		ownerID, _ := c.Locals("user_id").(string)
		sess, err := svc.Create(c.Context(), ownerID, body.Name)
		if err != nil {
			return errorToHTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	r.Post("/join", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Code string `json:"code"`
		}
		if err := c.BodyParser(&body); err != nil || body.Code == "" {
			return fiber.NewError(fiber.StatusBadRequest, "code required")
		}
		userID, _ := c.Locals("user_id").(string)
		sess, err := svc.JoinByCode(c.Context(), body.Code, userID)
		if err != nil {
			return errorToHTTP(err)
		}
		return c.JSON(sess)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return errorToHTTP(err)
		}
		return c.JSON(sess)
	})

	r.Get("/:id/members", authMiddleware, func(c *fiber.Ctx) error {
		members, err := svc.Members(c.Context(), c.Params("id"))
		if err != nil {
			return errorToHTTP(err)
		}
		return c.JSON(members)
	})

	r.Get("/:id/snapshot", authMiddleware, func(c *fiber.Ctx) error {
		snapshot, err := svc.Snapshot(c.Context(), c.Params("id"))
		if err != nil {
			return errorToHTTP(err)
		}
		return c.JSON(snapshot)
	})

	r.Put("/:id/view", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Lat  float64 `json:"lat"`
			Lng  float64 `json:"lng"`
			Zoom float64 `json:"zoom"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		userID, _ := c.Locals("user_id").(string)
		if err := svc.UpdateView(c.Context(), c.Params("id"), userID, body.Lat, body.Lng, body.Zoom); err != nil {
			return errorToHTTP(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/leave", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if err := svc.Leave(c.Context(), c.Params("id"), userID); err != nil {
			return errorToHTTP(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/:id/members/:userID", authMiddleware, func(c *fiber.Ctx) error {
		callerID, _ := c.Locals("user_id").(string)
		if err := svc.Kick(c.Context(), c.Params("id"), callerID, c.Params("userID")); err != nil {
			return errorToHTTP(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/terminate", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if err := svc.Terminate(c.Context(), c.Params("id"), userID); err != nil {
			return errorToHTTP(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/invites", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			InviteeID string `json:"invitee_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.InviteeID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "invitee_id required")
		}
		inviterID, _ := c.Locals("user_id").(string)
		invite, err := svc.SendInvite(c.Context(), c.Params("id"), inviterID, body.InviteeID)
		if err != nil {
			return errorToHTTP(err)
		}
		return c.Status(fiber.StatusCreated).JSON(invite)
	})
}

// RegisterInviteRoutes mounts the invitee-facing endpoints. Invites are
// visible out-of-band: the invitee needs no channel, only a token.
func RegisterInviteRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		invites, err := svc.InvitesFor(c.Context(), userID)
		if err != nil {
			return errorToHTTP(err)
		}
		return c.JSON(invites)
	})

	r.Post("/:id/accept", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		sess, err := svc.AcceptInvite(c.Context(), c.Params("id"), userID)
		if err != nil {
			return errorToHTTP(err)
		}
		return c.JSON(sess)
	})
}

func errorToHTTP(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotMember):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrSessionEnded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrCodeExhausted):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
