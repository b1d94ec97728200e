package sampler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Zyptonix/Traffic-Rewards/internal/auth"
	"github.com/Zyptonix/Traffic-Rewards/internal/location"
)

func RegisterRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var fix location.Sample
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if fix.Lat < -90 || fix.Lat > 90 || fix.Lng < -180 || fix.Lng > 180 {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng out of range")
		}
		if fix.RecordedAt.IsZero() {
			fix.RecordedAt = time.Now()
		}
		state := mgr.PushFix(c.Context(), auth.UserID(c), fix)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": state})
	})

	r.Post("/focus", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Focused bool `json:"focused"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		state, err := mgr.Focus(c.Context(), auth.UserID(c), body.Focused)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"state": state})
	})

	r.Get("/state", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"state": mgr.State(auth.UserID(c))})
	})
}
