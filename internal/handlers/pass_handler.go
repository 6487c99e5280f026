package handlers

import (
	"context"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/gofiber/fiber/v2"
)

type passApplicationService interface {
	ListPasses(ctx context.Context, userID int64, now time.Time) ([]models.PassView, error)
}

type PassHandler struct {
	service passApplicationService
	now     func() time.Time
}

func NewPassHandler(service passApplicationService) *PassHandler {
	return &PassHandler{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *PassHandler) ListPasses(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return notAuthenticated(c)
	}

	passes, err := h.service.ListPasses(c.UserContext(), userID, h.now())
	if err != nil {
		return mapBookingError(c, err)
	}
	return c.JSON(fiber.Map{"passes": passes})
}
