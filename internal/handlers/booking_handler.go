package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type bookingApplicationService interface {
	Book(ctx context.Context, userID int64, input services.BookInput) (*models.BookResult, error)
	Cancel(ctx context.Context, userID int64, bookingID int64, now time.Time) error
	ListBookings(ctx context.Context, userID int64) ([]models.Booking, error)
	ListSchedule(ctx context.Context, from time.Time, limit int) ([]models.ClassAvailability, error)
}

type BookingHandler struct {
	service bookingApplicationService
	now     func() time.Time
}

type bookClassRequest struct {
	PreferredPassID *int64 `json:"preferred_pass_id"`
}

func NewBookingHandler(service bookingApplicationService) *BookingHandler {
	return &BookingHandler{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *BookingHandler) BookClass(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return notAuthenticated(c)
	}

	classID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_class_id"})
	}

	var req bookClassRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
		}
	}
	if req.PreferredPassID != nil && *req.PreferredPassID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_pass_id"})
	}

	result, err := h.service.Book(c.UserContext(), userID, services.BookInput{
		ClassID:         classID,
		PreferredPassID: req.PreferredPassID,
	})
	if err != nil {
		return mapBookingError(c, err)
	}

	status := fiber.StatusCreated
	if result.AlreadyBooked {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

func (h *BookingHandler) CancelBooking(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return notAuthenticated(c)
	}

	bookingID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_booking_id"})
	}

	if err := h.service.Cancel(c.UserContext(), userID, bookingID, h.now()); err != nil {
		return mapBookingError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *BookingHandler) ListBookings(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return notAuthenticated(c)
	}

	bookings, err := h.service.ListBookings(c.UserContext(), userID)
	if err != nil {
		return mapBookingError(c, err)
	}
	return c.JSON(fiber.Map{"bookings": bookings})
}

// ListSchedule returns upcoming classes from ?from= (RFC 3339, default now).
func (h *BookingHandler) ListSchedule(c *fiber.Ctx) error {
	from := h.now()
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_from"})
		}
		from = parsed.UTC()
	}

	limit := parsePositiveInt(c.Query("limit"), defaultScheduleLimit)
	if limit > maxScheduleLimit {
		limit = maxScheduleLimit
	}

	classes, err := h.service.ListSchedule(c.UserContext(), from, limit)
	if err != nil {
		return mapBookingError(c, err)
	}
	return c.JSON(fiber.Map{"classes": classes})
}

func mapBookingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	case errors.Is(err, services.ErrClassNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "class_not_found"})
	case errors.Is(err, services.ErrClassFull):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "class_full"})
	case errors.Is(err, services.ErrNoEligiblePass):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "no_credits"})
	case errors.Is(err, services.ErrBookingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "booking_not_found"})
	case errors.Is(err, services.ErrTooLateToCancel):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "too_late_to_cancel"})
	case errors.Is(err, services.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store_unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
}
