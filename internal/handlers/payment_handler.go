package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/logger"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

type paymentApplicationService interface {
	ConfirmCheckout(ctx context.Context, userID int64, sessionID string) (*models.PassGrantResult, error)
	ApplyCheckoutSession(ctx context.Context, session *stripe.CheckoutSession) (*models.PassGrantResult, error)
	ApplySubscriptionInvoice(ctx context.Context, invoice *stripe.Invoice) (*models.PassGrantResult, error)
}

type PaymentHandler struct {
	service       paymentApplicationService
	webhookSecret string
	log           *zap.Logger
}

type confirmCheckoutRequest struct {
	SessionID string `json:"session_id"`
}

func NewPaymentHandler(service paymentApplicationService, webhookSecret string, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:       service,
		webhookSecret: webhookSecret,
		log:           logger.OrNop(log),
	}
}

func (h *PaymentHandler) ConfirmCheckout(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return notAuthenticated(c)
	}

	var req confirmCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id_required"})
	}

	result, err := h.service.ConfirmCheckout(c.UserContext(), userID, req.SessionID)
	if err != nil {
		return mapPaymentError(c, err)
	}
	return c.JSON(result)
}

// StripeWebhook applies checkout sessions and subscription renewals pushed by
// Stripe. Anything other than a 2xx makes Stripe redeliver, so only failures
// that a later delivery could fix get one.
func (h *PaymentHandler) StripeWebhook(c *fiber.Ctx) error {
	if h.webhookSecret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhook_not_configured"})
	}

	signature := c.Get("Stripe-Signature")
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_signature"})
	}

	event, err := webhook.ConstructEvent(c.Body(), signature, h.webhookSecret)
	if err != nil {
		h.log.Warn("stripe webhook rejected", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			h.log.Error("decode checkout session", zap.String("event_id", event.ID), zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		result, err := h.service.ApplyCheckoutSession(c.UserContext(), &session)
		return h.webhookResponse(c, event, session.ID, result, err)
	case "invoice.paid", "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			h.log.Error("decode invoice", zap.String("event_id", event.ID), zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		result, err := h.service.ApplySubscriptionInvoice(c.UserContext(), &invoice)
		return h.webhookResponse(c, event, invoice.ID, result, err)
	default:
		return c.JSON(fiber.Map{"received": true})
	}
}

func (h *PaymentHandler) webhookResponse(
	c *fiber.Ctx,
	event stripe.Event,
	objectID string,
	result *models.PassGrantResult,
	err error,
) error {
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"received": true, "duplicate": result.Duplicate})
	case errors.Is(err, services.ErrPaymentNotCompleted):
		// Delayed payment methods complete the session before the money lands;
		// async_payment_succeeded follows.
		return c.JSON(fiber.Map{"received": true, "pending": true})
	case errors.Is(err, services.ErrNotRenewal):
		return c.JSON(fiber.Map{"received": true, "ignored": true})
	case errors.Is(err, services.ErrPaymentWithoutUser):
		h.log.Error("stripe payment has no user, dropping it",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("object_id", objectID),
		)
		return c.JSON(fiber.Map{"received": true, "ignored": true})
	default:
		h.log.Error("stripe webhook not applied",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("object_id", objectID),
			zap.Error(err),
		)
		return mapPaymentError(c, err)
	}
}

func mapPaymentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	case errors.Is(err, services.ErrPaymentUserMismatch):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "payment_user_mismatch"})
	case errors.Is(err, services.ErrPaymentNotCompleted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "payment_not_completed"})
	case errors.Is(err, services.ErrUnknownPassKind):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unknown_pass_kind"})
	case errors.Is(err, services.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store_unavailable"})
	case errors.Is(err, services.ErrPaymentProviderUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payment_provider_unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_not_applied"})
	}
}
