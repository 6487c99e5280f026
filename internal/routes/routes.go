package routes

import (
	"context"
	"fmt"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/config"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/events"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/handlers"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/middleware"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/repository"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/services"
	feedws "github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Dependencies are the process-level resources the routes are built on. Redis
// and Publisher are optional.
type Dependencies struct {
	Store     repository.Transactor
	Redis     middleware.RedisClient
	Publisher events.Notifier
	Log       *zap.Logger
}

// RegisterRoutes wires services and handlers onto app. The change-feed hub runs
// until ctx is cancelled.
func RegisterRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, deps Dependencies) error {
	if deps.Store == nil {
		return fmt.Errorf("store is required")
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	plans, err := services.LoadPlanTable(cfg.PassPlansFile)
	if err != nil {
		return err
	}

	hub := feedws.NewHub(log.Named("feed"))
	go hub.Run(ctx)

	notifier := events.Fanout{hub}
	if deps.Publisher != nil {
		notifier = append(notifier, deps.Publisher)
	}

	bookingService := services.NewBookingService(deps.Store, notifier, services.BookingPolicy{
		CancelCutoff:   cfg.CancelCutoff,
		RefundOnCancel: cfg.RefundOnCancel,
	}, log.Named("booking"))
	passService := services.NewPassService(deps.Store)
	reconciler := services.NewPaymentReconciler(deps.Store, plans, notifier, log.Named("payments"))

	var checkout services.CheckoutSessionFetcher
	if cfg.StripeSecretKey != "" {
		checkout = services.NewStripeCheckoutClient(cfg.StripeSecretKey)
	}
	paymentService := services.NewPaymentService(checkout, reconciler)

	bookingHandler := handlers.NewBookingHandler(bookingService)
	passHandler := handlers.NewPassHandler(passService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.StripeWebhookSecret, log.Named("stripe"))
	feedHandler := handlers.NewFeedHandler(hub, cfg.JWTSecret)

	idempotent := middleware.Idempotency(middleware.IdempotencyConfig{
		Redis: deps.Redis,
		Log:   log.Named("idempotency"),
	})

	api := app.Group("/api")

	api.Post("/webhooks/stripe", paymentHandler.StripeWebhook)

	api.Use("/v1/ws", feedHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(feedHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	classes := authProtected.Group("/classes")
	classes.Get("", bookingHandler.ListSchedule)
	classes.Post("/:id/book", idempotent, bookingHandler.BookClass)

	bookings := authProtected.Group("/bookings")
	bookings.Get("", bookingHandler.ListBookings)
	bookings.Post("/:id/cancel", idempotent, bookingHandler.CancelBooking)

	authProtected.Get("/passes", passHandler.ListPasses)

	payments := authProtected.Group("/payments")
	payments.Post("/confirm", idempotent, paymentHandler.ConfirmCheckout)

	return nil
}
