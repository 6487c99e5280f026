package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/events"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/logger"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrUnknownPassKind     = errors.New("unknown pass kind")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrPaymentUserMismatch = errors.New("payment belongs to another user")
)

// PaymentReconciler turns completed payments into pass grants. Each provider event
// id is recorded in the same transaction as the grant, so a retried webhook or a
// second confirmation of the same checkout returns the first result unchanged.
type PaymentReconciler struct {
	store    repository.Transactor
	plans    *PlanTable
	notifier events.Notifier
	now      func() time.Time
	log      *zap.Logger
	tracer   trace.Tracer
}

func NewPaymentReconciler(
	store repository.Transactor,
	plans *PlanTable,
	notifier events.Notifier,
	log *zap.Logger,
) *PaymentReconciler {
	return &PaymentReconciler{
		store:    store,
		plans:    plans,
		notifier: events.OrNop(notifier),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.OrNop(log),
		tracer:   otel.Tracer("studio/payments"),
	}
}

func (r *PaymentReconciler) SetClock(now func() time.Time) {
	r.now = now
}

func (r *PaymentReconciler) ApplyPayment(ctx context.Context, event models.PaymentEvent) (*models.PassGrantResult, error) {
	ctx, span := r.tracer.Start(ctx, "payments.apply", trace.WithAttributes(
		attribute.String("payment.provider", event.Provider),
		attribute.String("payment.event_id", event.EventID),
		attribute.String("payment.plan_id", event.PlanID),
		attribute.Int64("user.id", event.UserID),
	))
	defer span.End()

	if event.Provider == "" || event.EventID == "" || event.UserID <= 0 {
		return nil, ErrInvalidInput
	}
	if !event.Completed {
		return nil, ErrPaymentNotCompleted
	}

	now := r.now()
	var result models.PassGrantResult
	err := r.store.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		// A redelivery answers from the stored row even if its plan has since been
		// dropped from the table.
		existing, err := stores.PaymentEvents.Get(ctx, event.Provider, event.EventID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if existing != nil {
			result, err = duplicateResult(existing, event)
			return err
		}

		plan, ok := r.plans.Lookup(event.PlanID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPassKind, event.PlanID)
		}

		record := models.ProcessedPaymentEvent{
			Provider: event.Provider,
			EventID:  event.EventID,
			UserID:   event.UserID,
			PlanID:   event.PlanID,
		}
		claimed, err := stores.PaymentEvents.Claim(ctx, record)
		if err != nil {
			return err
		}
		if !claimed {
			existing, err := stores.PaymentEvents.Get(ctx, event.Provider, event.EventID)
			if err != nil {
				return err
			}
			result, err = duplicateResult(existing, event)
			return err
		}

		var pass *models.Pass
		switch plan.GrantType() {
		case models.GrantTypeCredits:
			pass, err = stores.Passes.GrantCredits(ctx, event.UserID, plan.PassType, plan.Credits)
			if err != nil {
				return err
			}
			added := plan.Credits
			record.CreditsAdded = &added
		default:
			validUntil := now.Add(plan.Duration())
			pass, err = stores.Passes.GrantOrRenewUnlimited(ctx, event.UserID, plan.PassType, validUntil)
			if err != nil {
				return err
			}
			record.ExpiresAt = pass.ValidUntil
		}
		record.GrantType = plan.GrantType()
		record.PassID = pass.ID

		if err := stores.PaymentEvents.Complete(ctx, record); err != nil {
			return err
		}
		result = record.Result()
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrPaymentUserMismatch) {
			err = classifyStoreError("apply payment", err)
		}
		recordSpanError(span, err)
		r.log.Error("payment not applied",
			zap.String("event_id", event.EventID),
			zap.Int64("user_id", event.UserID),
			zap.String("plan_id", event.PlanID),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("grant.type", result.Type),
		attribute.Bool("grant.duplicate", result.Duplicate),
	)
	if result.Duplicate {
		r.log.Info("payment already applied",
			zap.String("event_id", event.EventID),
			zap.Int64("user_id", event.UserID),
		)
		return &result, nil
	}

	r.log.Info("payment applied",
		zap.String("event_id", event.EventID),
		zap.Int64("user_id", event.UserID),
		zap.String("plan_id", event.PlanID),
		zap.String("grant_type", result.Type),
		zap.Int64("pass_id", result.PassID),
	)
	passID := result.PassID
	r.notifier.Notify(ctx, events.Change{
		Type:       events.TypePassesChanged,
		Reason:     "granted",
		UserID:     event.UserID,
		PassID:     &passID,
		OccurredAt: now,
	})
	return &result, nil
}

func duplicateResult(existing *models.ProcessedPaymentEvent, event models.PaymentEvent) (models.PassGrantResult, error) {
	if existing.UserID != event.UserID {
		return models.PassGrantResult{}, ErrPaymentUserMismatch
	}
	result := existing.Result()
	result.Duplicate = true
	return result, nil
}
