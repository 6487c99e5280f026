package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/events"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/logger"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrClassNotFound    = errors.New("class not found")
	ErrClassFull        = errors.New("class full")
	ErrNoEligiblePass   = errors.New("no eligible pass")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrTooLateToCancel  = errors.New("too late to cancel")
	ErrStoreUnavailable = errors.New("store unavailable")
)

const DefaultCancelCutoff = 2 * time.Hour

type BookingPolicy struct {
	CancelCutoff time.Duration
	// RefundOnCancel restores the credit spent by a booking when it is cancelled
	// inside the allowed window. Off unless the studio opts in.
	RefundOnCancel bool
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{CancelCutoff: DefaultCancelCutoff}
}

type BookingService struct {
	store    repository.Transactor
	notifier events.Notifier
	policy   BookingPolicy
	now      func() time.Time
	log      *zap.Logger
	tracer   trace.Tracer
}

func NewBookingService(
	store repository.Transactor,
	notifier events.Notifier,
	policy BookingPolicy,
	log *zap.Logger,
) *BookingService {
	if policy.CancelCutoff <= 0 {
		policy.CancelCutoff = DefaultCancelCutoff
	}
	return &BookingService{
		store:    store,
		notifier: events.OrNop(notifier),
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.OrNop(log),
		tracer:   otel.Tracer("studio/booking"),
	}
}

// SetClock replaces the clock used for pass eligibility.
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

type BookInput struct {
	ClassID         int64
	PreferredPassID *int64
}

// Book reserves a seat for the user. The class lock, seat count, pass debit and
// booking insert run in one transaction. Booking a class the user already holds
// succeeds with AlreadyBooked set and spends nothing.
func (s *BookingService) Book(ctx context.Context, userID int64, input BookInput) (*models.BookResult, error) {
	ctx, span := s.tracer.Start(ctx, "booking.book", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("class.id", input.ClassID),
	))
	defer span.End()

	if userID <= 0 || input.ClassID <= 0 {
		return nil, ErrInvalidInput
	}

	now := s.now()
	var result models.BookResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		result = models.BookResult{}

		if err := stores.Classes.LockClass(ctx, input.ClassID); err != nil {
			return err
		}
		class, err := stores.Classes.GetClass(ctx, input.ClassID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrClassNotFound
			}
			return err
		}

		existing, err := stores.Bookings.FindActiveBooking(ctx, userID, class.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			result, err = alreadyBookedResult(ctx, stores.Passes, existing)
			return err
		}

		booked, err := stores.Classes.CountBookedSeats(ctx, class.ID)
		if err != nil {
			return err
		}
		if booked >= class.Capacity {
			return ErrClassFull
		}

		passes, err := stores.Passes.ListByUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		chosen, ok := choosePass(passes, input.PreferredPassID, now)
		if !ok {
			return ErrNoEligiblePass
		}

		passID := chosen.ID
		if chosen.Kind == models.PassKindFiniteCredit {
			debited, err := stores.Passes.DebitOneCredit(ctx, chosen.ID)
			if err != nil {
				return err
			}
			result.UsedCredit = true
			result.RemainingCredits = debited.RemainingCredits
		}

		booking, err := stores.Bookings.InsertBooking(ctx, userID, class.ID, &passID)
		if err != nil {
			return err
		}
		result.BookingID = booking.ID
		result.PassID = &passID
		return nil
	})

	// A concurrent insert for the same pair won; the debit above was rolled back.
	if errors.Is(err, repository.ErrConstraintViolation) {
		existing, findErr := s.store.Stores().Bookings.FindActiveBooking(ctx, userID, input.ClassID)
		switch {
		case findErr != nil:
			err = findErr
		case existing != nil:
			result, err = alreadyBookedResult(ctx, s.store.Stores().Passes, existing)
		}
	}
	if err != nil {
		err = classifyStoreError("book class", err)
		recordSpanError(span, err)
		s.log.Info("booking rejected",
			zap.Int64("user_id", userID),
			zap.Int64("class_id", input.ClassID),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("booking.id", result.BookingID),
		attribute.Bool("booking.used_credit", result.UsedCredit),
		attribute.Bool("booking.already_booked", result.AlreadyBooked),
	)
	if !result.AlreadyBooked {
		s.log.Info("class booked",
			zap.Int64("user_id", userID),
			zap.Int64("class_id", input.ClassID),
			zap.Int64("booking_id", result.BookingID),
			zap.Bool("used_credit", result.UsedCredit),
		)
		bookingID := result.BookingID
		s.notifier.Notify(ctx, events.Change{
			Type:       events.TypeBookingsChanged,
			Reason:     "booked",
			UserID:     userID,
			BookingID:  &bookingID,
			PassID:     result.PassID,
			OccurredAt: now,
		})
		if result.UsedCredit {
			s.notifier.Notify(ctx, events.Change{
				Type:       events.TypePassesChanged,
				Reason:     "debited",
				UserID:     userID,
				BookingID:  &bookingID,
				PassID:     result.PassID,
				OccurredAt: now,
			})
		}
	}
	return &result, nil
}

// Cancel releases the user's seat when the class starts at least CancelCutoff
// after now. A booking that belongs to someone else reads as not found.
func (s *BookingService) Cancel(ctx context.Context, userID int64, bookingID int64, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("booking.id", bookingID),
	))
	defer span.End()

	if userID <= 0 || bookingID <= 0 {
		return ErrInvalidInput
	}

	var refunded *models.Pass
	err := s.store.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		refunded = nil

		booking, err := stores.Bookings.GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBookingNotFound
			}
			return err
		}
		if booking.UserID != userID || booking.Status != models.BookingStatusBooked {
			return ErrBookingNotFound
		}

		class, err := stores.Classes.GetClass(ctx, booking.ClassID)
		if err != nil {
			return err
		}
		if class.StartsAt.Sub(now) < s.policy.CancelCutoff {
			return ErrTooLateToCancel
		}

		if _, err := stores.Bookings.CancelBooking(ctx, bookingID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBookingNotFound
			}
			return err
		}

		if !s.policy.RefundOnCancel || booking.PassID == nil {
			return nil
		}
		pass, err := stores.Passes.GetByID(ctx, *booking.PassID)
		if err != nil {
			return err
		}
		if pass.Kind != models.PassKindFiniteCredit {
			return nil
		}
		refunded, err = stores.Passes.RefundOneCredit(ctx, pass.ID)
		return err
	})
	if err != nil {
		err = classifyStoreError("cancel booking", err)
		recordSpanError(span, err)
		s.log.Info("cancellation rejected",
			zap.Int64("user_id", userID),
			zap.Int64("booking_id", bookingID),
			zap.Error(err),
		)
		return err
	}

	s.log.Info("booking cancelled",
		zap.Int64("user_id", userID),
		zap.Int64("booking_id", bookingID),
		zap.Bool("refunded", refunded != nil),
	)
	s.notifier.Notify(ctx, events.Change{
		Type:       events.TypeBookingsChanged,
		Reason:     "cancelled",
		UserID:     userID,
		BookingID:  &bookingID,
		OccurredAt: now,
	})
	if refunded != nil {
		passID := refunded.ID
		s.notifier.Notify(ctx, events.Change{
			Type:       events.TypePassesChanged,
			Reason:     "refunded",
			UserID:     userID,
			BookingID:  &bookingID,
			PassID:     &passID,
			OccurredAt: now,
		})
	}
	return nil
}

func (s *BookingService) ListBookings(ctx context.Context, userID int64) ([]models.Booking, error) {
	bookings, err := s.store.Stores().Bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, classifyStoreError("list bookings", err)
	}
	return bookings, nil
}

func (s *BookingService) ListSchedule(ctx context.Context, from time.Time, limit int) ([]models.ClassAvailability, error) {
	if limit <= 0 {
		return nil, ErrInvalidInput
	}
	classes, err := s.store.Stores().Classes.ListUpcoming(ctx, from, limit)
	if err != nil {
		return nil, classifyStoreError("list schedule", err)
	}
	return classes, nil
}

// choosePass picks the pass a booking is charged to. Any usable unlimited pass
// wins and costs nothing. Otherwise the preferred finite pass is used if it still
// has credit, falling back to the oldest usable finite pass.
func choosePass(passes []models.Pass, preferredPassID *int64, now time.Time) (models.Pass, bool) {
	var unlimited []models.Pass
	var finite []models.Pass
	for _, pass := range passes {
		if !models.IsEligible(pass, now) {
			continue
		}
		switch pass.Kind {
		case models.PassKindUnlimitedWindow:
			unlimited = append(unlimited, pass)
		case models.PassKindFiniteCredit:
			finite = append(finite, pass)
		}
	}

	if len(unlimited) > 0 {
		sort.Slice(unlimited, func(i, j int) bool {
			if !unlimited[i].ValidUntil.Equal(*unlimited[j].ValidUntil) {
				return unlimited[i].ValidUntil.After(*unlimited[j].ValidUntil)
			}
			return unlimited[i].ID < unlimited[j].ID
		})
		return unlimited[0], true
	}

	if preferredPassID != nil {
		for _, pass := range finite {
			if pass.ID == *preferredPassID {
				return pass, true
			}
		}
	}

	if len(finite) == 0 {
		return models.Pass{}, false
	}
	sort.Slice(finite, func(i, j int) bool {
		if !finite[i].CreatedAt.Equal(finite[j].CreatedAt) {
			return finite[i].CreatedAt.Before(finite[j].CreatedAt)
		}
		return finite[i].ID < finite[j].ID
	})
	return finite[0], true
}

func alreadyBookedResult(ctx context.Context, passes repository.PassStore, booking *models.Booking) (models.BookResult, error) {
	result := models.BookResult{
		BookingID:     booking.ID,
		PassID:        booking.PassID,
		AlreadyBooked: true,
	}
	if booking.PassID == nil {
		return result, nil
	}
	pass, err := passes.GetByID(ctx, *booking.PassID)
	if err != nil {
		return models.BookResult{}, err
	}
	result.RemainingCredits = pass.RemainingCredits
	return result, nil
}

var businessErrors = []error{
	ErrInvalidInput,
	ErrClassNotFound,
	ErrClassFull,
	ErrNoEligiblePass,
	ErrBookingNotFound,
	ErrTooLateToCancel,
	ErrUnknownPassKind,
	ErrPaymentNotCompleted,
}

// classifyStoreError leaves business failures untouched and folds timeouts and
// connection failures into ErrStoreUnavailable.
func classifyStoreError(op string, err error) error {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	if repository.IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return
		}
	}
	span.SetStatus(codes.Error, err.Error())
}
