package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var memoryNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newMemoryStoreForTest() *MemoryStore {
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return memoryNow })
	return store
}

func TestMemoryStoreRollsBackFailedUnitOfWork(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStoreForTest()
	credits := 2
	pass := store.AddPass(models.Pass{UserID: 1, PassType: "class_pack_5", Kind: models.PassKindFiniteCredit, RemainingCredits: &credits, Active: true})

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, stores Stores) error {
		if _, err := stores.Passes.DebitOneCredit(ctx, pass.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := store.Stores().Passes.GetByID(ctx, pass.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *stored.RemainingCredits)
}

func TestMemoryStoreDebitNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStoreForTest()
	credits := 1
	pass := store.AddPass(models.Pass{UserID: 1, PassType: "drop_in", Kind: models.PassKindFiniteCredit, RemainingCredits: &credits, Active: true})

	first, err := store.Stores().Passes.DebitOneCredit(ctx, pass.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, *first.RemainingCredits)
	assert.False(t, first.Active)

	second, err := store.Stores().Passes.DebitOneCredit(ctx, pass.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, *second.RemainingCredits)
	assert.False(t, second.Active)
}

func TestMemoryStoreDebitRejectsUnlimitedPass(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStoreForTest()
	until := memoryNow.Add(24 * time.Hour)
	pass := store.AddPass(models.Pass{UserID: 1, PassType: "unlimited_week", Kind: models.PassKindUnlimitedWindow, ValidUntil: &until, Active: true})

	_, err := store.Stores().Passes.DebitOneCredit(ctx, pass.ID)
	require.ErrorIs(t, err, ErrInvalidOperation)

	_, err = store.Stores().Passes.DebitOneCredit(ctx, 999)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemoryStoreGrantCreditsAccumulates(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStoreForTest()

	first, err := store.Stores().Passes.GrantCredits(ctx, 1, "class_pack_5", 5)
	require.NoError(t, err)
	second, err := store.Stores().Passes.GrantCredits(ctx, 1, "class_pack_5", 5)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 10, *second.RemainingCredits)

	other, err := store.Stores().Passes.GrantCredits(ctx, 1, "drop_in", 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	passes, err := store.Stores().Passes.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, passes, 2)
}

func TestMemoryStoreOneActiveBookingPerUserAndClass(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStoreForTest()
	class := store.AddClass(models.ClassInstance{Title: "Hot Yin", StartsAt: memoryNow.Add(time.Hour), EndsAt: memoryNow.Add(2 * time.Hour), Capacity: 5})

	booking, err := store.Stores().Bookings.InsertBooking(ctx, 1, class.ID, nil)
	require.NoError(t, err)

	_, err = store.Stores().Bookings.InsertBooking(ctx, 1, class.ID, nil)
	require.ErrorIs(t, err, ErrConstraintViolation)

	cancelled, err := store.Stores().Bookings.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = store.Stores().Bookings.CancelBooking(ctx, booking.ID)
	require.ErrorIs(t, err, pgx.ErrNoRows)

	again, err := store.Stores().Bookings.InsertBooking(ctx, 1, class.ID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, booking.ID, again.ID)

	active, err := store.Stores().Bookings.FindActiveBooking(ctx, 1, class.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, again.ID, active.ID)

	seats, err := store.Stores().Classes.CountBookedSeats(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, seats)
}

func TestMemoryStorePaymentEventClaim(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStoreForTest()
	event := models.ProcessedPaymentEvent{Provider: "stripe", EventID: "cs_1", UserID: 1, PlanID: "price_drop_in"}

	claimed, err := store.Stores().PaymentEvents.Claim(ctx, event)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Stores().PaymentEvents.Claim(ctx, event)
	require.NoError(t, err)
	assert.False(t, claimed)

	added := 1
	event.GrantType = models.GrantTypeCredits
	event.CreditsAdded = &added
	event.PassID = 4
	require.NoError(t, store.Stores().PaymentEvents.Complete(ctx, event))

	stored, err := store.Stores().PaymentEvents.Get(ctx, "stripe", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.PassID)
	assert.Equal(t, 1, *stored.Result().Added)

	_, err = store.Stores().PaymentEvents.Get(ctx, "stripe", "cs_2")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	store := newMemoryStoreForTest()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.WithinTx(ctx, func(context.Context, Stores) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
