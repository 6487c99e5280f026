package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

// MemoryStore is an in-process Transactor. Units of work run one at a time against
// a private copy of the state, which replaces the shared state only on success, so
// it behaves like a serializable database with rollback.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

type memoryState struct {
	passes        map[int64]models.Pass
	classes       map[int64]models.ClassInstance
	bookings      map[int64]models.Booking
	paymentEvents map[string]models.ProcessedPaymentEvent
	nextPassID    int64
	nextClassID   int64
	nextBookingID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			passes:        make(map[int64]models.Pass),
			classes:       make(map[int64]models.ClassInstance),
			bookings:      make(map[int64]models.Booking),
			paymentEvents: make(map[string]models.ProcessedPaymentEvent),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source used for created_at and updated_at.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// AddClass seeds the catalog. A zero ID is assigned from the sequence.
func (m *MemoryStore) AddClass(class models.ClassInstance) models.ClassInstance {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state
	if class.ID == 0 {
		st.nextClassID++
		class.ID = st.nextClassID
	} else if class.ID > st.nextClassID {
		st.nextClassID = class.ID
	}
	if class.CreatedAt.IsZero() {
		class.CreatedAt = m.now()
	}
	st.classes[class.ID] = class
	return class
}

// AddPass seeds a pass as if it had been granted earlier.
func (m *MemoryStore) AddPass(pass models.Pass) models.Pass {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state
	if pass.ID == 0 {
		st.nextPassID++
		pass.ID = st.nextPassID
	} else if pass.ID > st.nextPassID {
		st.nextPassID = pass.ID
	}
	if pass.CreatedAt.IsZero() {
		pass.CreatedAt = m.now()
	}
	if pass.UpdatedAt.IsZero() {
		pass.UpdatedAt = pass.CreatedAt
	}
	st.passes[pass.ID] = pass
	return pass
}

func (m *MemoryStore) Stores() Stores {
	return memoryStores(memoryView{store: m})
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(ctx, memoryStores(memoryView{store: m, tx: working})); err != nil {
		return err
	}
	m.state = working
	return nil
}

func memoryStores(view memoryView) Stores {
	return Stores{
		Passes:        memoryPasses{view},
		Classes:       memoryClasses{view},
		Bookings:      memoryBookings{view},
		PaymentEvents: memoryPaymentEvents{view},
	}
}

func (s *memoryState) clone() *memoryState {
	next := &memoryState{
		passes:        make(map[int64]models.Pass, len(s.passes)),
		classes:       make(map[int64]models.ClassInstance, len(s.classes)),
		bookings:      make(map[int64]models.Booking, len(s.bookings)),
		paymentEvents: make(map[string]models.ProcessedPaymentEvent, len(s.paymentEvents)),
		nextPassID:    s.nextPassID,
		nextClassID:   s.nextClassID,
		nextBookingID: s.nextBookingID,
	}
	for id, pass := range s.passes {
		next.passes[id] = pass
	}
	for id, class := range s.classes {
		next.classes[id] = class
	}
	for id, booking := range s.bookings {
		next.bookings[id] = booking
	}
	for key, event := range s.paymentEvents {
		next.paymentEvents[key] = event
	}
	return next
}

// memoryView runs against the transaction copy when tx is set, otherwise against
// the shared state under the store lock. Stored values are never mutated through
// their pointer fields, so copies of the maps are enough for isolation.
type memoryView struct {
	store *MemoryStore
	tx    *memoryState
}

func (v memoryView) with(ctx context.Context, fn func(st *memoryState, now time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx, v.store.now())
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state, v.store.now())
}

type memoryPasses struct{ memoryView }

func (p memoryPasses) ListByUser(ctx context.Context, userID int64) ([]models.Pass, error) {
	var passes []models.Pass
	err := p.with(ctx, func(st *memoryState, _ time.Time) error {
		passes = make([]models.Pass, 0)
		for _, pass := range st.passes {
			if pass.UserID == userID {
				passes = append(passes, pass)
			}
		}
		sort.Slice(passes, func(i, j int) bool {
			if !passes[i].CreatedAt.Equal(passes[j].CreatedAt) {
				return passes[i].CreatedAt.After(passes[j].CreatedAt)
			}
			return passes[i].ID > passes[j].ID
		})
		return nil
	})
	return passes, err
}

func (p memoryPasses) ListByUserForUpdate(ctx context.Context, userID int64) ([]models.Pass, error) {
	return p.ListByUser(ctx, userID)
}

func (p memoryPasses) GetByID(ctx context.Context, passID int64) (*models.Pass, error) {
	var found *models.Pass
	err := p.with(ctx, func(st *memoryState, _ time.Time) error {
		pass, ok := st.passes[passID]
		if !ok {
			return pgx.ErrNoRows
		}
		found = &pass
		return nil
	})
	return found, err
}

func (p memoryPasses) DebitOneCredit(ctx context.Context, passID int64) (*models.Pass, error) {
	var updated *models.Pass
	err := p.with(ctx, func(st *memoryState, now time.Time) error {
		pass, ok := st.passes[passID]
		if !ok {
			return pgx.ErrNoRows
		}
		if pass.Kind != models.PassKindFiniteCredit {
			return ErrInvalidOperation
		}
		remaining := 0
		if pass.RemainingCredits != nil && *pass.RemainingCredits > 1 {
			remaining = *pass.RemainingCredits - 1
		}
		pass.RemainingCredits = &remaining
		if remaining == 0 {
			pass.Active = false
		}
		pass.UpdatedAt = now
		st.passes[passID] = pass
		updated = &pass
		return nil
	})
	return updated, err
}

func (p memoryPasses) RefundOneCredit(ctx context.Context, passID int64) (*models.Pass, error) {
	var updated *models.Pass
	err := p.with(ctx, func(st *memoryState, now time.Time) error {
		pass, ok := st.passes[passID]
		if !ok {
			return pgx.ErrNoRows
		}
		if pass.Kind != models.PassKindFiniteCredit {
			return ErrInvalidOperation
		}
		remaining := 1
		if pass.RemainingCredits != nil {
			remaining = *pass.RemainingCredits + 1
		}
		pass.RemainingCredits = &remaining
		pass.Active = true
		pass.UpdatedAt = now
		st.passes[passID] = pass
		updated = &pass
		return nil
	})
	return updated, err
}

func (p memoryPasses) GrantCredits(
	ctx context.Context,
	userID int64,
	passType string,
	credits int,
) (*models.Pass, error) {
	var granted *models.Pass
	err := p.with(ctx, func(st *memoryState, now time.Time) error {
		pass, ok := st.findPassByType(userID, passType)
		if !ok {
			st.nextPassID++
			pass = models.Pass{
				ID:        st.nextPassID,
				UserID:    userID,
				PassType:  passType,
				CreatedAt: now,
			}
		}
		total := credits
		if pass.Kind == models.PassKindFiniteCredit && pass.RemainingCredits != nil {
			total += *pass.RemainingCredits
		}
		pass.Kind = models.PassKindFiniteCredit
		pass.RemainingCredits = &total
		pass.ValidUntil = nil
		pass.Active = true
		pass.UpdatedAt = now
		st.passes[pass.ID] = pass
		granted = &pass
		return nil
	})
	return granted, err
}

func (p memoryPasses) GrantOrRenewUnlimited(
	ctx context.Context,
	userID int64,
	passType string,
	validUntil time.Time,
) (*models.Pass, error) {
	var granted *models.Pass
	err := p.with(ctx, func(st *memoryState, now time.Time) error {
		pass, ok := st.findPassByType(userID, passType)
		if !ok {
			st.nextPassID++
			pass = models.Pass{
				ID:        st.nextPassID,
				UserID:    userID,
				PassType:  passType,
				CreatedAt: now,
			}
		}
		until := validUntil.UTC()
		pass.Kind = models.PassKindUnlimitedWindow
		pass.RemainingCredits = nil
		pass.ValidUntil = &until
		pass.Active = true
		pass.UpdatedAt = now
		st.passes[pass.ID] = pass
		granted = &pass
		return nil
	})
	return granted, err
}

func (st *memoryState) findPassByType(userID int64, passType string) (models.Pass, bool) {
	for _, pass := range st.passes {
		if pass.UserID == userID && pass.PassType == passType {
			return pass, true
		}
	}
	return models.Pass{}, false
}

type memoryClasses struct{ memoryView }

func (c memoryClasses) GetClass(ctx context.Context, classID int64) (*models.ClassInstance, error) {
	var found *models.ClassInstance
	err := c.with(ctx, func(st *memoryState, _ time.Time) error {
		class, ok := st.classes[classID]
		if !ok {
			return pgx.ErrNoRows
		}
		found = &class
		return nil
	})
	return found, err
}

// LockClass is a no-op: a memory unit of work already excludes all others.
func (c memoryClasses) LockClass(ctx context.Context, _ int64) error {
	return ctx.Err()
}

func (c memoryClasses) CountBookedSeats(ctx context.Context, classID int64) (int, error) {
	var count int
	err := c.with(ctx, func(st *memoryState, _ time.Time) error {
		count = st.countBooked(classID)
		return nil
	})
	return count, err
}

func (c memoryClasses) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]models.ClassAvailability, error) {
	var classes []models.ClassAvailability
	err := c.with(ctx, func(st *memoryState, _ time.Time) error {
		classes = make([]models.ClassAvailability, 0)
		for _, class := range st.classes {
			if class.StartsAt.Before(from) {
				continue
			}
			classes = append(classes, models.ClassAvailability{
				ClassInstance: class,
				BookedSeats:   st.countBooked(class.ID),
			})
		}
		sort.Slice(classes, func(i, j int) bool {
			if !classes[i].StartsAt.Equal(classes[j].StartsAt) {
				return classes[i].StartsAt.Before(classes[j].StartsAt)
			}
			return classes[i].ID < classes[j].ID
		})
		if limit > 0 && len(classes) > limit {
			classes = classes[:limit]
		}
		return nil
	})
	return classes, err
}

func (st *memoryState) countBooked(classID int64) int {
	count := 0
	for _, booking := range st.bookings {
		if booking.ClassID == classID && booking.Status == models.BookingStatusBooked {
			count++
		}
	}
	return count
}

type memoryBookings struct{ memoryView }

func (b memoryBookings) FindActiveBooking(ctx context.Context, userID, classID int64) (*models.Booking, error) {
	var found *models.Booking
	err := b.with(ctx, func(st *memoryState, _ time.Time) error {
		if booking, ok := st.activeBooking(userID, classID); ok {
			found = &booking
		}
		return nil
	})
	return found, err
}

func (b memoryBookings) InsertBooking(
	ctx context.Context,
	userID int64,
	classID int64,
	passID *int64,
) (*models.Booking, error) {
	var inserted *models.Booking
	err := b.with(ctx, func(st *memoryState, now time.Time) error {
		if _, ok := st.activeBooking(userID, classID); ok {
			return ErrConstraintViolation
		}
		if _, ok := st.classes[classID]; !ok {
			return pgx.ErrNoRows
		}
		st.nextBookingID++
		booking := models.Booking{
			ID:        st.nextBookingID,
			UserID:    userID,
			ClassID:   classID,
			PassID:    passID,
			Status:    models.BookingStatusBooked,
			CreatedAt: now,
		}
		st.bookings[booking.ID] = booking
		inserted = &booking
		return nil
	})
	return inserted, err
}

func (b memoryBookings) GetByID(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var found *models.Booking
	err := b.with(ctx, func(st *memoryState, _ time.Time) error {
		booking, ok := st.bookings[bookingID]
		if !ok {
			return pgx.ErrNoRows
		}
		found = &booking
		return nil
	})
	return found, err
}

func (b memoryBookings) GetByIDForUpdate(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return b.GetByID(ctx, bookingID)
}

func (b memoryBookings) CancelBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var cancelled *models.Booking
	err := b.with(ctx, func(st *memoryState, now time.Time) error {
		booking, ok := st.bookings[bookingID]
		if !ok || booking.Status != models.BookingStatusBooked {
			return pgx.ErrNoRows
		}
		at := now
		booking.Status = models.BookingStatusCancelled
		booking.CancelledAt = &at
		st.bookings[bookingID] = booking
		cancelled = &booking
		return nil
	})
	return cancelled, err
}

func (b memoryBookings) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	var bookings []models.Booking
	err := b.with(ctx, func(st *memoryState, _ time.Time) error {
		bookings = make([]models.Booking, 0)
		for _, booking := range st.bookings {
			if booking.UserID == userID {
				bookings = append(bookings, booking)
			}
		}
		sort.Slice(bookings, func(i, j int) bool {
			if !bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
				return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
			}
			return bookings[i].ID > bookings[j].ID
		})
		return nil
	})
	return bookings, err
}

func (st *memoryState) activeBooking(userID, classID int64) (models.Booking, bool) {
	for _, booking := range st.bookings {
		if booking.UserID == userID && booking.ClassID == classID && booking.Status == models.BookingStatusBooked {
			return booking, true
		}
	}
	return models.Booking{}, false
}

type memoryPaymentEvents struct{ memoryView }

func paymentEventKey(provider, eventID string) string {
	return provider + "\x00" + eventID
}

func (e memoryPaymentEvents) Claim(ctx context.Context, event models.ProcessedPaymentEvent) (bool, error) {
	claimed := false
	err := e.with(ctx, func(st *memoryState, now time.Time) error {
		key := paymentEventKey(event.Provider, event.EventID)
		if _, ok := st.paymentEvents[key]; ok {
			return nil
		}
		event.ProcessedAt = now
		st.paymentEvents[key] = event
		claimed = true
		return nil
	})
	return claimed, err
}

func (e memoryPaymentEvents) Complete(ctx context.Context, event models.ProcessedPaymentEvent) error {
	return e.with(ctx, func(st *memoryState, now time.Time) error {
		key := paymentEventKey(event.Provider, event.EventID)
		existing, ok := st.paymentEvents[key]
		if !ok {
			return pgx.ErrNoRows
		}
		existing.GrantType = event.GrantType
		existing.CreditsAdded = event.CreditsAdded
		existing.ExpiresAt = event.ExpiresAt
		existing.PassID = event.PassID
		existing.ProcessedAt = now
		st.paymentEvents[key] = existing
		return nil
	})
}

func (e memoryPaymentEvents) Get(ctx context.Context, provider, eventID string) (*models.ProcessedPaymentEvent, error) {
	var found *models.ProcessedPaymentEvent
	err := e.with(ctx, func(st *memoryState, _ time.Time) error {
		event, ok := st.paymentEvents[paymentEventKey(provider, eventID)]
		if !ok {
			return pgx.ErrNoRows
		}
		found = &event
		return nil
	})
	return found, err
}
