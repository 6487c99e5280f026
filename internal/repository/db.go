package repository

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrConstraintViolation = errors.New("constraint violation")
	ErrInvalidOperation    = errors.New("invalid operation")
)

const uniqueViolationCode = "23505"

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PassStore interface {
	ListByUser(ctx context.Context, userID int64) ([]models.Pass, error)
	ListByUserForUpdate(ctx context.Context, userID int64) ([]models.Pass, error)
	GetByID(ctx context.Context, passID int64) (*models.Pass, error)
	DebitOneCredit(ctx context.Context, passID int64) (*models.Pass, error)
	RefundOneCredit(ctx context.Context, passID int64) (*models.Pass, error)
	GrantCredits(ctx context.Context, userID int64, passType string, credits int) (*models.Pass, error)
	GrantOrRenewUnlimited(ctx context.Context, userID int64, passType string, validUntil time.Time) (*models.Pass, error)
}

type ClassCatalog interface {
	GetClass(ctx context.Context, classID int64) (*models.ClassInstance, error)
	LockClass(ctx context.Context, classID int64) error
	CountBookedSeats(ctx context.Context, classID int64) (int, error)
	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]models.ClassAvailability, error)
}

type BookingLedger interface {
	// FindActiveBooking returns nil without error when the pair has no booked row.
	FindActiveBooking(ctx context.Context, userID, classID int64) (*models.Booking, error)
	InsertBooking(ctx context.Context, userID, classID int64, passID *int64) (*models.Booking, error)
	GetByID(ctx context.Context, bookingID int64) (*models.Booking, error)
	GetByIDForUpdate(ctx context.Context, bookingID int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID int64) (*models.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Booking, error)
}

type PaymentEventStore interface {
	// Claim records the event and reports false when it was already recorded.
	Claim(ctx context.Context, event models.ProcessedPaymentEvent) (bool, error)
	Complete(ctx context.Context, event models.ProcessedPaymentEvent) error
	Get(ctx context.Context, provider, eventID string) (*models.ProcessedPaymentEvent, error)
}

// Stores groups the stores that take part in one unit of work.
type Stores struct {
	Passes        PassStore
	Classes       ClassCatalog
	Bookings      BookingLedger
	PaymentEvents PaymentEventStore
}

type Transactor interface {
	Stores() Stores
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

type PgTransactor struct {
	pool *pgxpool.Pool
}

func NewPgTransactor(pool *pgxpool.Pool) *PgTransactor {
	return &PgTransactor{pool: pool}
}

func newStores(db DBTX) Stores {
	return Stores{
		Passes:        NewPassRepository(db),
		Classes:       NewClassRepository(db),
		Bookings:      NewBookingRepository(db),
		PaymentEvents: NewPaymentEventRepository(db),
	}
}

func (t *PgTransactor) Stores() Stores {
	return newStores(t.pool)
}

func (t *PgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, newStores(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsUnavailable reports whether err means the store could not be reached in time,
// as opposed to a query or constraint failure.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

type rowScanner interface {
	Scan(dest ...any) error
}
