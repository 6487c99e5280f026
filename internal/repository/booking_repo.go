package repository

import (
	"context"
	"errors"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, user_id, class_id, pass_id, status, created_at, cancelled_at`

type BookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) FindActiveBooking(ctx context.Context, userID, classID int64) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1 AND class_id = $2 AND status = 'booked'
	`
	booking, err := scanBooking(r.db.QueryRow(ctx, query, userID, classID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return booking, err
}

// InsertBooking relies on the partial unique index over (user_id, class_id) for
// booked rows; a duplicate surfaces as ErrConstraintViolation.
func (r *BookingRepository) InsertBooking(
	ctx context.Context,
	userID int64,
	classID int64,
	passID *int64,
) (*models.Booking, error) {
	query := `
		INSERT INTO bookings (user_id, class_id, pass_id, status)
		VALUES ($1, $2, $3, 'booked')
		RETURNING ` + bookingColumns

	booking, err := scanBooking(r.db.QueryRow(ctx, query, userID, classID, passID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConstraintViolation
		}
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepository) GetByID(ctx context.Context, bookingID int64) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE id = $1
	`
	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}

func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, bookingID int64) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`
	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}

func (r *BookingRepository) CancelBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = NOW()
		WHERE id = $1 AND status = 'booked'
		RETURNING ` + bookingColumns

	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}

func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var booking models.Booking
	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.ClassID,
		&booking.PassID,
		&booking.Status,
		&booking.CreatedAt,
		&booking.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}
