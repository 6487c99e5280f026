package repository

import (
	"context"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
)

type ClassRepository struct {
	db DBTX
}

func NewClassRepository(db DBTX) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) GetClass(ctx context.Context, classID int64) (*models.ClassInstance, error) {
	query := `
		SELECT id, title, instructor_id, starts_at, ends_at, capacity, created_at
		FROM classes
		WHERE id = $1
	`
	var class models.ClassInstance
	err := r.db.QueryRow(ctx, query, classID).Scan(
		&class.ID,
		&class.Title,
		&class.InstructorID,
		&class.StartsAt,
		&class.EndsAt,
		&class.Capacity,
		&class.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &class, nil
}

// LockClass holds a transaction-scoped advisory lock on the class. Every booking
// path takes it before counting seats, so the count and the insert cannot interleave
// with another booking for the same class.
func (r *ClassRepository) LockClass(ctx context.Context, classID int64) error {
	_, err := r.db.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", classID)
	return err
}

func (r *ClassRepository) CountBookedSeats(ctx context.Context, classID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE class_id = $1 AND status = 'booked'
	`
	var count int
	if err := r.db.QueryRow(ctx, query, classID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ClassRepository) ListUpcoming(
	ctx context.Context,
	from time.Time,
	limit int,
) ([]models.ClassAvailability, error) {
	query := `
		SELECT c.id, c.title, c.instructor_id, c.starts_at, c.ends_at, c.capacity, c.created_at,
		       COUNT(b.id) FILTER (WHERE b.status = 'booked') AS booked_seats
		FROM classes c
		LEFT JOIN bookings b ON b.class_id = c.id
		WHERE c.starts_at >= $1
		GROUP BY c.id
		ORDER BY c.starts_at ASC, c.id ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, from.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	classes := make([]models.ClassAvailability, 0)
	for rows.Next() {
		var class models.ClassAvailability
		if err := rows.Scan(
			&class.ID,
			&class.Title,
			&class.InstructorID,
			&class.StartsAt,
			&class.EndsAt,
			&class.Capacity,
			&class.CreatedAt,
			&class.BookedSeats,
		); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return classes, nil
}
