package repository

import (
	"context"
	"errors"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

const passColumns = `id, user_id, pass_type, kind, remaining_credits, valid_until, active, created_at, updated_at`

type PassRepository struct {
	db DBTX
}

func NewPassRepository(db DBTX) *PassRepository {
	return &PassRepository{db: db}
}

func (r *PassRepository) ListByUser(ctx context.Context, userID int64) ([]models.Pass, error) {
	query := `
		SELECT ` + passColumns + `
		FROM passes
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.list(ctx, query, userID)
}

func (r *PassRepository) ListByUserForUpdate(ctx context.Context, userID int64) ([]models.Pass, error) {
	query := `
		SELECT ` + passColumns + `
		FROM passes
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		FOR UPDATE
	`
	return r.list(ctx, query, userID)
}

func (r *PassRepository) GetByID(ctx context.Context, passID int64) (*models.Pass, error) {
	query := `
		SELECT ` + passColumns + `
		FROM passes
		WHERE id = $1
	`
	return scanPass(r.db.QueryRow(ctx, query, passID))
}

// DebitOneCredit spends one credit, floored at zero. A pass that reaches zero is
// deactivated in the same statement.
func (r *PassRepository) DebitOneCredit(ctx context.Context, passID int64) (*models.Pass, error) {
	query := `
		UPDATE passes
		SET remaining_credits = GREATEST(remaining_credits - 1, 0),
		    active = CASE WHEN GREATEST(remaining_credits - 1, 0) = 0 THEN FALSE ELSE active END,
		    updated_at = NOW()
		WHERE id = $1 AND kind = 'finite_credit'
		RETURNING ` + passColumns

	pass, err := scanPass(r.db.QueryRow(ctx, query, passID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMissingFinitePass(ctx, passID)
	}
	return pass, err
}

func (r *PassRepository) RefundOneCredit(ctx context.Context, passID int64) (*models.Pass, error) {
	query := `
		UPDATE passes
		SET remaining_credits = remaining_credits + 1,
		    active = TRUE,
		    updated_at = NOW()
		WHERE id = $1 AND kind = 'finite_credit'
		RETURNING ` + passColumns

	pass, err := scanPass(r.db.QueryRow(ctx, query, passID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMissingFinitePass(ctx, passID)
	}
	return pass, err
}

func (r *PassRepository) GrantCredits(
	ctx context.Context,
	userID int64,
	passType string,
	credits int,
) (*models.Pass, error) {
	query := `
		INSERT INTO passes (user_id, pass_type, kind, remaining_credits, valid_until, active)
		VALUES ($1, $2, 'finite_credit', $3, NULL, TRUE)
		ON CONFLICT (user_id, pass_type) DO UPDATE
		SET kind = 'finite_credit',
		    remaining_credits = COALESCE(passes.remaining_credits, 0) + EXCLUDED.remaining_credits,
		    valid_until = NULL,
		    active = TRUE,
		    updated_at = NOW()
		RETURNING ` + passColumns

	return scanPass(r.db.QueryRow(ctx, query, userID, passType, credits))
}

func (r *PassRepository) GrantOrRenewUnlimited(
	ctx context.Context,
	userID int64,
	passType string,
	validUntil time.Time,
) (*models.Pass, error) {
	query := `
		INSERT INTO passes (user_id, pass_type, kind, remaining_credits, valid_until, active)
		VALUES ($1, $2, 'unlimited_window', NULL, $3, TRUE)
		ON CONFLICT (user_id, pass_type) DO UPDATE
		SET kind = 'unlimited_window',
		    remaining_credits = NULL,
		    valid_until = EXCLUDED.valid_until,
		    active = TRUE,
		    updated_at = NOW()
		RETURNING ` + passColumns

	return scanPass(r.db.QueryRow(ctx, query, userID, passType, validUntil.UTC()))
}

func (r *PassRepository) classifyMissingFinitePass(ctx context.Context, passID int64) error {
	if _, err := r.GetByID(ctx, passID); err != nil {
		return err
	}
	return ErrInvalidOperation
}

func (r *PassRepository) list(ctx context.Context, query string, args ...any) ([]models.Pass, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	passes := make([]models.Pass, 0)
	for rows.Next() {
		pass, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, *pass)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return passes, nil
}

func scanPass(row rowScanner) (*models.Pass, error) {
	var pass models.Pass
	var kind string
	err := row.Scan(
		&pass.ID,
		&pass.UserID,
		&pass.PassType,
		&kind,
		&pass.RemainingCredits,
		&pass.ValidUntil,
		&pass.Active,
		&pass.CreatedAt,
		&pass.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pass.Kind = models.PassKind(kind)
	return &pass, nil
}
