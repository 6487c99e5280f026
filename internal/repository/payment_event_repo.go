package repository

import (
	"context"
	"errors"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

type PaymentEventRepository struct {
	db DBTX
}

func NewPaymentEventRepository(db DBTX) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

// Claim inserts the event row. A concurrent claim of the same event blocks on the
// primary key until the first transaction finishes, then reports false.
func (r *PaymentEventRepository) Claim(ctx context.Context, event models.ProcessedPaymentEvent) (bool, error) {
	query := `
		INSERT INTO processed_payment_events (provider, event_id, user_id, plan_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, event_id) DO NOTHING
		RETURNING event_id
	`
	var eventID string
	err := r.db.QueryRow(ctx, query, event.Provider, event.EventID, event.UserID, event.PlanID).Scan(&eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PaymentEventRepository) Complete(ctx context.Context, event models.ProcessedPaymentEvent) error {
	query := `
		UPDATE processed_payment_events
		SET grant_type = $3, credits_added = $4, expires_at = $5, pass_id = $6, processed_at = NOW()
		WHERE provider = $1 AND event_id = $2
	`
	tag, err := r.db.Exec(
		ctx,
		query,
		event.Provider,
		event.EventID,
		event.GrantType,
		event.CreditsAdded,
		event.ExpiresAt,
		event.PassID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PaymentEventRepository) Get(
	ctx context.Context,
	provider string,
	eventID string,
) (*models.ProcessedPaymentEvent, error) {
	query := `
		SELECT provider, event_id, user_id, plan_id, COALESCE(grant_type, ''), credits_added,
		       expires_at, COALESCE(pass_id, 0), processed_at
		FROM processed_payment_events
		WHERE provider = $1 AND event_id = $2
	`
	var event models.ProcessedPaymentEvent
	err := r.db.QueryRow(ctx, query, provider, eventID).Scan(
		&event.Provider,
		&event.EventID,
		&event.UserID,
		&event.PlanID,
		&event.GrantType,
		&event.CreditsAdded,
		&event.ExpiresAt,
		&event.PassID,
		&event.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
