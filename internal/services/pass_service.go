package services

import (
	"context"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/repository"
)

type PassService struct {
	store repository.Transactor
}

func NewPassService(store repository.Transactor) *PassService {
	return &PassService{store: store}
}

func (s *PassService) ListPasses(ctx context.Context, userID int64, now time.Time) ([]models.PassView, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	passes, err := s.store.Stores().Passes.ListByUser(ctx, userID)
	if err != nil {
		return nil, classifyStoreError("list passes", err)
	}

	views := make([]models.PassView, 0, len(passes))
	for _, pass := range passes {
		views = append(views, models.PassView{
			Pass:     pass,
			Eligible: models.IsEligible(pass, now),
		})
	}
	return views, nil
}
