package notifications

import (
	"context"

	"github.com/ariefcatur/go-marketplace/internal/paging"
)

type Repository interface {
	List(ctx context.Context, f Filter) ([]Notification, int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Service is the read side used by the API.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, userID string, f Filter) (paging.Result[Notification], error) {
	f.UserID = userID
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return paging.Result[Notification]{}, err
	}
	return paging.NewResult(items, total, f.Params), nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
