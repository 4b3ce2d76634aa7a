package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, p Product) error
	ByID(ctx context.Context, id string) (Product, error)
	ByIDs(ctx context.Context, ids []string) (map[string]Product, error)
	List(ctx context.Context, f Filter) ([]Product, int, error)
	Update(ctx context.Context, id string, p Patch) error
	SetStock(ctx context.Context, id string, qty int) error
	ProducerIDByUser(ctx context.Context, userID string) (string, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context, f Filter) (paging.Result[Product], error) {
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return paging.Result[Product]{}, err
	}
	return paging.NewResult(items, total, f.Params), nil
}

// ListOwn lists the caller's products, inactive ones included.
func (s *Service) ListOwn(ctx context.Context, actor auth.Principal, f Filter) (paging.Result[Product], error) {
	pid, err := s.repo.ProducerIDByUser(ctx, actor.UserID)
	if err != nil {
		return paging.Result[Product]{}, err
	}
	f.ProducerID = pid
	f.IncludeInactive = true
	return s.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.repo.ByID(ctx, id)
}

// Lookup returns the products keyed by id; unknown ids are absent from the map.
func (s *Service) Lookup(ctx context.Context, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}
	return s.repo.ByIDs(ctx, ids)
}

func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (Product, error) {
	pid, err := s.repo.ProducerIDByUser(ctx, actor.UserID)
	if err != nil {
		return Product{}, err
	}
	if in.Unit == "" {
		in.Unit = "unit"
	}
	now := s.now().UTC()
	p := Product{
		ID:          uuid.NewString(),
		ProducerID:  pid,
		Name:        in.Name,
		Description: in.Description,
		Unit:        in.Unit,
		PriceCents:  in.PriceCents,
		IsFresh:     in.IsFresh,
		Active:      true,
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return Product{}, err
	}
	slog.InfoContext(ctx, "product created", "product_id", p.ID, "producer_id", pid)
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Principal, id string, patch Patch) (Product, error) {
	if _, err := s.Owned(ctx, actor, id); err != nil {
		return Product{}, err
	}
	if err := s.repo.Update(ctx, id, patch); err != nil {
		return Product{}, err
	}
	return s.repo.ByID(ctx, id)
}

func (s *Service) SetStock(ctx context.Context, actor auth.Principal, id string, qty int) (Product, error) {
	if qty < 0 {
		return Product{}, ErrInvalidStock
	}
	if _, err := s.Owned(ctx, actor, id); err != nil {
		return Product{}, err
	}
	if err := s.repo.SetStock(ctx, id, qty); err != nil {
		return Product{}, err
	}
	slog.InfoContext(ctx, "stock set", "product_id", id, "qty", qty)
	return s.repo.ByID(ctx, id)
}

func (s *Service) Deactivate(ctx context.Context, actor auth.Principal, id string) error {
	if _, err := s.Owned(ctx, actor, id); err != nil {
		return err
	}
	off := false
	return s.repo.Update(ctx, id, Patch{Active: &off})
}

// Owned loads the product and checks the caller may manage it. Admins manage everything.
func (s *Service) Owned(ctx context.Context, actor auth.Principal, id string) (Product, error) {
	p, err := s.repo.ByID(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if actor.Is(auth.RoleAdmin) {
		return p, nil
	}
	pid, err := s.repo.ProducerIDByUser(ctx, actor.UserID)
	if err != nil {
		return Product{}, err
	}
	if p.ProducerID != pid {
		return Product{}, ErrNotOwner
	}
	return p, nil
}
