package cart

import (
	"context"
	"errors"
	"sort"

	"github.com/ariefcatur/go-marketplace/internal/catalog"
)

const MaxQty = 999

var (
	ErrInvalidQty         = errors.New("quantity must be between 0 and 999")
	ErrFreshProduct       = errors.New("fresh products are booked on a delivery slot, not added to the cart")
	ErrProductUnavailable = errors.New("product is not available")
	ErrInsufficientStock  = errors.New("not enough stock")
)

type Store interface {
	Items(ctx context.Context, userID string) (map[string]int, error)
	Set(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

type productLookup interface {
	Lookup(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

type Line struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Unit       string `json:"unit"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
	LineCents  int64  `json:"line_cents"`
	Available  bool   `json:"available"`
}

type View struct {
	Lines         []Line `json:"lines"`
	SubtotalCents int64  `json:"subtotal_cents"`
	Currency      string `json:"currency"`
}

type Service struct {
	store    Store
	products productLookup
	currency string
}

func NewService(store Store, products productLookup, currency string) *Service {
	return &Service{store: store, products: products, currency: currency}
}

// Get prices the cart with current catalog data. Lines whose product vanished,
// was deactivated or lacks stock are returned with Available=false and excluded
// from the subtotal.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	items, err := s.store.Items(ctx, userID)
	if err != nil {
		return View{}, err
	}
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	products, err := s.products.Lookup(ctx, ids)
	if err != nil {
		return View{}, err
	}

	v := View{Lines: make([]Line, 0, len(ids)), Currency: s.currency}
	for _, id := range ids {
		qty := items[id]
		p, ok := products[id]
		line := Line{ProductID: id, Qty: qty}
		if ok {
			line.Name = p.Name
			line.Unit = p.Unit
			line.PriceCents = p.PriceCents
			line.Available = p.Active && !p.IsFresh && p.Stock >= qty
		}
		if line.Available {
			line.LineCents = p.PriceCents * int64(qty)
			v.SubtotalCents += line.LineCents
		}
		v.Lines = append(v.Lines, line)
	}
	return v, nil
}

// SetItem sets the quantity of a product; zero removes the line.
func (s *Service) SetItem(ctx context.Context, userID, productID string, qty int) (View, error) {
	if qty < 0 || qty > MaxQty {
		return View{}, ErrInvalidQty
	}
	if qty == 0 {
		if err := s.store.Remove(ctx, userID, productID); err != nil {
			return View{}, err
		}
		return s.Get(ctx, userID)
	}
	products, err := s.products.Lookup(ctx, []string{productID})
	if err != nil {
		return View{}, err
	}
	p, ok := products[productID]
	switch {
	case !ok || !p.Active:
		return View{}, ErrProductUnavailable
	case p.IsFresh:
		return View{}, ErrFreshProduct
	case p.Stock < qty:
		return View{}, ErrInsufficientStock
	}
	if err := s.store.Set(ctx, userID, productID, qty); err != nil {
		return View{}, err
	}
	return s.Get(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (View, error) {
	return s.SetItem(ctx, userID, productID, 0)
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.store.Clear(ctx, userID)
}
