package cart

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-marketplace/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string]map[string]int

func (m memStore) Items(_ context.Context, userID string) (map[string]int, error) {
	out := map[string]int{}
	for k, v := range m[userID] {
		out[k] = v
	}
	return out, nil
}

func (m memStore) Set(_ context.Context, userID, productID string, qty int) error {
	if m[userID] == nil {
		m[userID] = map[string]int{}
	}
	m[userID][productID] = qty
	return nil
}

func (m memStore) Remove(_ context.Context, userID, productID string) error {
	delete(m[userID], productID)
	return nil
}

func (m memStore) Clear(_ context.Context, userID string) error {
	delete(m, userID)
	return nil
}

type fakeCatalog map[string]catalog.Product

func (f fakeCatalog) Lookup(_ context.Context, ids []string) (map[string]catalog.Product, error) {
	out := map[string]catalog.Product{}
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newCart() (*Service, memStore, fakeCatalog) {
	store := memStore{}
	products := fakeCatalog{
		"jam":    {ID: "jam", Name: "Jam", PriceCents: 450, Active: true, Stock: 5},
		"bread":  {ID: "bread", Name: "Bread", PriceCents: 300, Active: true, Stock: 20},
		"salad":  {ID: "salad", Name: "Salad", PriceCents: 200, Active: true, IsFresh: true, Stock: 100},
		"hidden": {ID: "hidden", Name: "Old", PriceCents: 100, Active: false, Stock: 100},
	}
	return NewService(store, products, "eur"), store, products
}

func TestSetItemAndSubtotal(t *testing.T) {
	svc, _, _ := newCart()
	ctx := context.Background()

	_, err := svc.SetItem(ctx, "u1", "jam", 2)
	require.NoError(t, err)
	v, err := svc.SetItem(ctx, "u1", "bread", 3)
	require.NoError(t, err)

	require.Len(t, v.Lines, 2)
	assert.Equal(t, "bread", v.Lines[0].ProductID)
	assert.Equal(t, int64(2*450+3*300), v.SubtotalCents)
	assert.Equal(t, "eur", v.Currency)
}

func TestSetItemRejections(t *testing.T) {
	svc, _, _ := newCart()
	ctx := context.Background()

	_, err := svc.SetItem(ctx, "u1", "salad", 1)
	assert.ErrorIs(t, err, ErrFreshProduct)
	_, err = svc.SetItem(ctx, "u1", "hidden", 1)
	assert.ErrorIs(t, err, ErrProductUnavailable)
	_, err = svc.SetItem(ctx, "u1", "nope", 1)
	assert.ErrorIs(t, err, ErrProductUnavailable)
	_, err = svc.SetItem(ctx, "u1", "jam", 6)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	_, err = svc.SetItem(ctx, "u1", "jam", -1)
	assert.ErrorIs(t, err, ErrInvalidQty)
}

func TestZeroQtyRemovesLine(t *testing.T) {
	svc, store, _ := newCart()
	ctx := context.Background()
	_, err := svc.SetItem(ctx, "u1", "jam", 1)
	require.NoError(t, err)

	v, err := svc.RemoveItem(ctx, "u1", "jam")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
	assert.Empty(t, store["u1"])
}

func TestStaleLinesExcludedFromSubtotal(t *testing.T) {
	svc, _, products := newCart()
	ctx := context.Background()
	_, err := svc.SetItem(ctx, "u1", "jam", 4)
	require.NoError(t, err)

	jam := products["jam"]
	jam.Stock = 1
	products["jam"] = jam

	v, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.False(t, v.Lines[0].Available)
	assert.Zero(t, v.SubtotalCents)
}
