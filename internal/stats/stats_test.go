package stats

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	calls int
	since time.Time
}

func (f *fakeRepo) UsersByRole(context.Context) (map[string]int64, error) {
	f.calls++
	return map[string]int64{"CLIENT": 3, "PRODUCER": 1, "ADMIN": 1}, nil
}

func (f *fakeRepo) OrdersByStatus(context.Context) (map[string]int64, error) {
	return map[string]int64{"CONFIRMED": 2, "CANCELLED": 1}, nil
}

func (f *fakeRepo) InvoiceTotals(context.Context) (Totals, error) {
	return Totals{RevenueCents: 1000, PaidInvoices: 3, OutstandingCents: 700, OverdueCents: 200}, nil
}

func (f *fakeRepo) TopProducts(context.Context, int) ([]ProductSales, error) {
	return []ProductSales{{ProductID: "apples", Name: "Apples", QtySold: 12, RevenueCents: 3000}}, nil
}

func (f *fakeRepo) SlotUsage(context.Context, time.Time, time.Time) (SlotUsage, error) {
	return SlotUsage{Slots: 2, Capacity: 40, Reserved: 10}, nil
}

func (f *fakeRepo) DailyRevenue(_ context.Context, since time.Time) ([]DailyRevenue, error) {
	f.since = since
	return []DailyRevenue{{Day: "2026-05-03", RevenueCents: 600}}, nil
}

type memCache struct {
	raw []byte
}

func (c *memCache) Load(context.Context) ([]byte, bool) { return c.raw, c.raw != nil }
func (c *memCache) Store(_ context.Context, b []byte)    { c.raw = b }
func (c *memCache) Drop(context.Context)                 { c.raw = nil }

func TestSnapshot(t *testing.T) {
	repo := &fakeRepo{}
	cache := &memCache{}
	svc := NewService(repo, cache, "eur")
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC) }

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(333), snap.AverageOrderCents)
	assert.Equal(t, int64(700), snap.OutstandingCents)
	assert.True(t, decimal.RequireFromString("0.25").Equal(snap.SlotUtilisation.Ratio))
	assert.Equal(t, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC), repo.since)
	require.Len(t, snap.DailyRevenue, 30)
	assert.Equal(t, "2026-04-05", snap.DailyRevenue[0].Day)
	assert.Equal(t, DailyRevenue{Day: "2026-05-03", RevenueCents: 600}, snap.DailyRevenue[28])
	assert.Equal(t, int64(0), snap.DailyRevenue[29].RevenueCents)

	_, err = svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls, "second call is served from cache")

	svc.Invalidate(context.Background())
	_, err = svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestFillDays(t *testing.T) {
	since := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)
	out := fillDays([]DailyRevenue{{Day: "2026-02-01", RevenueCents: 5}}, since, 3)
	assert.Equal(t, []DailyRevenue{
		{Day: "2026-01-30"},
		{Day: "2026-01-31"},
		{Day: "2026-02-01", RevenueCents: 5},
	}, out)
}
