package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/money"
	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	topProductsLimit = 10
	utilisationDays  = 14
	revenueDays      = 30
)

type ProductSales struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	QtySold      int64  `json:"qty_sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type DailyRevenue struct {
	Day          string `json:"day"`
	RevenueCents int64  `json:"revenue_cents"`
}

type SlotUsage struct {
	Slots    int64           `json:"slots"`
	Capacity int64           `json:"capacity"`
	Reserved int64           `json:"reserved"`
	Ratio    decimal.Decimal `json:"utilisation"`
}

// Snapshot is the admin dashboard.
type Snapshot struct {
	GeneratedAt       time.Time        `json:"generated_at"`
	Currency          string           `json:"currency"`
	UsersByRole       map[string]int64 `json:"users_by_role"`
	OrdersByStatus    map[string]int64 `json:"orders_by_status"`
	RevenueCents      int64            `json:"revenue_cents"`
	PaidInvoices      int64            `json:"paid_invoices"`
	AverageOrderCents int64            `json:"average_order_cents"`
	OutstandingCents  int64            `json:"outstanding_cents"`
	OverdueCents      int64            `json:"overdue_cents"`
	TopProducts       []ProductSales   `json:"top_products"`
	SlotUtilisation   SlotUsage        `json:"slot_utilisation"`
	DailyRevenue      []DailyRevenue   `json:"daily_revenue"`
}

type Totals struct {
	RevenueCents     int64
	PaidInvoices     int64
	OutstandingCents int64
	OverdueCents     int64
}

type Repository interface {
	UsersByRole(ctx context.Context) (map[string]int64, error)
	OrdersByStatus(ctx context.Context) (map[string]int64, error)
	InvoiceTotals(ctx context.Context) (Totals, error)
	TopProducts(ctx context.Context, limit int) ([]ProductSales, error)
	SlotUsage(ctx context.Context, from, to time.Time) (SlotUsage, error)
	DailyRevenue(ctx context.Context, since time.Time) ([]DailyRevenue, error)
}

// Cache holds the last rendered snapshot.
type Cache interface {
	Load(ctx context.Context) ([]byte, bool)
	Store(ctx context.Context, b []byte)
	Drop(ctx context.Context)
}

type RedisCache struct {
	rdb redis.Cmdable
}

func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Load(ctx context.Context) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, redisx.KeyAdminStats).Bytes()
	return raw, err == nil
}

func (c *RedisCache) Store(ctx context.Context, b []byte) {
	if err := c.rdb.Set(ctx, redisx.KeyAdminStats, b, redisx.TTLAdminStats).Err(); err != nil {
		slog.WarnContext(ctx, "cache admin stats", "err", err)
	}
}

func (c *RedisCache) Drop(ctx context.Context) {
	_ = c.rdb.Del(ctx, redisx.KeyAdminStats).Err()
}

type Service struct {
	repo     Repository
	cache    Cache
	currency string
	now      func() time.Time
}

func NewService(repo Repository, cache Cache, currency string) *Service {
	return &Service{repo: repo, cache: cache, currency: currency, now: time.Now}
}

// Snapshot serves the cached dashboard, rebuilding it at most once per TTLAdminStats.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	if raw, ok := s.cache.Load(ctx); ok {
		var snap Snapshot
		if json.Unmarshal(raw, &snap) == nil {
			return snap, nil
		}
	}
	snap, err := s.build(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	b, _ := json.Marshal(snap)
	s.cache.Store(ctx, b)
	return snap, nil
}

// Invalidate drops the cached dashboard.
func (s *Service) Invalidate(ctx context.Context) {
	s.cache.Drop(ctx)
}

func (s *Service) build(ctx context.Context) (Snapshot, error) {
	now := s.now().UTC()
	snap := Snapshot{GeneratedAt: now, Currency: s.currency}
	var err error

	if snap.UsersByRole, err = s.repo.UsersByRole(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.OrdersByStatus, err = s.repo.OrdersByStatus(ctx); err != nil {
		return Snapshot{}, err
	}
	t, err := s.repo.InvoiceTotals(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.RevenueCents = t.RevenueCents
	snap.PaidInvoices = t.PaidInvoices
	snap.OutstandingCents = t.OutstandingCents
	snap.OverdueCents = t.OverdueCents
	snap.AverageOrderCents = money.Average(t.RevenueCents, t.PaidInvoices)

	if snap.TopProducts, err = s.repo.TopProducts(ctx, topProductsLimit); err != nil {
		return Snapshot{}, err
	}
	if snap.SlotUtilisation, err = s.repo.SlotUsage(ctx, now, now.AddDate(0, 0, utilisationDays)); err != nil {
		return Snapshot{}, err
	}
	snap.SlotUtilisation.Ratio = money.Ratio(snap.SlotUtilisation.Reserved, snap.SlotUtilisation.Capacity)

	since := now.Truncate(24*time.Hour).AddDate(0, 0, -(revenueDays - 1))
	daily, err := s.repo.DailyRevenue(ctx, since)
	if err != nil {
		return Snapshot{}, err
	}
	snap.DailyRevenue = fillDays(daily, since, revenueDays)
	return snap, nil
}

// fillDays returns one entry per day starting at since, with zero for days
// that had no payments.
func fillDays(rows []DailyRevenue, since time.Time, days int) []DailyRevenue {
	byDay := make(map[string]int64, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r.RevenueCents
	}
	out := make([]DailyRevenue, 0, days)
	for i := 0; i < days; i++ {
		d := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, DailyRevenue{Day: d, RevenueCents: byDay[d]})
	}
	return out
}
