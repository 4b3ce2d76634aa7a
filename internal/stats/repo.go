package stats

import (
	"context"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct {
	DB postgres.DB
}

func NewRepo(db postgres.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) counts(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := r.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			k string
			n int64
		)
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

func (r *Repo) UsersByRole(ctx context.Context) (map[string]int64, error) {
	return r.counts(ctx, `SELECT role, COUNT(*) FROM users WHERE active GROUP BY role`)
}

func (r *Repo) OrdersByStatus(ctx context.Context) (map[string]int64, error) {
	return r.counts(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
}

func (r *Repo) InvoiceTotals(ctx context.Context) (Totals, error) {
	var t Totals
	err := r.DB.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE status='PAID'), 0),
			COUNT(*) FILTER (WHERE status='PAID'),
			COALESCE(SUM(amount_cents) FILTER (WHERE status IN ('PENDING','OVERDUE')), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE status='OVERDUE'), 0)
		FROM invoices`).Scan(&t.RevenueCents, &t.PaidInvoices, &t.OutstandingCents, &t.OverdueCents)
	return t, err
}

// TopProducts ranks products by units sold on orders that were not cancelled.
func (r *Repo) TopProducts(ctx context.Context, limit int) ([]ProductSales, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT oi.product_id::text, p.name, SUM(oi.qty)::bigint, SUM(oi.qty * oi.price_cents)::bigint
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.status <> 'CANCELLED'
		GROUP BY oi.product_id, p.name
		ORDER BY 3 DESC, 2
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ProductSales, error) {
		var ps ProductSales
		err := row.Scan(&ps.ProductID, &ps.Name, &ps.QtySold, &ps.RevenueCents)
		return ps, err
	})
}

func (r *Repo) SlotUsage(ctx context.Context, from, to time.Time) (SlotUsage, error) {
	var u SlotUsage
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(max_capacity), 0), COALESCE(SUM(reserved), 0)
		FROM delivery_slots
		WHERE delivery_date >= $1 AND delivery_date < $2`, from, to).Scan(&u.Slots, &u.Capacity, &u.Reserved)
	return u, err
}

func (r *Repo) DailyRevenue(ctx context.Context, since time.Time) ([]DailyRevenue, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT to_char(date_trunc('day', paid_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD'), SUM(amount_cents)::bigint
		FROM invoices
		WHERE status='PAID' AND paid_at >= $1
		GROUP BY 1
		ORDER BY 1`, since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyRevenue, error) {
		var d DailyRevenue
		err := row.Scan(&d.Day, &d.RevenueCents)
		return d, err
	})
}
