package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/ariefcatur/go-marketplace/internal/slots"
	"github.com/jackc/pgx/v5"
)

type Repo struct {
	DB postgres.DB
	sb sq.StatementBuilderType
}

func NewRepo(db postgres.DB) *Repo {
	return &Repo{DB: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// FindByIdempotencyKey returns the order an earlier checkout with the same key produced.
func (r *Repo) FindByIdempotencyKey(ctx context.Context, userID, key string) (string, bool, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE user_id=$1 AND idempotency_key=$2`, userID, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Checkout turns the cart lines and the user's live holds into one order and
// its invoice, atomically. Stock rows are locked in product id order, checked
// and decremented; any shortage rolls the whole checkout back.
func (r *Repo) Checkout(ctx context.Context, d draft) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := Order{
		ID:              d.OrderID,
		UserID:          d.UserID,
		Status:          d.Status,
		PaymentMethod:   d.PaymentMethod,
		DeliveryAddress: d.DeliveryAddress,
		Currency:        d.Currency,
		InvoiceID:       d.InvoiceID,
		CreatedAt:       d.Now,
		UpdatedAt:       d.Now,
	}

	items, err := reserveStock(ctx, tx, d.Lines)
	if err != nil {
		return Order{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, idempotency_key, status, payment_method, delivery_address, total_cents, currency, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,$8)`,
		o.ID, o.UserID, d.IdempotencyKey, o.Status, o.PaymentMethod, o.DeliveryAddress, o.Currency, d.Now)
	if postgres.IsUniqueViolation(err) {
		return Order{}, errDuplicateKey
	}
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, producer_id, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5)`, o.ID, it.ProductID, it.ProducerID, it.Qty, it.PriceCents); err != nil {
			return Order{}, fmt.Errorf("insert item: %w", err)
		}
	}

	bookings, err := slots.AttachTemporary(ctx, tx, d.UserID, o.ID, d.Now)
	if err != nil {
		return Order{}, fmt.Errorf("attach bookings: %w", err)
	}
	if len(items) == 0 && len(bookings) == 0 {
		return Order{}, ErrEmptyCheckout
	}

	o.Items = items
	o.Bookings = bookings
	o.TotalCents = Total(items, bookings)
	if _, err := tx.Exec(ctx, `UPDATE orders SET total_cents=$2 WHERE id=$1`, o.ID, o.TotalCents); err != nil {
		return Order{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO invoices(id, order_id, user_id, amount_cents, currency, due_date, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,'PENDING',$7,$7)`,
		d.InvoiceID, o.ID, o.UserID, o.TotalCents, o.Currency, d.DueDate, d.Now); err != nil {
		return Order{}, fmt.Errorf("insert invoice: %w", err)
	}

	if o.ProducerUserIDs, err = ProducerUsers(ctx, tx, o.ID); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func reserveStock(ctx context.Context, tx pgx.Tx, lines map[string]int) ([]Item, error) {
	ids := make([]string, 0, len(lines))
	for id := range lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		items   []Item
		rejects []StockShortage
	)
	for _, pid := range ids {
		qty := lines[pid]
		var (
			it     = Item{ProductID: pid, Qty: qty}
			stock  int
			active bool
			fresh  bool
		)
		err := tx.QueryRow(ctx, `
			SELECT p.producer_id, p.name, p.price_cents, p.active, p.is_fresh, s.quantity
			FROM products p JOIN stock s ON s.product_id = p.id
			WHERE p.id=$1
			FOR UPDATE OF s`, pid).Scan(&it.ProducerID, &it.Name, &it.PriceCents, &active, &fresh, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, pid)
		}
		if err != nil {
			return nil, err
		}
		if !active || fresh {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, pid)
		}
		if stock < qty {
			rejects = append(rejects, StockShortage{ProductID: pid, Required: qty, Available: stock})
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE stock SET quantity = quantity - $2, updated_at=now() WHERE product_id=$1`, pid, qty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if len(rejects) > 0 {
		return nil, &StockError{Details: rejects}
	}
	return items, nil
}

// ProducerUsers lists the accounts of every producer with goods or bookings in
// the order. It runs on the pool or inside a caller's transaction.
func ProducerUsers(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, orderID string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT DISTINCT p.user_id::text FROM order_items oi JOIN producers p ON p.id = oi.producer_id WHERE oi.order_id=$1
		UNION
		SELECT DISTINCT p.user_id::text FROM bookings b
		JOIN delivery_slots ds ON ds.id = b.slot_id
		JOIN products pr ON pr.id = ds.product_id
		JOIN producers p ON p.id = pr.producer_id
		WHERE b.order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const orderColumns = `o.id, o.user_id, o.status, o.payment_method, o.delivery_address, o.total_cents, o.currency,
	COALESCE(i.id::text, ''), o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentMethod, &o.DeliveryAddress, &o.TotalCents, &o.Currency,
		&o.InvoiceID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repo) ByID(ctx context.Context, id string) (Order, error) {
	if !postgres.ValidUUID(id) {
		return Order{}, ErrNotFound
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+`
		FROM orders o LEFT JOIN invoices i ON i.order_id = o.id WHERE o.id=$1`, id))
	if err != nil {
		return Order{}, err
	}
	rows, err := r.DB.Query(ctx, `
		SELECT oi.product_id, oi.producer_id, p.name, oi.qty, oi.price_cents
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id=$1 ORDER BY oi.id`, id)
	if err != nil {
		return Order{}, err
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ProductID, &it.ProducerID, &it.Name, &it.Qty, &it.PriceCents)
		return it, err
	})
	if err != nil {
		return Order{}, err
	}
	if o.Bookings, err = slots.ForOrder(ctx, r.DB, id); err != nil {
		return Order{}, err
	}
	if o.ProducerUserIDs, err = ProducerUsers(ctx, r.DB, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Order, int, error) {
	where := sq.And{}
	if f.UserID != "" {
		where = append(where, sq.Eq{"o.user_id": f.UserID})
	}
	if f.ProducerUserID != "" {
		where = append(where, sq.Or{
			sq.Expr(`EXISTS (SELECT 1 FROM order_items oi JOIN producers p ON p.id = oi.producer_id
				WHERE oi.order_id = o.id AND p.user_id = ?)`, f.ProducerUserID),
			sq.Expr(`EXISTS (SELECT 1 FROM bookings b JOIN delivery_slots ds ON ds.id = b.slot_id
				JOIN products pr ON pr.id = ds.product_id JOIN producers p ON p.id = pr.producer_id
				WHERE b.order_id = o.id AND p.user_id = ?)`, f.ProducerUserID),
		})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"o.status": f.Status})
	}
	if !f.From.IsZero() {
		where = append(where, sq.GtOrEq{"o.created_at": f.From})
	}
	if !f.To.IsZero() {
		where = append(where, sq.Lt{"o.created_at": f.To})
	}

	countSQL, countArgs, err := r.sb.Select("COUNT(*)").From("orders o").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := r.sb.Select(orderColumns).
		From("orders o").
		LeftJoin("invoices i ON i.order_id = o.id").
		Where(where).
		OrderBy("o.created_at DESC", "o.id").
		Limit(f.Limit()).Offset(f.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// Transition moves the order to `to` if the status machine allows it from the
// current, row-locked status. Delivery confirms any booking still pending.
func (r *Repo) Transition(ctx context.Context, id string, to Status) (Status, error) {
	if !postgres.ValidUUID(id) {
		return "", ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, to); err != nil {
		return from, err
	}
	if to == StatusDelivered {
		if _, err := slots.ConfirmForOrder(ctx, tx, id); err != nil {
			return from, err
		}
	}
	return from, tx.Commit(ctx)
}

// Cancel restores stock, releases booked capacity and voids the invoice in one
// transaction. Only unpaid orders can be cancelled.
func (r *Repo) Cancel(ctx context.Context, id string) (Status, error) {
	if !postgres.ValidUUID(id) {
		return "", ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !from.Unpaid() {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, StatusCancelled)
	}

	rows, err := tx.Query(ctx, `SELECT product_id::text, qty FROM order_items WHERE order_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return from, err
	}
	type rec struct {
		pid string
		qty int
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rec, error) {
		var x rec
		err := row.Scan(&x.pid, &x.qty)
		return x, err
	})
	if err != nil {
		return from, err
	}
	for _, x := range recs {
		if _, err := tx.Exec(ctx, `UPDATE stock SET quantity = quantity + $2, updated_at=now() WHERE product_id=$1`, x.pid, x.qty); err != nil {
			return from, err
		}
	}

	if _, err := slots.ReleaseForOrder(ctx, tx, id); err != nil {
		return from, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE invoices SET status='CANCELLED', updated_at=now()
		WHERE order_id=$1 AND status IN ('PENDING','OVERDUE')`, id); err != nil {
		return from, err
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status='CANCELLED', updated_at=now() WHERE id=$1`, id); err != nil {
		return from, err
	}
	return from, tx.Commit(ctx)
}
