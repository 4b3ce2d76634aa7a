package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ariefcatur/go-marketplace/internal/orders"
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

const invoiceColumns = `id, order_id, user_id, amount_cents, currency, due_date, status, paid_at,
	payment_method, payment_ref, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var in Invoice
	err := row.Scan(&in.ID, &in.OrderID, &in.UserID, &in.AmountCents, &in.Currency, &in.DueDate, &in.Status,
		&in.PaidAt, &in.PaymentMethod, &in.PaymentRef, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return in, err
}

func (r *Repo) ByID(ctx context.Context, id string) (Invoice, error) {
	if !postgres.ValidUUID(id) {
		return Invoice{}, ErrNotFound
	}
	return scanInvoice(r.DB.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
}

func (r *Repo) List(ctx context.Context, f Filter, now time.Time) ([]Invoice, int, error) {
	where := sq.And{}
	if f.UserID != "" {
		where = append(where, sq.Eq{"user_id": f.UserID})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": f.Status})
	}
	if f.Overdue {
		where = append(where, sq.Or{
			sq.Eq{"status": StatusOverdue},
			sq.And{sq.Eq{"status": StatusPending}, sq.Lt{"due_date": now}},
		})
	}

	countSQL, countArgs, err := r.sb.Select("COUNT(*)").From("invoices").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := r.sb.Select(invoiceColumns).From("invoices").Where(where).
		OrderBy("created_at DESC", "id").
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

	var out []Invoice
	for rows.Next() {
		in, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, in)
	}
	return out, total, rows.Err()
}

// Settle marks the invoice paid and moves its order and bookings along in the
// same transaction. A second settlement of a paid invoice is reported as a
// replay and changes nothing.
func (r *Repo) Settle(ctx context.Context, id string, method orders.PaymentMethod, ref string, now time.Time) (Settlement, error) {
	if !postgres.ValidUUID(id) {
		return Settlement{}, ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Settlement{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	in, err := scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Settlement{}, err
	}
	switch {
	case in.Status == StatusPaid:
		return Settlement{Invoice: in, Replayed: true}, nil
	case in.Status == StatusCancelled:
		return Settlement{}, ErrCancelled
	case !in.Status.Payable():
		return Settlement{}, ErrNotPayable
	}

	var from orders.Status
	if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, in.OrderID).Scan(&from); err != nil {
		return Settlement{}, fmt.Errorf("lock order: %w", err)
	}
	to, ok := orders.PaidStatus(from)
	if !ok {
		return Settlement{}, fmt.Errorf("%w: %s", ErrOrderState, from)
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices SET status='PAID', paid_at=$2, payment_method=$3, payment_ref=$4, updated_at=$2
		WHERE id=$1`, id, now, method, ref)
	if postgres.IsUniqueViolation(err) {
		return Settlement{}, ErrPaymentRefUsed
	}
	if err != nil {
		return Settlement{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, in.OrderID, to, now); err != nil {
		return Settlement{}, err
	}
	if _, err := slots.ConfirmForOrder(ctx, tx, in.OrderID); err != nil {
		return Settlement{}, err
	}
	producers, err := orders.ProducerUsers(ctx, tx, in.OrderID)
	if err != nil {
		return Settlement{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Settlement{}, err
	}

	in.Status = StatusPaid
	in.PaidAt = &now
	in.PaymentMethod = &method
	in.PaymentRef = &ref
	in.UpdatedAt = now
	return Settlement{Invoice: in, OrderFrom: from, OrderTo: to, ProducerUserIDs: producers}, nil
}

// MarkOverdue flags up to limit pending invoices whose due date has passed.
// Orders still waiting on a bank transfer follow to INVOICE_OVERDUE.
func (r *Repo) MarkOverdue(ctx context.Context, now time.Time, limit int) ([]Overdue, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE status='PENDING' AND due_date < $1
		ORDER BY due_date
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, err
	}
	due, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) {
		return scanInvoice(row)
	})
	if err != nil || len(due) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(due))
	orderIDs := make([]string, 0, len(due))
	for _, in := range due {
		ids = append(ids, in.ID)
		orderIDs = append(orderIDs, in.OrderID)
	}
	if _, err := tx.Exec(ctx, `UPDATE invoices SET status='OVERDUE', updated_at=$2 WHERE id = ANY($1::uuid[])`, ids, now); err != nil {
		return nil, err
	}
	rows, err = tx.Query(ctx, `
		UPDATE orders SET status='INVOICE_OVERDUE', updated_at=$2
		WHERE id = ANY($1::uuid[]) AND status='INVOICE_PENDING'
		RETURNING id::text`, orderIDs, now)
	if err != nil {
		return nil, err
	}
	moved, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	movedSet := make(map[string]bool, len(moved))
	for _, id := range moved {
		movedSet[id] = true
	}

	out := make([]Overdue, 0, len(due))
	for _, in := range due {
		producers, err := orders.ProducerUsers(ctx, tx, in.OrderID)
		if err != nil {
			return nil, err
		}
		in.Status = StatusOverdue
		in.UpdatedAt = now
		out = append(out, Overdue{Invoice: in, OrderMoved: movedSet[in.OrderID], ProducerUserIDs: producers})
	}
	return out, tx.Commit(ctx)
}
