package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct {
	DB postgres.DB
	sb sq.StatementBuilderType
}

func NewRepo(db postgres.DB) *Repo {
	return &Repo{DB: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

const slotColumns = `ds.id, ds.product_id, ds.delivery_date, ds.max_capacity, ds.reserved, ds.price_cents, ds.created_at`

// scanSlot reads slotColumns followed by any extra columns into extra.
func scanSlot(row pgx.Row, extra ...any) (Slot, error) {
	var s Slot
	dest := append([]any{&s.ID, &s.ProductID, &s.DeliveryDate, &s.MaxCapacity, &s.Reserved, &s.PriceCents, &s.CreatedAt}, extra...)
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Slot{}, ErrSlotNotFound
	}
	return s.withRemaining(), err
}

const bookingColumns = `b.id, b.slot_id, b.user_id, b.order_id, b.qty, b.price_cents, b.status, b.expires_at,
	ds.product_id, ds.delivery_date, b.created_at, b.updated_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.SlotID, &b.UserID, &b.OrderID, &b.Qty, &b.PriceCents, &b.Status, &b.ExpiresAt,
		&b.ProductID, &b.DeliveryDate, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrBookingNotFound
	}
	return b, err
}

func (r *Repo) CreateSlot(ctx context.Context, s Slot) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO delivery_slots(id, product_id, delivery_date, max_capacity, reserved, price_cents, created_at)
		VALUES ($1,$2,$3,$4,0,$5,$6)`, s.ID, s.ProductID, s.DeliveryDate, s.MaxCapacity, s.PriceCents, s.CreatedAt)
	return err
}

func (r *Repo) SlotByID(ctx context.Context, id string) (Slot, error) {
	if !postgres.ValidUUID(id) {
		return Slot{}, ErrSlotNotFound
	}
	return scanSlot(r.DB.QueryRow(ctx, `SELECT `+slotColumns+` FROM delivery_slots ds WHERE ds.id=$1`, id))
}

func (r *Repo) ListSlots(ctx context.Context, f Filter) ([]Slot, error) {
	q := r.sb.Select(slotColumns).From("delivery_slots ds").OrderBy("ds.delivery_date", "ds.id")
	if f.ProductID != "" {
		q = q.Where(sq.Eq{"ds.product_id": f.ProductID})
	}
	if !f.From.IsZero() {
		q = q.Where(sq.GtOrEq{"ds.delivery_date": f.From})
	}
	if !f.To.IsZero() {
		q = q.Where(sq.Lt{"ds.delivery_date": f.To})
	}
	if f.AvailableOnly {
		q = q.Where("ds.reserved < ds.max_capacity")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateCapacity(ctx context.Context, id string, maxCapacity int) (Slot, error) {
	if !postgres.ValidUUID(id) {
		return Slot{}, ErrSlotNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Slot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM delivery_slots ds WHERE ds.id=$1 FOR UPDATE`, id))
	if err != nil {
		return Slot{}, err
	}
	if maxCapacity < s.Reserved {
		return Slot{}, ErrCapacityBelowReserved
	}
	if _, err := tx.Exec(ctx, `UPDATE delivery_slots SET max_capacity=$2 WHERE id=$1`, id, maxCapacity); err != nil {
		return Slot{}, err
	}
	s.MaxCapacity = maxCapacity
	return s.withRemaining(), tx.Commit(ctx)
}

// DeleteSlot removes a slot nobody holds capacity on. Cancelled holds that never
// reached an order go with it.
func (r *Repo) DeleteSlot(ctx context.Context, id string) error {
	if !postgres.ValidUUID(id) {
		return ErrSlotNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM delivery_slots ds WHERE ds.id=$1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	var ordered int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE slot_id=$1 AND order_id IS NOT NULL`, id).Scan(&ordered); err != nil {
		return err
	}
	if s.Reserved > 0 || ordered > 0 {
		return ErrSlotInUse
	}
	if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE slot_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM delivery_slots ds WHERE ds.id=$1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Hold locks the slot row, checks that its product is still on sale and that
// enough capacity remains, then reserves qty for a TEMPORARY booking. The CHECK
// constraint on delivery_slots backs the capacity rule.
func (r *Repo) Hold(ctx context.Context, b Booking, now time.Time) (Booking, error) {
	if !postgres.ValidUUID(b.SlotID) {
		return Booking{}, ErrSlotNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var active bool
	s, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+`, p.active
		FROM delivery_slots ds JOIN products p ON p.id = ds.product_id
		WHERE ds.id=$1
		FOR UPDATE OF ds`, b.SlotID), &active)
	if err != nil {
		return Booking{}, err
	}
	if !active {
		return Booking{}, ErrProductUnavailable
	}
	if !s.DeliveryDate.After(now) {
		return Booking{}, ErrSlotInPast
	}
	if s.Remaining < b.Qty {
		return Booking{}, ErrSlotFull
	}
	if _, err := tx.Exec(ctx, `UPDATE delivery_slots SET reserved = reserved + $2 WHERE id=$1`, s.ID, b.Qty); err != nil {
		if postgres.IsCheckViolation(err) {
			return Booking{}, ErrSlotFull
		}
		return Booking{}, err
	}

	b.PriceCents = s.PriceCents
	b.ProductID = s.ProductID
	b.DeliveryDate = s.DeliveryDate
	if _, err := tx.Exec(ctx, `
		INSERT INTO bookings(id, slot_id, user_id, qty, price_cents, status, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
		b.ID, b.SlotID, b.UserID, b.Qty, b.PriceCents, b.Status, b.ExpiresAt, b.CreatedAt); err != nil {
		return Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return b, tx.Commit(ctx)
}

func (r *Repo) BookingByID(ctx context.Context, id string) (Booking, error) {
	if !postgres.ValidUUID(id) {
		return Booking{}, ErrBookingNotFound
	}
	return scanBooking(r.DB.QueryRow(ctx, `SELECT `+bookingColumns+`
		FROM bookings b JOIN delivery_slots ds ON ds.id = b.slot_id WHERE b.id=$1`, id))
}

func (r *Repo) ListBookings(ctx context.Context, userID string, status BookingStatus) ([]Booking, error) {
	q := r.sb.Select(bookingColumns).
		From("bookings b").
		Join("delivery_slots ds ON ds.id = b.slot_id").
		Where(sq.Eq{"b.user_id": userID}).
		OrderBy("b.created_at DESC")
	if status != "" {
		q = q.Where(sq.Eq{"b.status": status})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return queryBookings(ctx, r.DB, query, args...)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryBookings(ctx context.Context, q querier, query string, args ...any) ([]Booking, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CancelTemporary cancels a hold that has not reached an order yet and gives
// its capacity back.
func (r *Repo) CancelTemporary(ctx context.Context, id string) (Booking, error) {
	if !postgres.ValidUUID(id) {
		return Booking{}, ErrBookingNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+`
		FROM bookings b JOIN delivery_slots ds ON ds.id = b.slot_id WHERE b.id=$1 FOR UPDATE OF b`, id))
	if err != nil {
		return Booking{}, err
	}
	if b.Status != BookingTemporary {
		return Booking{}, ErrNotCancellable
	}
	if err := b.moveTo(BookingCancelled); err != nil {
		return Booking{}, err
	}
	if err := release(ctx, tx, map[string]int{b.SlotID: b.Qty}); err != nil {
		return Booking{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE bookings SET status='CANCELLED', updated_at=now() WHERE id=$1`, id); err != nil {
		return Booking{}, err
	}
	return b, tx.Commit(ctx)
}

// ExpireBatch cancels up to limit TEMPORARY bookings whose hold ran out. Rows
// locked by a concurrent checkout are skipped and picked up by a later sweep
// if still expired.
func (r *Repo) ExpireBatch(ctx context.Context, now time.Time, limit int) ([]Booking, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	expired, err := queryBookings(ctx, tx, `SELECT `+bookingColumns+`
		FROM bookings b JOIN delivery_slots ds ON ds.id = b.slot_id
		WHERE b.status='TEMPORARY' AND b.expires_at <= $1
		ORDER BY b.expires_at
		LIMIT $2
		FOR UPDATE OF b SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	perSlot := map[string]int{}
	ids := make([]string, 0, len(expired))
	for i := range expired {
		if err := expired[i].moveTo(BookingCancelled); err != nil {
			return nil, err
		}
		perSlot[expired[i].SlotID] += expired[i].Qty
		ids = append(ids, expired[i].ID)
	}
	if err := release(ctx, tx, perSlot); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE bookings SET status='CANCELLED', updated_at=now() WHERE id = ANY($1::uuid[])`, ids); err != nil {
		return nil, err
	}
	return expired, tx.Commit(ctx)
}

// release gives capacity back, locking slots in id order so concurrent
// releases cannot deadlock.
func release(ctx context.Context, tx pgx.Tx, perSlot map[string]int) error {
	ids := make([]string, 0, len(perSlot))
	for id := range perSlot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ct, err := tx.Exec(ctx, `UPDATE delivery_slots SET reserved = reserved - $2 WHERE id=$1`, id, perSlot[id])
		if err != nil {
			return fmt.Errorf("release slot %s: %w", id, err)
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("release slot %s: %w", id, ErrSlotNotFound)
		}
	}
	return nil
}
