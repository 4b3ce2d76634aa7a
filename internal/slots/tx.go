package slots

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// The helpers below run inside a transaction owned by the order or invoice
// repositories, so booking state moves together with the order.

// AttachTemporary moves the user's live holds onto orderID (TEMPORARY -> PENDING).
// Capacity stays reserved.
func AttachTemporary(ctx context.Context, tx pgx.Tx, userID, orderID string, now time.Time) ([]Booking, error) {
	held, err := queryBookings(ctx, tx, `SELECT `+bookingColumns+`
		FROM bookings b JOIN delivery_slots ds ON ds.id = b.slot_id
		WHERE b.user_id=$1 AND b.status='TEMPORARY' AND b.expires_at > $2
		ORDER BY b.created_at
		FOR UPDATE OF b`, userID, now)
	if err != nil || len(held) == 0 {
		return nil, err
	}
	ids := make([]string, 0, len(held))
	for i := range held {
		if err := held[i].moveTo(BookingPending); err != nil {
			return nil, err
		}
		ids = append(ids, held[i].ID)
		held[i].OrderID = &orderID
		held[i].ExpiresAt = nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status='PENDING', order_id=$1, expires_at=NULL, updated_at=now()
		WHERE id = ANY($2::uuid[])`, orderID, ids); err != nil {
		return nil, err
	}
	return held, nil
}

// ReleaseForOrder cancels the order's PENDING bookings and gives their capacity back.
func ReleaseForOrder(ctx context.Context, tx pgx.Tx, orderID string) ([]Booking, error) {
	pending, err := queryBookings(ctx, tx, `SELECT `+bookingColumns+`
		FROM bookings b JOIN delivery_slots ds ON ds.id = b.slot_id
		WHERE b.order_id=$1 AND b.status='PENDING'
		FOR UPDATE OF b`, orderID)
	if err != nil || len(pending) == 0 {
		return nil, err
	}
	perSlot := map[string]int{}
	for i := range pending {
		if err := pending[i].moveTo(BookingCancelled); err != nil {
			return nil, err
		}
		perSlot[pending[i].SlotID] += pending[i].Qty
	}
	if err := release(ctx, tx, perSlot); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status='CANCELLED', updated_at=now()
		WHERE order_id=$1 AND status='PENDING'`, orderID); err != nil {
		return nil, err
	}
	return pending, nil
}

// ConfirmForOrder marks the order's PENDING bookings CONFIRMED once it is paid.
func ConfirmForOrder(ctx context.Context, tx pgx.Tx, orderID string) (int64, error) {
	ct, err := tx.Exec(ctx, `
		UPDATE bookings SET status='CONFIRMED', updated_at=now()
		WHERE order_id=$1 AND status='PENDING'`, orderID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// ForOrder lists every booking attached to orderID, whatever its status.
func ForOrder(ctx context.Context, q querier, orderID string) ([]Booking, error) {
	return queryBookings(ctx, q, `SELECT `+bookingColumns+`
		FROM bookings b JOIN delivery_slots ds ON ds.id = b.slot_id
		WHERE b.order_id=$1
		ORDER BY b.created_at`, orderID)
}
