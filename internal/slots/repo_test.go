package slots

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	slotA     = "0b1c2d3e-4f50-4a6b-8c7d-9e0f1a2b3c4d"
	slotB     = "5e6f7a8b-9c0d-4e1f-8a2b-3c4d5e6f7a8b"
	productID = "7f1c2d3e-0000-4000-8000-000000000001"
)

func newMockRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepo(mock), mock
}

func holdRow(maxCapacity, reserved int, active bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "product_id", "delivery_date", "max_capacity", "reserved", "price_cents", "created_at", "active"}).
		AddRow(slotA, productID, t0.Add(48*time.Hour), maxCapacity, reserved, int64(400), t0, active)
}

func hold(qty int) Booking {
	exp := t0.Add(15 * time.Minute)
	return Booking{ID: "b-new", SlotID: slotA, UserID: "client", Qty: qty, Status: BookingTemporary, ExpiresAt: &exp, CreatedAt: t0}
}

func TestRepoHoldOverCapacity(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("FROM delivery_slots ds JOIN products p")).
		WithArgs(slotA).
		WillReturnRows(holdRow(5, 4, true))
	mock.ExpectRollback()

	_, err := repo.Hold(context.Background(), hold(2), t0)
	assert.ErrorIs(t, err, ErrSlotFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoHoldLosesRaceToCheckConstraint(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("FROM delivery_slots ds JOIN products p")).
		WillReturnRows(holdRow(5, 3, true))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE delivery_slots SET reserved = reserved + $2")).
		WithArgs(slotA, 2).
		WillReturnError(&pgconn.PgError{Code: "23514"})
	mock.ExpectRollback()

	_, err := repo.Hold(context.Background(), hold(2), t0)
	assert.ErrorIs(t, err, ErrSlotFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoHoldInactiveProduct(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("FROM delivery_slots ds JOIN products p")).
		WillReturnRows(holdRow(5, 0, false))
	mock.ExpectRollback()

	_, err := repo.Hold(context.Background(), hold(1), t0)
	assert.ErrorIs(t, err, ErrProductUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoHoldReserves(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("FROM delivery_slots ds JOIN products p")).
		WillReturnRows(holdRow(5, 3, true))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE delivery_slots SET reserved = reserved + $2")).
		WithArgs(slotA, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	b, err := repo.Hold(context.Background(), hold(2), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(400), b.PriceCents)
	assert.Equal(t, productID, b.ProductID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoMalformedIDsNeverReachTheDatabase(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	_, err := repo.Hold(ctx, Booking{SlotID: "", Qty: 1}, t0)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	_, err = repo.SlotByID(ctx, "slot-1")
	assert.ErrorIs(t, err, ErrSlotNotFound)
	_, err = repo.CancelTemporary(ctx, "nope")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoSlotByIDFillsRemaining(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM delivery_slots ds WHERE ds.id=$1")).
		WithArgs(slotA).
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "delivery_date", "max_capacity", "reserved", "price_cents", "created_at"}).
			AddRow(slotA, productID, t0.Add(48*time.Hour), 10, 7, int64(400), t0))

	s, err := repo.SlotByID(context.Background(), slotA)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Remaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func bookingRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "slot_id", "user_id", "order_id", "qty", "price_cents", "status", "expires_at",
		"product_id", "delivery_date", "created_at", "updated_at"})
}

func expiredBooking(rows *pgxmock.Rows, id, slotID string, qty int) *pgxmock.Rows {
	exp := t0.Add(-time.Minute)
	return rows.AddRow(id, slotID, "client", (*string)(nil), qty, int64(400), BookingTemporary, &exp,
		productID, t0.Add(48*time.Hour), t0.Add(-20*time.Minute), t0.Add(-20*time.Minute))
}

func TestRepoExpireBatchReleasesPerSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := bookingRows()
	expiredBooking(rows, "b1", slotB, 1)
	expiredBooking(rows, "b2", slotA, 2)
	expiredBooking(rows, "b3", slotA, 1)

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF b SKIP LOCKED")).
		WithArgs(t0, 50).
		WillReturnRows(rows)
	// slots are released in id order, one update per slot
	mock.ExpectExec(regexp.QuoteMeta("UPDATE delivery_slots SET reserved = reserved - $2")).
		WithArgs(slotA, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE delivery_slots SET reserved = reserved - $2")).
		WithArgs(slotB, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status='CANCELLED'")).
		WithArgs([]string{"b1", "b2", "b3"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectCommit()

	out, err := repo.ExpireBatch(context.Background(), t0, 50)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, b := range out {
		assert.Equal(t, BookingCancelled, b.Status, b.ID)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoExpireBatchRollsBackWhenSlotIsGone(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := bookingRows()
	expiredBooking(rows, "b1", slotA, 2)

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF b SKIP LOCKED")).WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE delivery_slots SET reserved = reserved - $2")).
		WithArgs(slotA, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := repo.ExpireBatch(context.Background(), t0, 50)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoExpireBatchNothingDue(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF b SKIP LOCKED")).WillReturnRows(bookingRows())
	mock.ExpectRollback()

	out, err := repo.ExpireBatch(context.Background(), t0, 50)
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}
