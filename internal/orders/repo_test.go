package orders

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	orderID   = "1f2e3d4c-5b6a-4978-8695-a4b3c2d1e0f9"
	apples    = "2a3b4c5d-0000-4000-8000-00000000000a"
	honey     = "2a3b4c5d-0000-4000-8000-00000000000b"
	producerA = "6c7d8e9f-0000-4000-8000-000000000001"
)

func newMockRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepo(mock), mock
}

func stockRow(name string, price int64, stock int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"producer_id", "name", "price_cents", "active", "is_fresh", "quantity"}).
		AddRow(producerA, name, price, true, false, stock)
}

func TestRepoCheckoutLocksStockAndRollsBackOnShortage(t *testing.T) {
	repo, mock := newMockRepo(t)
	lockStock := regexp.QuoteMeta("FOR UPDATE OF s")

	mock.ExpectBeginTx(pgx.TxOptions{})
	// products are locked in id order: apples before honey
	mock.ExpectQuery(lockStock).WithArgs(apples).WillReturnRows(stockRow("Apples", 250, 10))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stock SET quantity = quantity - $2")).
		WithArgs(apples, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(lockStock).WithArgs(honey).WillReturnRows(stockRow("Honey", 900, 1))
	mock.ExpectRollback()

	_, err := repo.Checkout(context.Background(), draft{
		OrderID:        orderID,
		UserID:         "client-1",
		IdempotencyKey: "key-1",
		PaymentMethod:  PaymentCard,
		Status:         StatusPending,
		Currency:       "eur",
		Lines:          map[string]int{honey: 3, apples: 2},
		Now:            now,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var se *StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []StockShortage{{ProductID: honey, Required: 3, Available: 1}}, se.Details)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoCheckoutUnknownProduct(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF s")).
		WithArgs(apples).
		WillReturnRows(pgxmock.NewRows([]string{"producer_id", "name", "price_cents", "active", "is_fresh", "quantity"}))
	mock.ExpectRollback()

	_, err := repo.Checkout(context.Background(), draft{OrderID: orderID, Lines: map[string]int{apples: 1}, Now: now})
	assert.ErrorIs(t, err, ErrProductUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoCancelOnlyUnpaidOrders(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM orders WHERE id=$1 FOR UPDATE")).
		WithArgs(orderID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusShipped))
	mock.ExpectRollback()

	from, err := repo.Cancel(context.Background(), orderID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusShipped, from)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoMalformedOrderID(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	_, err := repo.ByID(ctx, "ord-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Cancel(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Transition(ctx, "x", StatusShipped)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
