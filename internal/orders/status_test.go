package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusInvoicePending, StatusInvoicePaid, true},
		{StatusInvoicePending, StatusInvoiceOverdue, true},
		{StatusInvoiceOverdue, StatusInvoicePaid, true},
		{StatusInvoiceOverdue, StatusInvoicePending, false},
		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusCancelled, false},
		{StatusInvoicePaid, StatusCancelled, false},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusShipped, false},
		{StatusCancelled, StatusPending, false},
		{"BOGUS", StatusCancelled, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestPaidStatus(t *testing.T) {
	to, ok := PaidStatus(StatusPending)
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, to)

	to, ok = PaidStatus(StatusInvoiceOverdue)
	assert.True(t, ok)
	assert.Equal(t, StatusInvoicePaid, to)

	_, ok = PaidStatus(StatusShipped)
	assert.False(t, ok)
}

func TestInitialStatus(t *testing.T) {
	s, ok := InitialStatus(PaymentCard)
	assert.True(t, ok)
	assert.Equal(t, StatusPending, s)

	s, ok = InitialStatus(PaymentBankTransfer)
	assert.True(t, ok)
	assert.Equal(t, StatusInvoicePending, s)

	_, ok = InitialStatus("cash")
	assert.False(t, ok)
}

func TestUnpaid(t *testing.T) {
	assert.True(t, StatusPending.Unpaid())
	assert.True(t, StatusInvoiceOverdue.Unpaid())
	assert.False(t, StatusConfirmed.Unpaid())
	assert.False(t, StatusCancelled.Unpaid())

	// Cancel relies on Unpaid; it must agree with the status machine.
	for s := range validNext {
		assert.Equal(t, CanTransition(s, StatusCancelled), s.Unpaid(), s)
	}
}
