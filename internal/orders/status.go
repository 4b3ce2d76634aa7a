package orders

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusInvoicePending Status = "INVOICE_PENDING"
	StatusInvoicePaid    Status = "INVOICE_PAID"
	StatusInvoiceOverdue Status = "INVOICE_OVERDUE"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusInvoicePending: {StatusInvoicePaid: true, StatusInvoiceOverdue: true, StatusCancelled: true},
	StatusInvoiceOverdue: {StatusInvoicePaid: true, StatusCancelled: true},
	StatusConfirmed:      {StatusShipped: true},
	StatusInvoicePaid:    {StatusShipped: true},
	StatusShipped:        {StatusDelivered: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Unpaid reports whether the order still waits for its invoice to be settled.
func (s Status) Unpaid() bool {
	return s == StatusPending || s == StatusInvoicePending || s == StatusInvoiceOverdue
}

// PaidStatus is the status an unpaid order moves to once its invoice is paid.
func PaidStatus(from Status) (Status, bool) {
	switch from {
	case StatusPending:
		return StatusConfirmed, true
	case StatusInvoicePending, StatusInvoiceOverdue:
		return StatusInvoicePaid, true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// InitialStatus is the status a fresh order starts in for the chosen payment method.
func InitialStatus(m PaymentMethod) (Status, bool) {
	switch m {
	case PaymentCard:
		return StatusPending, true
	case PaymentBankTransfer:
		return StatusInvoicePending, true
	}
	return "", false
}
