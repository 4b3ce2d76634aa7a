package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/cart"
	"github.com/ariefcatur/go-marketplace/internal/catalog"
	"github.com/ariefcatur/go-marketplace/internal/invoices"
	"github.com/ariefcatur/go-marketplace/internal/notifications"
	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/ariefcatur/go-marketplace/internal/payments"
	"github.com/ariefcatur/go-marketplace/internal/slots"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

const maxBodyBytes = 1 << 20

var (
	validate     = validator.New(validator.WithRequiredStructEnabled())
	queryDecoder = newQueryDecoder()

	errBadJSON = errors.New("invalid json body")
)

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(time.Time{}, parseTime)
	return d
}

// parseTime accepts RFC 3339 timestamps or plain dates. An invalid value
// yields the zero reflect.Value, which schema reports as a conversion error.
func parseTime(s string) reflect.Value {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return reflect.ValueOf(t.UTC())
		}
	}
	return reflect.Value{}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

var statusByErr = []struct {
	err  error
	code int
}{
	{errBadJSON, http.StatusBadRequest},
	{users.ErrInvalidRole, http.StatusBadRequest},
	{users.ErrProducerName, http.StatusBadRequest},
	{catalog.ErrInvalidStock, http.StatusBadRequest},
	{cart.ErrInvalidQty, http.StatusBadRequest},
	{cart.ErrFreshProduct, http.StatusBadRequest},
	{cart.ErrProductUnavailable, http.StatusBadRequest},
	{slots.ErrSlotInPast, http.StatusBadRequest},
	{slots.ErrInvalidQty, http.StatusBadRequest},
	{slots.ErrInvalidCapacity, http.StatusBadRequest},
	{slots.ErrProductNotFresh, http.StatusBadRequest},
	{orders.ErrEmptyCheckout, http.StatusBadRequest},
	{orders.ErrMissingIdempotencyKey, http.StatusBadRequest},
	{orders.ErrInvalidPaymentMethod, http.StatusBadRequest},
	{orders.ErrInvalidStatus, http.StatusBadRequest},
	{orders.ErrManualTransition, http.StatusBadRequest},

	{users.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
	{payments.ErrInvalidSignature, http.StatusBadRequest},

	{invoices.ErrPaymentNotSucceeded, http.StatusPaymentRequired},

	{users.ErrInactive, http.StatusForbidden},
	{auth.ErrSelfLockout, http.StatusForbidden},
	{catalog.ErrNotOwner, http.StatusForbidden},
	{catalog.ErrNoProducerProfile, http.StatusForbidden},
	{slots.ErrNotOwner, http.StatusForbidden},
	{orders.ErrForbidden, http.StatusForbidden},
	{invoices.ErrForbidden, http.StatusForbidden},

	{users.ErrNotFound, http.StatusNotFound},
	{catalog.ErrNotFound, http.StatusNotFound},
	{slots.ErrSlotNotFound, http.StatusNotFound},
	{slots.ErrBookingNotFound, http.StatusNotFound},
	{orders.ErrNotFound, http.StatusNotFound},
	{invoices.ErrNotFound, http.StatusNotFound},
	{notifications.ErrNotFound, http.StatusNotFound},
	{payments.ErrIntentNotFound, http.StatusNotFound},

	{users.ErrEmailTaken, http.StatusConflict},
	{users.ErrHasUnpaidInvoices, http.StatusConflict},
	{cart.ErrInsufficientStock, http.StatusConflict},
	{slots.ErrSlotFull, http.StatusConflict},
	{slots.ErrCapacityBelowReserved, http.StatusConflict},
	{slots.ErrSlotInUse, http.StatusConflict},
	{slots.ErrNotCancellable, http.StatusConflict},
	{slots.ErrProductUnavailable, http.StatusConflict},
	{orders.ErrInsufficientStock, http.StatusConflict},
	{orders.ErrProductUnavailable, http.StatusConflict},
	{orders.ErrInvalidTransition, http.StatusConflict},
	{orders.ErrCheckoutInProgress, http.StatusConflict},
	{invoices.ErrCancelled, http.StatusConflict},
	{invoices.ErrNotPayable, http.StatusConflict},
	{invoices.ErrAmountMismatch, http.StatusConflict},
	{invoices.ErrCurrencyMismatch, http.StatusConflict},
	{invoices.ErrIntentMismatch, http.StatusConflict},
	{invoices.ErrPaymentRefUsed, http.StatusConflict},
	{invoices.ErrOrderState, http.StatusConflict},

	{payments.ErrGatewayDisabled, http.StatusServiceUnavailable},
}

// writeError maps domain errors to a status code. Anything unknown is a 500
// and its message is not leaked to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Details: fieldErrors(verrs)})
		return
	}
	var serr *orders.StockError
	if errors.As(err, &serr) {
		writeJSON(w, http.StatusConflict, errorBody{Error: orders.ErrInsufficientStock.Error(), Details: serr.Details})
		return
	}
	var qerr schema.MultiError
	if errors.As(err, &qerr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid query: " + qerr.Error()})
		return
	}
	if errors.Is(err, orders.ErrCheckoutInProgress) {
		w.Header().Set("Retry-After", "1")
	}
	for _, m := range statusByErr {
		if errors.Is(err, m.err) {
			writeJSON(w, m.code, errorBody{Error: err.Error()})
			return
		}
	}
	slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field())] = fmt.Sprintf("failed %q", fe.Tag())
	}
	return out
}

// decodeJSON reads a size-limited body into dst and validates its tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return validate.Struct(dst)
}

// decodeQuery fills a filter struct from the query string and validates it.
func decodeQuery(r *http.Request, dst any) error {
	if err := queryDecoder.Decode(dst, r.URL.Query()); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
