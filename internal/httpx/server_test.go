package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/invoices"
	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/ariefcatur/go-marketplace/internal/payments"
	"github.com/ariefcatur/go-marketplace/internal/slots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	orderService
	checkout func(userID, key string, in orders.CheckoutInput) (orders.CheckoutResult, error)
	listedBy string
	filter   orders.Filter
}

func (f *fakeOrders) Checkout(_ context.Context, userID, key string, in orders.CheckoutInput) (orders.CheckoutResult, error) {
	return f.checkout(userID, key, in)
}

func (f *fakeOrders) ListMine(_ context.Context, _ string, fl orders.Filter) (paging.Result[orders.Order], error) {
	f.listedBy, f.filter = "client", fl
	return paging.Result[orders.Order]{Items: []orders.Order{}}, nil
}

func (f *fakeOrders) ListForProducer(_ context.Context, _ string, fl orders.Filter) (paging.Result[orders.Order], error) {
	f.listedBy, f.filter = "producer", fl
	return paging.Result[orders.Order]{Items: []orders.Order{}}, nil
}

func (f *fakeOrders) ListAll(_ context.Context, fl orders.Filter) (paging.Result[orders.Order], error) {
	f.listedBy, f.filter = "admin", fl
	return paging.Result[orders.Order]{Items: []orders.Order{}}, nil
}

type fakeInvoices struct {
	invoiceService
	payload   string
	signature string
	err       error
}

func (f *fakeInvoices) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payload, f.signature = string(payload), signature
	return f.err
}

type testServer struct {
	router   http.Handler
	issuer   *auth.Issuer
	orders   *fakeOrders
	invoices *fakeInvoices
	ready    error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		issuer:   auth.NewIssuer("test-secret", time.Hour),
		orders:   &fakeOrders{},
		invoices: &fakeInvoices{},
	}
	ts.router = NewRouter(RouterConfig{
		Service:     "test",
		CORSOrigins: []string{"*"},
		Verifier:    ts.issuer,
		Ready:       func(context.Context) error { return ts.ready },
	}, Handlers{
		Auth:          &AuthHandler{},
		Products:      &ProductsHandler{},
		Cart:          &CartHandler{},
		Slots:         &SlotsHandler{},
		Orders:        &OrdersHandler{Orders: ts.orders},
		Invoices:      &InvoicesHandler{Invoices: ts.invoices},
		Notifications: &NotificationsHandler{},
		Admin:         &AdminHandler{},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, role auth.Role, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		tok, _, err := ts.issuer.Issue("user-1", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(t, "", http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, "", http.MethodGet, "/readyz", "", nil).Code)

	ts.ready = errors.New("db down")
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, "", http.MethodGet, "/readyz", "", nil).Code)
}

func TestAuthAndRoleGates(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "", http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, auth.RoleProducer, http.MethodPost, "/orders", `{}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, auth.RoleClient, http.MethodGet, "/admin/stats", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, auth.RoleProducer, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, auth.RoleClient, http.MethodPost, "/producer/products", `{}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckoutCreatedThenReplayed(t *testing.T) {
	ts := newTestServer(t)
	calls := 0
	ts.orders.checkout = func(userID, key string, in orders.CheckoutInput) (orders.CheckoutResult, error) {
		calls++
		assert.Equal(t, "user-1", userID)
		assert.Equal(t, "k-1", key)
		assert.Equal(t, orders.PaymentCard, in.PaymentMethod)
		return orders.CheckoutResult{Order: orders.Order{ID: "o-1"}, Idempotent: calls > 1}, nil
	}
	body := `{"payment_method":"card","delivery_address":"Main St 1"}`
	hdr := map[string]string{"Idempotency-Key": "k-1"}

	rec := ts.do(t, auth.RoleClient, http.MethodPost, "/orders", body, hdr)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, auth.RoleClient, http.MethodPost, "/orders", body, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["idempotent"])
}

func TestCheckoutErrorMapping(t *testing.T) {
	body := `{"payment_method":"card","delivery_address":"Main St 1"}`

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"missing key", orders.ErrMissingIdempotencyKey, http.StatusBadRequest},
		{"empty", orders.ErrEmptyCheckout, http.StatusBadRequest},
		{"wrapped unavailable", errors.Join(errors.New("tx"), orders.ErrProductUnavailable), http.StatusConflict},
		{"in progress", orders.ErrCheckoutInProgress, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.orders.checkout = func(string, string, orders.CheckoutInput) (orders.CheckoutResult, error) {
				return orders.CheckoutResult{}, tc.err
			}
			rec := ts.do(t, auth.RoleClient, http.MethodPost, "/orders", body, nil)
			assert.Equal(t, tc.code, rec.Code)
			if tc.err == orders.ErrCheckoutInProgress {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
			if tc.code == http.StatusInternalServerError {
				assert.Equal(t, "internal error", decodeBody(t, rec)["error"])
			}
		})
	}
}

func TestCheckoutStockErrorDetails(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.checkout = func(string, string, orders.CheckoutInput) (orders.CheckoutResult, error) {
		return orders.CheckoutResult{}, &orders.StockError{Details: []orders.StockShortage{
			{ProductID: "p-1", Required: 3, Available: 1},
		}}
	}
	rec := ts.do(t, auth.RoleClient, http.MethodPost, "/orders",
		`{"payment_method":"card","delivery_address":"x"}`, map[string]string{"Idempotency-Key": "k"})

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient stock", body["error"])
	details := body["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "p-1", details[0].(map[string]any)["product_id"])
}

func TestCheckoutValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, auth.RoleClient, http.MethodPost, "/orders", `{"payment_method":"cash","delivery_address":"x"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "validation failed", body["error"])
	assert.Contains(t, body["details"], "paymentmethod")

	rec = ts.do(t, auth.RoleClient, http.MethodPost, "/orders", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderListDispatchesByRole(t *testing.T) {
	ts := newTestServer(t)

	for role, want := range map[auth.Role]string{
		auth.RoleClient:   "client",
		auth.RoleProducer: "producer",
		auth.RoleAdmin:    "admin",
	} {
		rec := ts.do(t, role, http.MethodGet, "/orders?status=PENDING&page=2", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, ts.orders.listedBy)
		assert.Equal(t, "PENDING", ts.orders.filter.Status)
		assert.Equal(t, 2, ts.orders.filter.Page)
	}
}

func TestOrderListQueryParsing(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, auth.RoleAdmin, http.MethodGet, "/orders?from=2026-01-02&to=2026-01-03T10:00:00Z", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), ts.orders.filter.From)
	assert.Equal(t, time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC), ts.orders.filter.To)

	rec = ts.do(t, auth.RoleAdmin, http.MethodGet, "/orders?from=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, auth.RoleAdmin, http.MethodGet, "/orders?page_size=1000", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeWebhookIsPublicAndPassesRawBody(t *testing.T) {
	ts := newTestServer(t)
	payload := `{"id":"evt_1","type":"payment_intent.succeeded"}`

	rec := ts.do(t, "", http.MethodPost, "/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, ts.invoices.payload)
	assert.Equal(t, "t=1,v1=abc", ts.invoices.signature)

	ts.invoices.err = payments.ErrInvalidSignature
	rec = ts.do(t, "", http.MethodPost, "/webhooks/stripe", payload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteErrorMapsInvoiceErrors(t *testing.T) {
	cases := map[error]int{
		invoices.ErrPaymentNotSucceeded: http.StatusPaymentRequired,
		invoices.ErrAmountMismatch:      http.StatusConflict,
		invoices.ErrForbidden:           http.StatusForbidden,
		payments.ErrGatewayDisabled:     http.StatusServiceUnavailable,
		slots.ErrProductUnavailable:     http.StatusConflict,
	}
	for err, code := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		writeError(rec, req, err)
		assert.Equal(t, code, rec.Code, err.Error())
	}
}
