package httpx

import (
	"context"
	"io"
	"net/http"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/invoices"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/go-chi/chi/v5"
)

type invoiceService interface {
	Get(ctx context.Context, actor auth.Principal, id string) (invoices.Invoice, error)
	ListMine(ctx context.Context, userID string, f invoices.Filter) (paging.Result[invoices.Invoice], error)
	ListAll(ctx context.Context, f invoices.Filter) (paging.Result[invoices.Invoice], error)
	CreatePaymentIntent(ctx context.Context, actor auth.Principal, id string) (invoices.PaymentIntent, error)
	PayByCard(ctx context.Context, actor auth.Principal, id, intentID string) (invoices.Invoice, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ConfirmBankTransfer(ctx context.Context, actor auth.Principal, id string, in invoices.BankTransferInput) (invoices.Invoice, error)
}

type InvoicesHandler struct {
	Invoices invoiceService
}

func (h *InvoicesHandler) RegisterPublic(r chi.Router) {
	r.Post("/webhooks/stripe", h.webhook)
}

func (h *InvoicesHandler) Register(r chi.Router) {
	r.Get("/invoices", h.list)
	r.Get("/invoices/{id}", h.get)
	r.Post("/invoices/{id}/payment-intent", h.createIntent)
	r.Post("/invoices/{id}/pay", h.pay)
	r.With(auth.RequireRole(auth.RoleAdmin)).Post("/invoices/{id}/confirm-transfer", h.confirmTransfer)
}

func (h *InvoicesHandler) list(w http.ResponseWriter, r *http.Request) {
	var f invoices.Filter
	if err := decodeQuery(r, &f); err != nil {
		writeError(w, r, err)
		return
	}
	var (
		res paging.Result[invoices.Invoice]
		err error
	)
	if p := principal(r); p.Is(auth.RoleAdmin) {
		res, err = h.Invoices.ListAll(r.Context(), f)
	} else {
		res, err = h.Invoices.ListMine(r.Context(), p.UserID, f)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InvoicesHandler) get(w http.ResponseWriter, r *http.Request) {
	in, err := h.Invoices.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *InvoicesHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	pi, err := h.Invoices.CreatePaymentIntent(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pi)
}

func (h *InvoicesHandler) pay(w http.ResponseWriter, r *http.Request) {
	var in invoices.CardPaymentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.Invoices.PayByCard(r.Context(), principal(r), chi.URLParam(r, "id"), in.PaymentIntentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoicesHandler) confirmTransfer(w http.ResponseWriter, r *http.Request) {
	var in invoices.BankTransferInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.Invoices.ConfirmBankTransfer(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// webhook needs the raw body for signature verification.
func (h *InvoicesHandler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, errBadJSON)
		return
	}
	if err := h.Invoices.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
