package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

// PaymentService is the slice of *payments.Service the HTTP layer drives.
type PaymentService interface {
	CreatePayment(ctx context.Context, in payments.CreatePaymentInput) (payments.CreatePaymentResult, error)
	Refund(ctx context.Context, in payments.RefundInput) (payments.Payment, error)
	Get(ctx context.Context, id int64) (payments.Payment, error)
	GetByReference(ctx context.Context, ref string) (payments.Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]payments.Payment, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]payments.Payment, error)
	ListByBusiness(ctx context.Context, businessID int64) ([]payments.Payment, error)
	Transactions(ctx context.Context, paymentID int64) ([]payments.Transaction, error)
}

type PaymentsHandler struct {
	Service PaymentService
	Log     *zap.Logger
}

type RefundReq struct {
	// Amount nil refunds the whole remaining balance.
	Amount *money.Amount `json:"amount,omitempty"`
	Reason string        `json:"reason"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments", h.create)
	r.Get("/payments/reference/{ref}", h.getByReference)
	r.Get("/payments/{id}", h.get)
	r.Get("/payments/{id}/transactions", h.transactions)
	r.Post("/payments/{id}/refund", h.refund)
	r.Get("/orders/{id}/payments", h.listByOrder)
	r.Get("/customers/{id}/payments", h.listByCustomer)
	r.Get("/businesses/{id}/payments", h.listByBusiness)
}

func (h *PaymentsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req payments.CreatePaymentInput
	if !decode(w, r, &req) {
		return
	}
	// gateway round trip included
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Service.CreatePayment(ctx, req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *PaymentsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Service.Get(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) getByReference(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Service.GetByReference(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	txs, err := h.Service.Transactions(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if txs == nil {
		txs = []payments.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RefundReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	p, err := h.Service.Refund(ctx, payments.RefundInput{PaymentID: id, Amount: req.Amount, Reason: req.Reason})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) listByOrder(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListByOrder)
}

func (h *PaymentsHandler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListByCustomer)
}

func (h *PaymentsHandler) listByBusiness(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListByBusiness)
}

func (h *PaymentsHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) ([]payments.Payment, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := fn(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if ps == nil {
		ps = []payments.Payment{}
	}
	writeJSON(w, http.StatusOK, ps)
}
