package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
)

// OrderService is the slice of *orders.Service the HTTP layer drives.
type OrderService interface {
	Create(ctx context.Context, idemKey string, in orders.CreateOrderInput) (orders.Order, bool, error)
	Confirm(ctx context.Context, id int64) (orders.Order, error)
	Dispatch(ctx context.Context, id, deliveryPersonID int64) (orders.Order, error)
	Deliver(ctx context.Context, id int64) (orders.Order, error)
	Cancel(ctx context.Context, id int64, reason string) (orders.Order, error)
	Get(ctx context.Context, id int64) (orders.Order, error)
	GetByNumber(ctx context.Context, number string) (orders.Order, error)
	ListByCustomer(ctx context.Context, customerID int64, f orders.Filter) ([]orders.Order, error)
	ListByBusiness(ctx context.Context, businessID int64, f orders.Filter) ([]orders.Order, error)
	Tracking(ctx context.Context, id int64) ([]orders.TrackingEvent, error)
	Status(ctx context.Context, id int64) (orders.StatusView, error)
	BusinessOrderCount(ctx context.Context, businessID int64, status orders.Status) (int64, error)
	BusinessRevenue(ctx context.Context, businessID int64) (money.Amount, error)
}

type OrdersHandler struct {
	Service OrderService
	Log     *zap.Logger
}

const HeaderIdempotencyKey = "Idempotency-Key"

type DispatchReq struct {
	DeliveryPersonID int64 `json:"delivery_person_id"`
}

type CancelReq struct {
	Reason string `json:"reason"`
}

type CountResp struct {
	BusinessID int64         `json:"business_id"`
	Status     orders.Status `json:"status,omitempty"`
	Count      int64         `json:"count"`
}

type RevenueResp struct {
	BusinessID int64        `json:"business_id"`
	Revenue    money.Amount `json:"revenue"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/number/{number}", h.getOrderByNumber)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Get("/orders/{id}/tracking", h.getTracking)
	r.Post("/orders/{id}/confirm", h.confirm)
	r.Post("/orders/{id}/dispatch", h.dispatch)
	r.Post("/orders/{id}/deliver", h.deliver)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Get("/customers/{id}/orders", h.listByCustomer)
	r.Get("/businesses/{id}/orders", h.listByBusiness)
	r.Get("/businesses/{id}/orders/count", h.countByBusiness)
	r.Get("/businesses/{id}/revenue", h.revenue)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderInput
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, existed, err := h.Service.Create(ctx, r.Header.Get(HeaderIdempotencyKey), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if existed {
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, o)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.Get(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.GetByNumber(ctx, chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Service.Status(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) getTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	evs, err := h.Service.Tracking(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, func(ctx context.Context, id int64) (orders.Order, error) {
		return h.Service.Confirm(ctx, id)
	})
}

func (h *OrdersHandler) deliver(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, func(ctx context.Context, id int64) (orders.Order, error) {
		return h.Service.Deliver(ctx, id)
	})
}

func (h *OrdersHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchReq
	if !decode(w, r, &req) {
		return
	}
	h.move(w, r, func(ctx context.Context, id int64) (orders.Order, error) {
		return h.Service.Dispatch(ctx, id, req.DeliveryPersonID)
	})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelReq
	if !decode(w, r, &req) {
		return
	}
	h.move(w, r, func(ctx context.Context, id int64) (orders.Order, error) {
		return h.Service.Cancel(ctx, id, req.Reason)
	})
}

func (h *OrdersHandler) move(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (orders.Order, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := fn(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListByCustomer)
}

func (h *OrdersHandler) listByBusiness(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListByBusiness)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, orders.Filter) ([]orders.Order, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, err := filterFrom(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := fn(ctx, id, f)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func filterFrom(r *http.Request) (orders.Filter, error) {
	f := orders.Filter{Status: orders.Status(r.URL.Query().Get("status"))}
	var err error
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		return f, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, &orders.ValidationError{Field: "status", Reason: "unknown value"}
	}
	return f, nil
}

func (h *OrdersHandler) countByBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	status := orders.Status(r.URL.Query().Get("status"))
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	n, err := h.Service.BusinessOrderCount(ctx, id, status)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResp{BusinessID: id, Status: status, Count: n})
}

func (h *OrdersHandler) revenue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	amt, err := h.Service.BusinessRevenue(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, RevenueResp{BusinessID: id, Revenue: amt})
}
