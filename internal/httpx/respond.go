package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/inventory"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFail(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, errorBody{Error: errCode, Message: msg})
}

// errorStatus maps domain errors onto a status and a stable error code.
// Order matters: typed errors unwrap to more than one sentinel in places.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, orders.ErrOrderValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, payments.ErrAmountMismatch):
		return http.StatusUnprocessableEntity, "amount_mismatch"
	case errors.Is(err, payments.ErrInvalidRequest),
		errors.Is(err, payments.ErrInvalidRefundAmount),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, payments.ErrUnknownGateway):
		return http.StatusBadRequest, "unknown_gateway"

	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, payments.ErrPaymentNotFound):
		return http.StatusNotFound, "payment_not_found"
	case errors.Is(err, inventory.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"

	case errors.Is(err, orders.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, payments.ErrDuplicatePayment):
		return http.StatusConflict, "duplicate_payment"
	case errors.Is(err, payments.ErrOrderNotPayable):
		return http.StatusConflict, "order_not_payable"
	case errors.Is(err, payments.ErrNotRefundable):
		return http.StatusConflict, "not_refundable"
	case errors.Is(err, payments.ErrRefundConflict):
		return http.StatusConflict, "refund_conflict"
	case errors.Is(err, orders.ErrIdempotencyInFlight):
		return http.StatusConflict, "request_in_progress"

	case errors.Is(err, payments.ErrGateway):
		return http.StatusBadGateway, "gateway_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError logs server-side failures and hides their text from clients.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code, errCode := errorStatus(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		if code == http.StatusInternalServerError {
			writeFail(w, code, errCode, "internal error")
			return
		}
	}
	writeFail(w, code, errCode, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
