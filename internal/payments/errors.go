package payments

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-settlement/internal/money"
)

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrInvalidRequest      = errors.New("invalid payment request")
	ErrOrderNotPayable     = errors.New("order cannot accept payment")
	ErrAmountMismatch      = errors.New("payment amount does not match order total")
	ErrDuplicatePayment    = errors.New("order already has a completed payment")
	ErrUnknownGateway      = errors.New("unknown payment gateway")
	ErrGateway             = errors.New("payment gateway error")
	ErrNotRefundable       = errors.New("payment is not refundable")
	ErrInvalidRefundAmount = errors.New("invalid refund amount")
	ErrRefundConflict      = errors.New("refund conflicted with a concurrent change")
)

type AmountMismatchError struct {
	OrderID   int64
	Requested money.Amount
	Expected  money.Amount
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("order %d: amount %s does not match order total %s", e.OrderID, e.Requested, e.Expected)
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// GatewayError keeps the provider's message while matching ErrGateway.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() []error { return []error{ErrGateway, e.Err} }
