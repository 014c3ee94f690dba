package payments

import (
	"context"

	"github.com/ariefcatur/go-order-settlement/internal/money"
)

type IntentRequest struct {
	Reference     string
	OrderNumber   string
	Amount        money.Amount
	Currency      string
	Method        Method
	Description   string
	CustomerEmail string
	CustomerPhone string
}

// Intent is the gateway's handle for a pending collection. CorrelationID is
// what its webhooks will reference; ClientToken goes to the payer's client.
type Intent struct {
	CorrelationID string
	ClientToken   string
}

type RefundRequest struct {
	// IdempotencyKey is stable for one refund of one payment, so a retried
	// call does not refund twice.
	IdempotencyKey   string
	Reference        string
	CorrelationID    string
	GatewayPaymentID string
	Amount           money.Amount
	Currency         string
	Reason           string
}

type RefundReceipt struct {
	GatewayRefundID string
	Status          string
}

// Gateway is implemented by each provider adapter.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (RefundReceipt, error)
}
