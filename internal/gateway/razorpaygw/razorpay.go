// Package razorpaygw adapts Razorpay Orders and payment refunds to
// payments.Gateway.
package razorpaygw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

const Name = "razorpay"

var errPaymentNotCaptured = errors.New("no captured razorpay payment id to refund")

// api is the slice of the Razorpay SDK the adapter uses.
type api interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error)
}

type sdk struct{ c *razorpay.Client }

func (s sdk) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return s.c.Order.Create(data, nil)
}

func (s sdk) Refund(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error) {
	return s.c.Payment.Refund(paymentID, amount, data, nil)
}

type Gateway struct {
	api api
}

func New(keyID, keySecret string) *Gateway {
	return &Gateway{api: sdk{c: razorpay.NewClient(keyID, keySecret)}}
}

func (g *Gateway) Name() string { return Name }

// CreateIntent opens a Razorpay order. The order id correlates webhooks and
// is also what checkout needs, so it doubles as the client token.
func (g *Gateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if err := ctx.Err(); err != nil {
		return payments.Intent{}, err
	}
	body, err := g.api.CreateOrder(map[string]interface{}{
		"amount":   req.Amount.Minor(),
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.Reference,
		"notes": map[string]interface{}{
			"payment_reference": req.Reference,
			"order_number":      req.OrderNumber,
			"method":            string(req.Method),
		},
	})
	if err != nil {
		return payments.Intent{}, &payments.GatewayError{Gateway: Name, Op: "create order", Err: err}
	}
	id, _ := body["id"].(string)
	if id == "" {
		return payments.Intent{}, &payments.GatewayError{Gateway: Name, Op: "create order", Err: fmt.Errorf("response without id")}
	}
	return payments.Intent{CorrelationID: id, ClientToken: id}, nil
}

func (g *Gateway) Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundReceipt, error) {
	if err := ctx.Err(); err != nil {
		return payments.RefundReceipt{}, err
	}
	if req.GatewayPaymentID == "" {
		return payments.RefundReceipt{}, &payments.GatewayError{Gateway: Name, Op: "refund", Err: errPaymentNotCaptured}
	}
	body, err := g.api.Refund(req.GatewayPaymentID, int(req.Amount.Minor()), map[string]interface{}{
		"receipt": req.Reference,
		"notes":   map[string]interface{}{"reason": req.Reason},
	})
	if err != nil {
		return payments.RefundReceipt{}, &payments.GatewayError{Gateway: Name, Op: "refund", Err: err}
	}
	id, _ := body["id"].(string)
	status, _ := body["status"].(string)
	return payments.RefundReceipt{GatewayRefundID: id, Status: status}, nil
}
