// Package stripegw adapts Stripe PaymentIntents and Refunds to payments.Gateway.
package stripegw

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

const Name = "stripe"

type Gateway struct {
	api *client.API
}

// New builds the adapter. baseURL overrides the API endpoint and is empty in
// production.
func New(secretKey, baseURL string, log *zap.Logger) *Gateway {
	cfg := &stripe.BackendConfig{LeveledLogger: log.Named("stripe").Sugar()}
	if baseURL != "" {
		cfg.URL = stripe.String(baseURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
	return &Gateway{api: client.New(secretKey, backends)}
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount.Minor()),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("payment_reference", req.Reference)
	params.AddMetadata("order_number", req.OrderNumber)
	params.AddMetadata("method", string(req.Method))
	params.SetIdempotencyKey(req.Reference)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return payments.Intent{}, &payments.GatewayError{Gateway: Name, Op: "create payment intent", Err: err}
	}
	return payments.Intent{CorrelationID: pi.ID, ClientToken: pi.ClientSecret}, nil
}

func (g *Gateway) Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundReceipt, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.CorrelationID),
		Amount:        stripe.Int64(req.Amount.Minor()),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("payment_reference", req.Reference)
	params.AddMetadata("reason", req.Reason)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return payments.RefundReceipt{}, &payments.GatewayError{Gateway: Name, Op: "refund", Err: err}
	}
	return payments.RefundReceipt{GatewayRefundID: r.ID, Status: string(r.Status)}, nil
}
