package payments

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/orders"
)

// CreatePayment opens a gateway intent for an order's full total and records
// it as PENDING. Nothing is written locally when the gateway call fails.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (CreatePaymentResult, error) {
	ctx, span := tracer.Start(ctx, "payments.CreatePayment")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", in.OrderID))

	res, err := s.createPayment(ctx, in)
	failSpan(span, err)
	return res, err
}

func (s *Service) createPayment(ctx context.Context, in CreatePaymentInput) (CreatePaymentResult, error) {
	if in.OrderID <= 0 {
		return CreatePaymentResult{}, fmt.Errorf("%w: order_id required", ErrInvalidRequest)
	}
	if !in.Method.Valid() {
		return CreatePaymentResult{}, fmt.Errorf("%w: unknown method %q", ErrInvalidRequest, in.Method)
	}
	gw, err := s.gateway(in.Gateway)
	if err != nil {
		return CreatePaymentResult{}, err
	}

	order, err := s.Orders.OrderTotal(ctx, in.OrderID)
	if err != nil {
		return CreatePaymentResult{}, err
	}
	if order.Status == orders.StatusCancelled || order.Status == orders.StatusDelivered {
		return CreatePaymentResult{}, fmt.Errorf("order %d is %s: %w", in.OrderID, order.Status, ErrOrderNotPayable)
	}
	if in.Amount != order.TotalAmount {
		return CreatePaymentResult{}, &AmountMismatchError{OrderID: in.OrderID, Requested: in.Amount, Expected: order.TotalAmount}
	}
	done, err := s.Store.HasCompleted(ctx, in.OrderID)
	if err != nil {
		return CreatePaymentResult{}, err
	}
	if done {
		return CreatePaymentResult{}, ErrDuplicatePayment
	}

	ref := NewReference(s.now())
	intent, err := gw.CreateIntent(ctx, IntentRequest{
		Reference:     ref,
		OrderNumber:   order.OrderNumber,
		Amount:        order.TotalAmount,
		Currency:      s.Currency,
		Method:        in.Method,
		Description:   in.Description,
		CustomerEmail: in.CustomerEmail,
		CustomerPhone: in.CustomerPhone,
	})
	if err != nil {
		if !errors.Is(err, ErrGateway) {
			err = &GatewayError{Gateway: gw.Name(), Op: "create intent", Err: err}
		}
		return CreatePaymentResult{}, err
	}

	p, err := s.Store.InsertPending(ctx, Payment{
		PaymentReference:     ref,
		OrderID:              order.OrderID,
		CustomerID:           order.CustomerID,
		BusinessID:           order.BusinessID,
		Amount:               order.TotalAmount,
		Currency:             s.Currency,
		Method:               in.Method,
		Gateway:              gw.Name(),
		GatewayCorrelationID: intent.CorrelationID,
		Description:          in.Description,
		CustomerEmail:        in.CustomerEmail,
		CustomerPhone:        in.CustomerPhone,
	})
	if err != nil {
		return CreatePaymentResult{}, err
	}

	s.Log.Info("payment created",
		zap.Int64("payment_id", p.ID),
		zap.String("payment_reference", p.PaymentReference),
		zap.Int64("order_id", p.OrderID),
		zap.String("gateway", p.Gateway),
		zap.String("amount", p.Amount.String()))
	return CreatePaymentResult{
		PaymentID:          p.ID,
		PaymentReference:   p.PaymentReference,
		Status:             p.Status,
		Gateway:            p.Gateway,
		GatewayClientToken: intent.ClientToken,
	}, nil
}
