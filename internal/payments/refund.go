package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/logx"
	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
)

// Refund returns part or all of a settled payment. The gateway is called
// first; the local balance only moves once the gateway accepted the refund.
func (s *Service) Refund(ctx context.Context, in RefundInput) (Payment, error) {
	ctx, span := tracer.Start(ctx, "payments.Refund")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.id", in.PaymentID))

	p, err := s.refund(ctx, in)
	failSpan(span, err)
	return p, err
}

func (s *Service) refund(ctx context.Context, in RefundInput) (Payment, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return Payment{}, fmt.Errorf("%w: reason required", ErrInvalidRequest)
	}
	p, err := s.Store.Get(ctx, in.PaymentID)
	if err != nil {
		return Payment{}, err
	}
	if (p.Status != StatusCompleted && p.Status != StatusPartiallyRefunded) || p.Remaining() <= 0 {
		return Payment{}, fmt.Errorf("payment %d is %s: %w", p.ID, p.Status, ErrNotRefundable)
	}

	amount := p.Remaining()
	if in.Amount != nil {
		amount = *in.Amount
	}
	if amount <= 0 || amount > p.Remaining() {
		return Payment{}, fmt.Errorf("%w: %s (refundable %s)", ErrInvalidRefundAmount, amount, p.Remaining())
	}

	gw, err := s.gateway(p.Gateway)
	if err != nil {
		return Payment{}, err
	}
	receipt, err := gw.Refund(ctx, RefundRequest{
		IdempotencyKey:   RefundKey(p, amount),
		Reference:        p.PaymentReference,
		CorrelationID:    p.GatewayCorrelationID,
		GatewayPaymentID: p.GatewayPaymentID,
		Amount:           amount,
		Currency:         p.Currency,
		Reason:           reason,
	})
	if err != nil {
		if !errors.Is(err, ErrGateway) {
			err = &GatewayError{Gateway: gw.Name(), Op: "refund", Err: err}
		}
		return Payment{}, err
	}

	updated, applied, err := s.Store.ApplyRefund(ctx, RefundUpdate{
		PaymentID:       p.ID,
		Amount:          amount,
		Reason:          reason,
		GatewayRefundID: receipt.GatewayRefundID,
	})
	if err == nil && !applied {
		err = ErrRefundConflict
	}
	if err != nil {
		s.Log.Error("gateway refunded but local ledger was not updated",
			logx.Anomaly("refund_unrecorded"),
			zap.Int64("payment_id", p.ID),
			zap.String("gateway_refund_id", receipt.GatewayRefundID),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return Payment{}, err
	}

	s.Log.Info("payment refunded",
		zap.Int64("payment_id", updated.ID),
		zap.String("amount", amount.String()),
		zap.String("refunded_total", updated.RefundedAmount.String()),
		zap.String("status", string(updated.Status)))

	ps := orders.PaymentPartiallyRefunded
	if updated.Status == StatusRefunded {
		ps = orders.PaymentRefunded
	}
	refunded := updated.RefundedAmount
	s.notify(ctx, updated, orders.PaymentOutcome{PaymentStatus: ps, RefundedAmount: &refunded})
	return updated, nil
}

// RefundKey identifies one refund by the balance it starts from, so a retry
// after a lost response maps to the same gateway refund while the next
// partial refund gets a new key.
func RefundKey(p Payment, amount money.Amount) string {
	return fmt.Sprintf("%s-refund-%d-%d", p.PaymentReference, p.RefundedAmount.Minor(), amount.Minor())
}
