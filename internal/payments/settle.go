package payments

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/logx"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
)

// nextStatus is the settlement decision table. ok=false means the outcome is
// a replay (or stale) for the current status and must change nothing.
func nextStatus(cur Status, kind OutcomeKind) (Status, bool) {
	switch cur {
	case StatusPending, StatusProcessing:
		switch kind {
		case OutcomeSucceeded:
			return StatusCompleted, true
		case OutcomeFailed, OutcomeCancelled:
			return StatusFailed, true
		case OutcomeProcessing:
			return StatusProcessing, cur == StatusPending
		}
	case StatusFailed:
		// The gateway may still collect after reporting a failed attempt.
		if kind == OutcomeSucceeded {
			return StatusCompleted, true
		}
	}
	return cur, false
}

// Settle applies one verified gateway outcome. Replays return Applied=false
// and have no effects.
func (s *Service) Settle(ctx context.Context, out Outcome) (SettleResult, error) {
	ctx, span := tracer.Start(ctx, "payments.Settle")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway", out.Gateway),
		attribute.String("gateway.correlation_id", out.CorrelationID),
		attribute.String("outcome", string(out.Kind)))

	res, err := s.settle(ctx, out)
	failSpan(span, err)
	span.SetAttributes(attribute.Bool("applied", res.Applied))
	return res, err
}

func (s *Service) settle(ctx context.Context, out Outcome) (SettleResult, error) {
	p, err := s.Store.GetByCorrelation(ctx, out.Gateway, out.CorrelationID)
	if err != nil {
		return SettleResult{}, err
	}
	log := s.Log.With(
		zap.Int64("payment_id", p.ID),
		zap.String("payment_reference", p.PaymentReference),
		zap.String("outcome", string(out.Kind)))

	to, ok := nextStatus(p.Status, out.Kind)
	if p.Status == StatusFailed && p.FailureReason == ReasonDuplicateCollection {
		ok = false
	}
	if !ok {
		log.Info("settlement replay ignored", zap.String("status", string(p.Status)))
		return SettleResult{Payment: p}, nil
	}
	if out.Amount != 0 && out.Amount != p.Amount && to == StatusCompleted {
		log.Error("gateway settled a different amount",
			logx.Anomaly("settled_amount_mismatch"),
			zap.String("expected", p.Amount.String()),
			zap.String("reported", out.Amount.String()))
	}

	u := SettlementUpdate{
		PaymentID:        p.ID,
		From:             []Status{p.Status},
		To:               to,
		GatewayPaymentID: out.GatewayPaymentID,
	}
	switch to {
	case StatusCompleted:
		u.Entry = &Transaction{Type: TxPayment, Status: TxSuccess, Amount: p.Amount,
			GatewayTransactionID: out.GatewayPaymentID, Description: out.RawStatus}
	case StatusFailed:
		u.FailureReason = failureReason(out)
		u.Entry = &Transaction{Type: TxPayment, Status: TxFailed, Amount: p.Amount,
			GatewayTransactionID: out.GatewayPaymentID, Description: u.FailureReason}
	}

	updated, applied, err := s.Store.ApplySettlement(ctx, u)
	if errors.Is(err, ErrCompletedConflict) {
		log.Error("second payment collected for an already paid order",
			logx.Anomaly("double_collection"), zap.Int64("order_id", p.OrderID))
		return s.recordDuplicate(ctx, p, out)
	}
	if err != nil {
		return SettleResult{}, fmt.Errorf("apply settlement: %w", err)
	}
	if !applied {
		log.Info("settlement lost race, treated as replay", zap.String("status", string(updated.Status)))
		return SettleResult{Payment: updated}, nil
	}

	log.Info("payment settled", zap.String("from", string(p.Status)), zap.String("to", string(to)))
	switch to {
	case StatusCompleted:
		confirmed := orders.StatusConfirmed
		s.notify(ctx, updated, orders.PaymentOutcome{OrderStatus: &confirmed, PaymentStatus: orders.PaymentCompleted})
	case StatusFailed:
		s.notify(ctx, updated, orders.PaymentOutcome{PaymentStatus: orders.PaymentFailed})
	}
	return SettleResult{Payment: updated, Applied: true}, nil
}

// ReasonDuplicateCollection marks a payment the gateway collected after
// another payment of the same order had already completed. The row stays
// FAILED, carries the collected PAYMENT/SUCCESS entry and waits for an
// operator refund.
const ReasonDuplicateCollection = "duplicate_collection"

func (s *Service) recordDuplicate(ctx context.Context, p Payment, out Outcome) (SettleResult, error) {
	updated, applied, err := s.Store.ApplySettlement(ctx, SettlementUpdate{
		PaymentID:        p.ID,
		From:             []Status{p.Status},
		To:               StatusFailed,
		GatewayPaymentID: out.GatewayPaymentID,
		FailureReason:    ReasonDuplicateCollection,
		Entry: &Transaction{Type: TxPayment, Status: TxSuccess, Amount: p.Amount,
			GatewayTransactionID: out.GatewayPaymentID, Description: ReasonDuplicateCollection},
	})
	if err != nil {
		return SettleResult{}, fmt.Errorf("record duplicate collection: %w", err)
	}
	return SettleResult{Payment: updated, Applied: applied}, nil
}

func failureReason(out Outcome) string {
	if out.Reason != "" {
		return out.Reason
	}
	if out.Kind == OutcomeCancelled {
		return "cancelled at gateway"
	}
	if out.RawStatus != "" {
		return out.RawStatus
	}
	return "failed at gateway"
}
