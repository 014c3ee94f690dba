// Package orderevents applies payment outcomes published on payment.settled
// to the order aggregate. It is the consumer side of payments.KafkaNotifier.
package orderevents

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-settlement/internal/kafka"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
	"github.com/ariefcatur/go-order-settlement/internal/redisx"
)

const consumerName = "order-events"

type Handler struct {
	// Orders is usually a payments.DirectNotifier around *orders.Service, so a
	// transient database error is retried in process before the consumer
	// starts redelivering the message.
	Orders payments.OrderNotifier
	Redis  *redis.Client
	Log    *zap.Logger
}

// Handle is a kafkax.Handler. Malformed messages and outcomes for unknown
// orders are logged and acknowledged. Any other error holds the partition:
// the consumer retries the same message and commits nothing past it.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		h.Log.Error("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case payments.EventPaymentSettled, payments.EventPaymentRefunded:
	default:
		return nil
	}
	log := h.Log.With(zap.String("event_id", env.EventID), zap.String("event_type", env.EventType))

	dkey := fmt.Sprintf(redisx.KeyDedup, consumerName, env.EventID)
	if h.Redis != nil {
		if seen, err := redisx.Exists(ctx, h.Redis, dkey); err == nil && seen {
			log.Debug("duplicate event skipped")
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[payments.SettledPayload](env.Payload)
	if err != nil || p.OrderID <= 0 {
		log.Error("dropping event with bad payload", zap.Error(err))
		return nil
	}

	err = h.Orders.Notify(ctx, p.OrderID, p.Outcome)
	if errors.Is(err, orders.ErrOrderNotFound) {
		log.Warn("payment outcome for unknown order", zap.Int64("order_id", p.OrderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply outcome to order %d: %w", p.OrderID, err)
	}

	if h.Redis != nil {
		if err := redisx.Mark(ctx, h.Redis, dkey, redisx.TTLDedup); err != nil {
			log.Warn("dedup mark failed", zap.Error(err))
		}
	}
	log.Info("payment outcome applied",
		zap.Int64("order_id", p.OrderID),
		zap.String("payment_status", string(p.Outcome.PaymentStatus)))
	return nil
}
