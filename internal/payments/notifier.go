package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-settlement/internal/kafka"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
)

const (
	TopicPaymentSettled = "payment.settled"

	EventPaymentSettled  = "PaymentSettled"
	EventPaymentRefunded = "PaymentRefunded"
)

// OrderNotifier delivers a payment outcome to the order side.
type OrderNotifier interface {
	Notify(ctx context.Context, orderID int64, out orders.PaymentOutcome) error
}

// OrderApplier is implemented by *orders.Service.
type OrderApplier interface {
	ApplyPaymentOutcome(ctx context.Context, orderID int64, out orders.PaymentOutcome) error
}

// DirectNotifier calls the order service in-process with a short bounded
// retry. The applier is idempotent so a retry after an ambiguous failure is
// harmless.
type DirectNotifier struct {
	Orders   OrderApplier
	Attempts int
	Backoff  time.Duration
	Log      *zap.Logger
}

func NewDirectNotifier(o OrderApplier, log *zap.Logger) *DirectNotifier {
	return &DirectNotifier{Orders: o, Attempts: 3, Backoff: 200 * time.Millisecond, Log: log}
}

func (n *DirectNotifier) Notify(ctx context.Context, orderID int64, out orders.PaymentOutcome) error {
	attempts := max(n.Attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := n.Backoff << (i - 1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("notify order %d: %w (last error: %v)", orderID, ctx.Err(), err)
			case <-time.After(wait):
			}
		}
		err = n.Orders.ApplyPaymentOutcome(ctx, orderID, out)
		if err == nil || errors.Is(err, orders.ErrOrderNotFound) {
			return err
		}
		n.Log.Warn("apply payment outcome failed", zap.Int64("order_id", orderID), zap.Int("attempt", i+1), zap.Error(err))
	}
	return fmt.Errorf("notify order %d after %d attempts: %w", orderID, attempts, err)
}

// SettledPayload is the body of PaymentSettled and PaymentRefunded events.
type SettledPayload struct {
	OrderID int64                 `json:"order_id"`
	Outcome orders.PaymentOutcome `json:"outcome"`
}

// KafkaNotifier publishes outcomes on TopicPaymentSettled for the
// order-events consumer.
type KafkaNotifier struct {
	Events      kafkax.Publisher
	ServiceName string
}

func (n *KafkaNotifier) Notify(_ context.Context, orderID int64, out orders.PaymentOutcome) error {
	eventType := EventPaymentSettled
	if out.PaymentStatus == orders.PaymentRefunded || out.PaymentStatus == orders.PaymentPartiallyRefunded {
		eventType = EventPaymentRefunded
	}
	key := orders.PartitionKey(orderID)
	env := kafkax.NewEnvelope(eventType, n.ServiceName, key, SettledPayload{OrderID: orderID, Outcome: out})
	kafkax.PublishEnvelope(n.Events, key, env)
	return nil
}
