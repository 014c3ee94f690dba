package orderevents

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-settlement/internal/kafka"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

type capture struct {
	msgs []kafkago.Message
}

func (c *capture) Publish(key, value []byte, headers ...kafkago.Header) {
	c.msgs = append(c.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

type applied struct {
	orderID int64
	out     orders.PaymentOutcome
}

type fakeNotifier struct {
	calls []applied
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, orderID int64, out orders.PaymentOutcome) error {
	f.calls = append(f.calls, applied{orderID, out})
	return f.err
}

// published runs the real KafkaNotifier so the test decodes exactly what
// the payment side writes.
func published(t *testing.T, orderID int64, out orders.PaymentOutcome) kafkago.Message {
	t.Helper()
	c := &capture{}
	n := &payments.KafkaNotifier{Events: c, ServiceName: "order-api"}
	require.NoError(t, n.Notify(context.Background(), orderID, out))
	require.Len(t, c.msgs, 1)
	return c.msgs[0]
}

func TestHandleAppliesSettledOutcome(t *testing.T) {
	confirmed := orders.StatusConfirmed
	out := orders.PaymentOutcome{OrderStatus: &confirmed, PaymentStatus: orders.PaymentCompleted, PaymentRef: "PAY-1"}
	f := &fakeNotifier{}
	h := &Handler{Orders: f, Log: zap.NewNop()}

	require.NoError(t, h.Handle(context.Background(), published(t, 42, out)))
	require.Len(t, f.calls, 1)
	assert.Equal(t, int64(42), f.calls[0].orderID)
	assert.Equal(t, out, f.calls[0].out)
}

func TestHandleAcknowledgesPoisonAndUnknownOrders(t *testing.T) {
	f := &fakeNotifier{}
	h := &Handler{Orders: f, Log: zap.NewNop()}

	assert.NoError(t, h.Handle(context.Background(), kafkago.Message{Value: []byte("{garbage")}))
	assert.Empty(t, f.calls)

	other := kafkax.NewEnvelope(orders.EventOrderCreated, "order-api", "1", map[string]int{"order_id": 1})
	assert.NoError(t, h.Handle(context.Background(), kafkago.Message{Value: kafkax.MustMarshal(other)}))
	assert.Empty(t, f.calls)

	f.err = orders.ErrOrderNotFound
	assert.NoError(t, h.Handle(context.Background(), published(t, 9, orders.PaymentOutcome{PaymentStatus: orders.PaymentFailed})))
	assert.Len(t, f.calls, 1)
}

func TestHandleHoldsOffsetOnFailure(t *testing.T) {
	f := &fakeNotifier{err: errors.New("db down")}
	h := &Handler{Orders: f, Log: zap.NewNop()}

	err := h.Handle(context.Background(), published(t, 3, orders.PaymentOutcome{PaymentStatus: orders.PaymentFailed}))
	assert.ErrorContains(t, err, "db down")
}
