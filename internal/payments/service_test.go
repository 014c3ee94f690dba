package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-settlement/internal/kafka"
	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
)

type harness struct {
	svc      *Service
	store    *memStore
	gw       *fakeGateway
	orders   *fakeOrders
	notifier *recordingNotifier
}

func newHarness() *harness {
	h := &harness{
		store: newMemStore(),
		gw:    &fakeGateway{},
		orders: &fakeOrders{summary: orders.Summary{
			OrderID: 10, OrderNumber: "ORD-20250301-ABCDEF12", CustomerID: 7, BusinessID: 3,
			Status: orders.StatusPending, TotalAmount: money.MustParse("175.00"),
		}},
		notifier: &recordingNotifier{},
	}
	h.svc = &Service{
		Store:          h.store,
		Orders:         h.orders,
		Gateways:       map[string]Gateway{"stripe": h.gw},
		Notifier:       h.notifier,
		DefaultGateway: "stripe",
		Currency:       "INR",
		Log:            zap.NewNop(),
	}
	return h
}

func (h *harness) create(t *testing.T) CreatePaymentResult {
	t.Helper()
	res, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
		OrderID: 10, Amount: money.MustParse("175.00"), Method: MethodUPI,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) settle(t *testing.T, corr string, kind OutcomeKind) SettleResult {
	t.Helper()
	res, err := h.svc.Settle(context.Background(), Outcome{Gateway: "stripe", CorrelationID: corr, GatewayPaymentID: "ch_1", Kind: kind})
	require.NoError(t, err)
	return res
}

func TestCreatePaymentRecordsPendingIntent(t *testing.T) {
	h := newHarness()
	res := h.create(t)

	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "stripe", res.Gateway)
	assert.Regexp(t, `^PAY-\d+-[0-9A-F]{8}$`, res.PaymentReference)
	assert.Equal(t, "pi_1_secret", res.GatewayClientToken)

	p, err := h.store.Get(context.Background(), res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", p.GatewayCorrelationID)
	assert.Equal(t, 1, h.store.count(TxPayment, TxInitiated))
}

func TestCreatePaymentAmountMismatch(t *testing.T) {
	h := newHarness()
	_, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
		OrderID: 10, Amount: money.MustParse("170.00"), Method: MethodUPI,
	})
	var ame *AmountMismatchError
	require.ErrorAs(t, err, &ame)
	assert.Equal(t, money.MustParse("175.00"), ame.Expected)
	assert.Zero(t, h.gw.intents)
}

func TestCreatePaymentRejectsClosedOrders(t *testing.T) {
	for _, st := range []orders.Status{orders.StatusCancelled, orders.StatusDelivered} {
		h := newHarness()
		h.orders.summary.Status = st
		_, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
			OrderID: 10, Amount: money.MustParse("175.00"), Method: MethodUPI,
		})
		assert.ErrorIs(t, err, ErrOrderNotPayable, st)
	}
}

func TestCreatePaymentRejectsSecondPaymentAfterCompletion(t *testing.T) {
	h := newHarness()
	first := h.create(t)
	p, _ := h.store.Get(context.Background(), first.PaymentID)
	h.settle(t, p.GatewayCorrelationID, OutcomeSucceeded)

	_, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
		OrderID: 10, Amount: money.MustParse("175.00"), Method: MethodUPI,
	})
	assert.ErrorIs(t, err, ErrDuplicatePayment)
}

func TestCreatePaymentGatewayFailureWritesNothing(t *testing.T) {
	h := newHarness()
	h.gw.intentErr = errBoom

	_, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
		OrderID: 10, Amount: money.MustParse("175.00"), Method: MethodCreditCard,
	})
	assert.ErrorIs(t, err, ErrGateway)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, h.store.payments)
}

func TestCreatePaymentValidatesInput(t *testing.T) {
	h := newHarness()
	_, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{OrderID: 10, Amount: 1, Method: "CASH"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.CreatePayment(context.Background(), CreatePaymentInput{
		OrderID: 10, Amount: money.MustParse("175.00"), Method: MethodUPI, Gateway: "paypal",
	})
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestSettleReplayYieldsOneSuccessRow(t *testing.T) {
	h := newHarness()
	res := h.create(t)
	p, _ := h.store.Get(context.Background(), res.PaymentID)

	first := h.settle(t, p.GatewayCorrelationID, OutcomeSucceeded)
	second := h.settle(t, p.GatewayCorrelationID, OutcomeSucceeded)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, StatusCompleted, second.Payment.Status)
	assert.Equal(t, "ch_1", second.Payment.GatewayPaymentID)
	assert.Equal(t, 1, h.store.count(TxPayment, TxSuccess))

	require.Len(t, h.notifier.outcomes, 1)
	out := h.notifier.outcomes[0]
	assert.Equal(t, orders.PaymentCompleted, out.PaymentStatus)
	require.NotNil(t, out.OrderStatus)
	assert.Equal(t, orders.StatusConfirmed, *out.OrderStatus)
	assert.Equal(t, p.PaymentReference, out.PaymentRef)
}

func TestSettleConcurrentDeliveries(t *testing.T) {
	h := newHarness()
	res := h.create(t)
	p, _ := h.store.Get(context.Background(), res.PaymentID)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.svc.Settle(context.Background(), Outcome{Gateway: "stripe", CorrelationID: p.GatewayCorrelationID, Kind: OutcomeSucceeded})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, h.store.count(TxPayment, TxSuccess))
	assert.Len(t, h.notifier.outcomes, 1)
}

func TestSettleOutOfOrderEvents(t *testing.T) {
	h := newHarness()
	res := h.create(t)
	p, _ := h.store.Get(context.Background(), res.PaymentID)
	corr := p.GatewayCorrelationID

	assert.True(t, h.settle(t, corr, OutcomeProcessing).Applied)
	assert.False(t, h.settle(t, corr, OutcomeProcessing).Applied)
	assert.True(t, h.settle(t, corr, OutcomeFailed).Applied)
	assert.False(t, h.settle(t, corr, OutcomeCancelled).Applied)

	late := h.settle(t, corr, OutcomeSucceeded)
	assert.True(t, late.Applied)
	assert.Equal(t, StatusCompleted, late.Payment.Status)

	assert.False(t, h.settle(t, corr, OutcomeFailed).Applied)
	assert.False(t, h.settle(t, corr, OutcomeProcessing).Applied)

	require.Len(t, h.notifier.outcomes, 2)
	assert.Equal(t, orders.PaymentFailed, h.notifier.outcomes[0].PaymentStatus)
	assert.Nil(t, h.notifier.outcomes[0].OrderStatus)
	assert.Equal(t, orders.PaymentCompleted, h.notifier.outcomes[1].PaymentStatus)
}

func TestSettleUnknownPayment(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Settle(context.Background(), Outcome{Gateway: "stripe", CorrelationID: "pi_missing", Kind: OutcomeSucceeded})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestSettleNotifierFailureKeepsPayment(t *testing.T) {
	h := newHarness()
	h.notifier.err = errBoom
	res := h.create(t)
	p, _ := h.store.Get(context.Background(), res.PaymentID)

	out := h.settle(t, p.GatewayCorrelationID, OutcomeSucceeded)
	assert.True(t, out.Applied)
	got, _ := h.store.Get(context.Background(), p.ID)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestSettleSecondCollectionIsRecordedOnItsOwnRow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	a, _ := h.store.Get(ctx, h.create(t).PaymentID)
	b, _ := h.store.Get(ctx, h.create(t).PaymentID)

	require.True(t, h.settle(t, a.GatewayCorrelationID, OutcomeSucceeded).Applied)
	res, err := h.svc.Settle(ctx, Outcome{Gateway: "stripe", CorrelationID: b.GatewayCorrelationID, GatewayPaymentID: "ch_2", Kind: OutcomeSucceeded})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, StatusFailed, res.Payment.Status)
	assert.Equal(t, ReasonDuplicateCollection, res.Payment.FailureReason)
	assert.Equal(t, "ch_2", res.Payment.GatewayPaymentID)

	entries, _ := h.store.Transactions(ctx, b.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, TxPayment, entries[1].Type)
	assert.Equal(t, TxSuccess, entries[1].Status)
	assert.Equal(t, "ch_2", entries[1].GatewayTransactionID)
	assert.Equal(t, b.Amount, entries[1].Amount)

	replay, err := h.svc.Settle(ctx, Outcome{Gateway: "stripe", CorrelationID: b.GatewayCorrelationID, GatewayPaymentID: "ch_2", Kind: OutcomeSucceeded})
	require.NoError(t, err)
	assert.False(t, replay.Applied)
	assert.Equal(t, 2, h.store.count(TxPayment, TxSuccess))

	first, _ := h.store.Get(ctx, a.ID)
	assert.Equal(t, StatusCompleted, first.Status)
	assert.Len(t, h.notifier.outcomes, 1)
}

func TestNextStatusTable(t *testing.T) {
	cases := []struct {
		cur  Status
		kind OutcomeKind
		to   Status
		ok   bool
	}{
		{StatusPending, OutcomeSucceeded, StatusCompleted, true},
		{StatusPending, OutcomeFailed, StatusFailed, true},
		{StatusPending, OutcomeCancelled, StatusFailed, true},
		{StatusPending, OutcomeProcessing, StatusProcessing, true},
		{StatusProcessing, OutcomeProcessing, StatusProcessing, false},
		{StatusProcessing, OutcomeSucceeded, StatusCompleted, true},
		{StatusFailed, OutcomeSucceeded, StatusCompleted, true},
		{StatusFailed, OutcomeFailed, StatusFailed, false},
		{StatusCompleted, OutcomeFailed, StatusCompleted, false},
		{StatusRefunded, OutcomeSucceeded, StatusRefunded, false},
		{StatusPartiallyRefunded, OutcomeProcessing, StatusPartiallyRefunded, false},
	}
	for _, c := range cases {
		to, ok := nextStatus(c.cur, c.kind)
		assert.Equal(t, c.ok, ok, "%s x %s", c.cur, c.kind)
		assert.Equal(t, c.to, to, "%s x %s", c.cur, c.kind)
	}
}

func completedPayment(t *testing.T, h *harness) Payment {
	t.Helper()
	res := h.create(t)
	p, _ := h.store.Get(context.Background(), res.PaymentID)
	return h.settle(t, p.GatewayCorrelationID, OutcomeSucceeded).Payment
}

func amt(s string) *money.Amount {
	a := money.MustParse(s)
	return &a
}

func TestRefundPartialThenRemainder(t *testing.T) {
	h := newHarness()
	p := completedPayment(t, h)
	ctx := context.Background()

	got, err := h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Amount: amt("50.00"), Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyRefunded, got.Status)
	assert.Equal(t, money.MustParse("50.00"), got.RefundedAmount)

	got, err = h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Reason: "rest"})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
	assert.Equal(t, got.Amount, got.RefundedAmount)
	assert.Equal(t, []money.Amount{money.MustParse("50.00"), money.MustParse("125.00")}, h.gw.refunds)

	_, err = h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Amount: amt("0.01"), Reason: "again"})
	assert.ErrorIs(t, err, ErrNotRefundable)

	last := h.notifier.outcomes[len(h.notifier.outcomes)-1]
	assert.Equal(t, orders.PaymentRefunded, last.PaymentStatus)
	require.NotNil(t, last.RefundedAmount)
	assert.Equal(t, money.MustParse("175.00"), *last.RefundedAmount)
}

func TestRefundAmountValidation(t *testing.T) {
	h := newHarness()
	p := completedPayment(t, h)
	ctx := context.Background()

	_, err := h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Amount: amt("175.01"), Reason: "x"})
	assert.ErrorIs(t, err, ErrInvalidRefundAmount)
	_, err = h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Amount: amt("0.00"), Reason: "x"})
	assert.ErrorIs(t, err, ErrInvalidRefundAmount)
	_, err = h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Amount: amt("1.00")})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, h.gw.refunds)
}

func TestRefundRetryReusesGatewayIdempotencyKey(t *testing.T) {
	h := newHarness()
	p := completedPayment(t, h)
	ctx := context.Background()

	h.gw.refundErr = errBoom
	_, err := h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Amount: amt("50.00"), Reason: "damaged"})
	assert.ErrorIs(t, err, ErrGateway)

	h.gw.refundErr = nil
	_, err = h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Amount: amt("50.00"), Reason: "damaged"})
	require.NoError(t, err)
	_, err = h.svc.Refund(ctx, RefundInput{PaymentID: p.ID, Amount: amt("50.00"), Reason: "more"})
	require.NoError(t, err)

	require.Len(t, h.gw.refundKeys, 3)
	assert.Equal(t, h.gw.refundKeys[0], h.gw.refundKeys[1])
	assert.NotEqual(t, h.gw.refundKeys[1], h.gw.refundKeys[2])
	assert.Equal(t, p.PaymentReference+"-refund-0-5000", h.gw.refundKeys[0])
	assert.Equal(t, p.PaymentReference+"-refund-5000-5000", h.gw.refundKeys[2])
}

func TestRefundRequiresSettledPayment(t *testing.T) {
	h := newHarness()
	res := h.create(t)
	_, err := h.svc.Refund(context.Background(), RefundInput{PaymentID: res.PaymentID, Reason: "x"})
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestRefundGatewayFailureLeavesBalance(t *testing.T) {
	h := newHarness()
	p := completedPayment(t, h)
	h.gw.refundErr = errBoom

	_, err := h.svc.Refund(context.Background(), RefundInput{PaymentID: p.ID, Reason: "x"})
	assert.ErrorIs(t, err, ErrGateway)
	got, _ := h.store.Get(context.Background(), p.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Zero(t, got.RefundedAmount)
	assert.Zero(t, h.store.count(TxRefund, TxSuccess))
}

type flakyApplier struct {
	calls int
	fails int
	err   error
}

func (f *flakyApplier) ApplyPaymentOutcome(context.Context, int64, orders.PaymentOutcome) error {
	f.calls++
	if f.calls <= f.fails {
		return f.err
	}
	return nil
}

func TestDirectNotifierRetries(t *testing.T) {
	a := &flakyApplier{fails: 2, err: errBoom}
	n := &DirectNotifier{Orders: a, Attempts: 3, Backoff: time.Millisecond, Log: zap.NewNop()}
	require.NoError(t, n.Notify(context.Background(), 1, orders.PaymentOutcome{PaymentStatus: orders.PaymentFailed}))
	assert.Equal(t, 3, a.calls)

	a = &flakyApplier{fails: 5, err: errBoom}
	n.Orders = a
	err := n.Notify(context.Background(), 1, orders.PaymentOutcome{PaymentStatus: orders.PaymentFailed})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, a.calls)
}

func TestDirectNotifierStopsOnMissingOrder(t *testing.T) {
	a := &flakyApplier{fails: 5, err: orders.ErrOrderNotFound}
	n := &DirectNotifier{Orders: a, Attempts: 3, Backoff: time.Millisecond, Log: zap.NewNop()}
	err := n.Notify(context.Background(), 1, orders.PaymentOutcome{PaymentStatus: orders.PaymentFailed})
	assert.True(t, errors.Is(err, orders.ErrOrderNotFound))
	assert.Equal(t, 1, a.calls)
}

func TestDirectNotifierHonoursContext(t *testing.T) {
	a := &flakyApplier{fails: 5, err: errBoom}
	n := &DirectNotifier{Orders: a, Attempts: 3, Backoff: time.Hour, Log: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := n.Notify(ctx, 1, orders.PaymentOutcome{PaymentStatus: orders.PaymentFailed})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, a.calls)
}

type capture struct{ msgs []kafka.Message }

func (c *capture) Publish(key, value []byte, headers ...kafka.Header) {
	c.msgs = append(c.msgs, kafka.Message{Key: key, Value: value, Headers: headers})
}

func TestKafkaNotifierPublishesEnvelope(t *testing.T) {
	c := &capture{}
	n := &KafkaNotifier{Events: c, ServiceName: "order-api"}
	refunded := money.MustParse("20.00")
	require.NoError(t, n.Notify(context.Background(), 42, orders.PaymentOutcome{
		PaymentStatus: orders.PaymentPartiallyRefunded, RefundedAmount: &refunded,
	}))

	require.Len(t, c.msgs, 1)
	assert.Equal(t, "42", string(c.msgs[0].Key))
	env, err := kafkax.UnmarshalEnvelope(c.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentRefunded, env.EventType)

	p, err := kafkax.UnwrapPayload[SettledPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.OrderID)
	assert.Equal(t, refunded, *p.Outcome.RefundedAmount)
}
