package razorpaygw

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

type fakeAPI struct {
	orderData  map[string]interface{}
	refundID   string
	refundAmt  int
	orderResp  map[string]interface{}
	refundResp map[string]interface{}
	err        error
}

func (f *fakeAPI) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	f.orderData = data
	return f.orderResp, f.err
}

func (f *fakeAPI) Refund(paymentID string, amount int, _ map[string]interface{}) (map[string]interface{}, error) {
	f.refundID, f.refundAmt = paymentID, amount
	return f.refundResp, f.err
}

func TestCreateIntentUsesOrderID(t *testing.T) {
	api := &fakeAPI{orderResp: map[string]interface{}{"id": "order_Abc", "status": "created"}}
	g := &Gateway{api: api}

	intent, err := g.CreateIntent(context.Background(), payments.IntentRequest{
		Reference: "PAY-1-ABCDEF12", Amount: money.MustParse("175.00"), Currency: "inr",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_Abc", intent.CorrelationID)
	assert.Equal(t, "order_Abc", intent.ClientToken)
	assert.Equal(t, int64(17500), api.orderData["amount"])
	assert.Equal(t, "INR", api.orderData["currency"])
	assert.Equal(t, "PAY-1-ABCDEF12", api.orderData["receipt"])
}

func TestCreateIntentFailure(t *testing.T) {
	g := &Gateway{api: &fakeAPI{err: errors.New("BAD_REQUEST_ERROR")}}
	_, err := g.CreateIntent(context.Background(), payments.IntentRequest{Amount: 100, Currency: "INR"})
	assert.ErrorIs(t, err, payments.ErrGateway)

	g = &Gateway{api: &fakeAPI{orderResp: map[string]interface{}{}}}
	_, err = g.CreateIntent(context.Background(), payments.IntentRequest{Amount: 100, Currency: "INR"})
	assert.ErrorIs(t, err, payments.ErrGateway)
}

func TestRefundNeedsCapturedPayment(t *testing.T) {
	api := &fakeAPI{refundResp: map[string]interface{}{"id": "rfnd_1", "status": "processed"}}
	g := &Gateway{api: api}

	_, err := g.Refund(context.Background(), payments.RefundRequest{Amount: 100})
	assert.ErrorIs(t, err, payments.ErrGateway)

	rc, err := g.Refund(context.Background(), payments.RefundRequest{GatewayPaymentID: "pay_1", Amount: money.MustParse("25.50")})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", api.refundID)
	assert.Equal(t, 2550, api.refundAmt)
	assert.Equal(t, "rfnd_1", rc.GatewayRefundID)
}
