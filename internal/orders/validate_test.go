package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-settlement/internal/money"
)

func validInput() CreateOrderInput {
	return CreateOrderInput{
		CustomerID:   7,
		BusinessID:   3,
		OrderType:    OrderTypeOneTime,
		DeliveryType: DeliveryStandard,
		Items: []ItemInput{
			{ProductID: 1, ProductName: "Milk", Unit: "L", Quantity: 2, UnitPrice: money.MustParse("50.00"), TotalPrice: money.MustParse("100.00")},
			{ProductID: 2, ProductName: "Bread", Unit: "pc", Quantity: 1, UnitPrice: money.MustParse("50.00"), TotalPrice: money.MustParse("50.00")},
		},
		Subtotal:        money.MustParse("150.00"),
		TaxAmount:       money.MustParse("15.00"),
		DeliveryCharges: money.MustParse("10.00"),
		TotalAmount:     money.MustParse("175.00"),
		DeliveryAddress: &DeliveryAddress{
			RecipientName:  "A",
			RecipientPhone: "9999999999",
			AddressLine1:   "1 Main St",
			City:           "Pune",
			State:          "MH",
			Pincode:        "411001",
		},
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
	assert.ErrorIs(t, err, ErrOrderValidation)
	return ve.Field
}

func TestValidateAcceptsConsistentTotals(t *testing.T) {
	require.NoError(t, Validate(validInput(), time.Now()))
}

func TestValidateRejectsWrongGrandTotal(t *testing.T) {
	in := validInput()
	in.TotalAmount = money.MustParse("170.00")
	assert.Equal(t, "total_amount", fieldOf(t, Validate(in, time.Now())))
}

func TestValidateRuleOrder(t *testing.T) {
	// A bad line total is reported before the subtotal and total mismatches it causes.
	in := validInput()
	in.Items[0].TotalPrice = money.MustParse("90.00")
	in.TotalAmount = money.MustParse("1.00")
	assert.Equal(t, "items[0].total_price", fieldOf(t, Validate(in, time.Now())))

	in = validInput()
	in.Subtotal = money.MustParse("140.00")
	assert.Equal(t, "subtotal", fieldOf(t, Validate(in, time.Now())))
}

func TestValidateItemDiscount(t *testing.T) {
	in := validInput()
	in.Items[0].DiscountAmount = money.MustParse("5.00")
	in.Items[0].TotalPrice = money.MustParse("95.00")
	in.Subtotal = money.MustParse("145.00")
	in.TotalAmount = money.MustParse("170.00")
	require.NoError(t, Validate(in, time.Now()))
}

func TestValidateScheduledInPast(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	in := validInput()
	in.DeliveryType = DeliveryScheduled
	in.ScheduledAt = &past
	assert.Equal(t, "scheduled_at", fieldOf(t, Validate(in, now)))

	future := now.Add(time.Hour)
	in.ScheduledAt = &future
	assert.NoError(t, Validate(in, now))
}

func TestValidateShape(t *testing.T) {
	cases := map[string]func(*CreateOrderInput){
		"customer_id":                    func(in *CreateOrderInput) { in.CustomerID = 0 },
		"items":                          func(in *CreateOrderInput) { in.Items = nil },
		"items[1].quantity":              func(in *CreateOrderInput) { in.Items[1].Quantity = 0 },
		"delivery_address":               func(in *CreateOrderInput) { in.DeliveryAddress = nil },
		"delivery_address.city":          func(in *CreateOrderInput) { in.DeliveryAddress.City = " " },
		"order_type":                     func(in *CreateOrderInput) { in.OrderType = "WEEKLY" },
		"scheduled_at":                   func(in *CreateOrderInput) { in.DeliveryType = DeliveryScheduled },
		"items[0].unit_price":            func(in *CreateOrderInput) { in.Items[0].UnitPrice = 0 },
		"delivery_address.pincode":       func(in *CreateOrderInput) { in.DeliveryAddress.Pincode = "" },
		"delivery_address.address_line1": func(in *CreateOrderInput) { in.DeliveryAddress.AddressLine1 = "" },
	}
	for want, mutate := range cases {
		t.Run(want, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			assert.Equal(t, want, fieldOf(t, Validate(in, time.Now())))
		})
	}
}

func TestComputeTotalExact(t *testing.T) {
	got := ComputeTotal(money.MustParse("0.10"), money.MustParse("0.20"), money.MustParse("0.00"), money.MustParse("0.00"))
	assert.Equal(t, money.MustParse("0.30"), got)
}

func TestValidateRejectsFullyDiscountedLine(t *testing.T) {
	in := validInput()
	in.Items[1].DiscountAmount = money.MustParse("50.00")
	in.Items[1].TotalPrice = 0
	in.Subtotal = money.MustParse("100.00")
	in.TotalAmount = money.MustParse("125.00")
	assert.Equal(t, "items[1].total_price", fieldOf(t, Validate(in, time.Now())))

	in.Items[1].DiscountAmount = money.MustParse("60.00")
	in.Items[1].TotalPrice = money.MustParse("-10.00")
	in.Subtotal = money.MustParse("90.00")
	in.TotalAmount = money.MustParse("115.00")
	assert.Equal(t, "items[1].total_price", fieldOf(t, Validate(in, time.Now())))
}

func TestValidateRejectsNonPositiveGrandTotal(t *testing.T) {
	in := validInput()
	in.DiscountAmount = money.MustParse("175.00")
	in.TotalAmount = 0
	assert.Equal(t, "total_amount", fieldOf(t, Validate(in, time.Now())))

	in.DiscountAmount = money.MustParse("200.00")
	in.TotalAmount = money.MustParse("-25.00")
	assert.Equal(t, "total_amount", fieldOf(t, Validate(in, time.Now())))
}
