package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-settlement/internal/money"
)

// Validate checks a creation request. Shape checks run first, then the
// monetary rules in a fixed order: line totals, subtotal, grand total,
// schedule. The first failure is returned.
func Validate(in CreateOrderInput, now time.Time) error {
	if err := validateShape(in); err != nil {
		return err
	}

	for i, it := range in.Items {
		want := it.UnitPrice.Times(it.Quantity) - it.DiscountAmount
		if it.TotalPrice != want {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].total_price", i),
				Reason: fmt.Sprintf("got %s, want %s", it.TotalPrice, want),
			}
		}
		if it.TotalPrice <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].total_price", i), Reason: "discount leaves nothing to pay"}
		}
	}

	var sum money.Amount
	for _, it := range in.Items {
		sum += it.TotalPrice
	}
	if in.Subtotal != sum {
		return &ValidationError{Field: "subtotal", Reason: fmt.Sprintf("got %s, items sum to %s", in.Subtotal, sum)}
	}

	want := ComputeTotal(in.Subtotal, in.TaxAmount, in.DeliveryCharges, in.DiscountAmount)
	if in.TotalAmount != want {
		return &ValidationError{Field: "total_amount", Reason: fmt.Sprintf("got %s, want %s", in.TotalAmount, want)}
	}
	if in.TotalAmount <= 0 {
		return &ValidationError{Field: "total_amount", Reason: "must be positive"}
	}

	if in.ScheduledAt != nil && in.ScheduledAt.Before(now) {
		return &ValidationError{Field: "scheduled_at", Reason: "must not be in the past"}
	}
	return nil
}

// ComputeTotal is the one place the grand-total formula lives.
func ComputeTotal(subtotal, tax, delivery, discount money.Amount) money.Amount {
	return subtotal + tax + delivery - discount
}

func validateShape(in CreateOrderInput) error {
	switch {
	case in.CustomerID <= 0:
		return &ValidationError{Field: "customer_id", Reason: "required"}
	case in.BusinessID <= 0:
		return &ValidationError{Field: "business_id", Reason: "required"}
	case in.OrderType != OrderTypeOneTime && in.OrderType != OrderTypeSubscription:
		return &ValidationError{Field: "order_type", Reason: fmt.Sprintf("unknown value %q", in.OrderType)}
	case in.DeliveryType != DeliveryStandard && in.DeliveryType != DeliveryExpress && in.DeliveryType != DeliveryScheduled:
		return &ValidationError{Field: "delivery_type", Reason: fmt.Sprintf("unknown value %q", in.DeliveryType)}
	case len(in.Items) == 0:
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	case in.TaxAmount < 0 || in.DiscountAmount < 0 || in.DeliveryCharges < 0:
		return &ValidationError{Field: "amounts", Reason: "tax, discount and delivery charges must not be negative"}
	case in.DeliveryType == DeliveryScheduled && in.ScheduledAt == nil:
		return &ValidationError{Field: "scheduled_at", Reason: "required for SCHEDULED delivery"}
	}

	for i, it := range in.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		switch {
		case it.ProductID <= 0:
			return &ValidationError{Field: field("product_id"), Reason: "required"}
		case strings.TrimSpace(it.ProductName) == "":
			return &ValidationError{Field: field("product_name"), Reason: "required"}
		case it.Quantity <= 0:
			return &ValidationError{Field: field("quantity"), Reason: "must be positive"}
		case it.UnitPrice <= 0:
			return &ValidationError{Field: field("unit_price"), Reason: "must be positive"}
		case it.DiscountAmount < 0:
			return &ValidationError{Field: field("discount_amount"), Reason: "must not be negative"}
		}
	}

	a := in.DeliveryAddress
	if a == nil {
		return &ValidationError{Field: "delivery_address", Reason: "required"}
	}
	for name, v := range map[string]string{
		"recipient_name":  a.RecipientName,
		"recipient_phone": a.RecipientPhone,
		"address_line1":   a.AddressLine1,
		"city":            a.City,
		"state":           a.State,
		"pincode":         a.Pincode,
	} {
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: "delivery_address." + name, Reason: "required"}
		}
	}
	return nil
}
