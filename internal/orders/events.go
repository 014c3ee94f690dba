package orders

import "github.com/ariefcatur/go-order-settlement/internal/money"

const (
	EventOrderCreated        = "OrderCreated"
	EventOrderConfirmed      = "OrderConfirmed"
	EventOrderDispatched     = "OrderDispatched"
	EventOrderDelivered      = "OrderDelivered"
	EventOrderCancelled      = "OrderCancelled"
	EventOrderPaymentUpdated = "OrderPaymentUpdated"
)

var transitionEvents = map[Status]string{
	StatusPending:        EventOrderCreated,
	StatusConfirmed:      EventOrderConfirmed,
	StatusOutForDelivery: EventOrderDispatched,
	StatusDelivered:      EventOrderDelivered,
	StatusCancelled:      EventOrderCancelled,
}

type LifecyclePayload struct {
	OrderID        int64         `json:"order_id"`
	OrderNumber    string        `json:"order_number"`
	CustomerID     int64         `json:"customer_id"`
	BusinessID     int64         `json:"business_id"`
	Status         Status        `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	TotalAmount    money.Amount  `json:"total_amount"`
	RefundedAmount money.Amount  `json:"refunded_amount"`
	Reason         string        `json:"reason,omitempty"`
}

func lifecyclePayload(o Order) LifecyclePayload {
	return LifecyclePayload{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		CustomerID:     o.CustomerID,
		BusinessID:     o.BusinessID,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		TotalAmount:    o.TotalAmount,
		RefundedAmount: o.RefundedAmount,
		Reason:         o.CancellationReason,
	}
}
