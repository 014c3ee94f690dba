package orders

import (
	"time"

	"github.com/ariefcatur/go-order-settlement/internal/money"
)

type Order struct {
	ID                       int64            `json:"id"`
	OrderNumber              string           `json:"order_number"`
	CustomerID               int64            `json:"customer_id"`
	BusinessID               int64            `json:"business_id"`
	OrderType                OrderType        `json:"order_type"`
	DeliveryType             DeliveryType     `json:"delivery_type"`
	Status                   Status           `json:"status"`
	PaymentStatus            PaymentStatus    `json:"payment_status"`
	Subtotal                 money.Amount     `json:"subtotal"`
	TaxAmount                money.Amount     `json:"tax_amount"`
	DiscountAmount           money.Amount     `json:"discount_amount"`
	DeliveryCharges          money.Amount     `json:"delivery_charges"`
	TotalAmount              money.Amount     `json:"total_amount"`
	RefundedAmount           money.Amount     `json:"refunded_amount"`
	SpecialInstructions      string           `json:"special_instructions,omitempty"`
	ScheduledAt              *time.Time       `json:"scheduled_at,omitempty"`
	ConfirmedAt              *time.Time       `json:"confirmed_at,omitempty"`
	DispatchedAt             *time.Time       `json:"dispatched_at,omitempty"`
	DeliveredAt              *time.Time       `json:"delivered_at,omitempty"`
	CancelledAt              *time.Time       `json:"cancelled_at,omitempty"`
	CancellationReason       string           `json:"cancellation_reason,omitempty"`
	AssignedDeliveryPersonID *int64           `json:"assigned_delivery_person_id,omitempty"`
	CreatedAt                time.Time        `json:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at"`
	Items                    []Item           `json:"items,omitempty"`
	DeliveryAddress          *DeliveryAddress `json:"delivery_address,omitempty"`
}

type Item struct {
	ID             int64        `json:"id"`
	OrderID        int64        `json:"order_id"`
	ProductID      int64        `json:"product_id"`
	ProductName    string       `json:"product_name"`
	ProductSKU     string       `json:"product_sku"`
	Unit           string       `json:"unit"`
	Quantity       int          `json:"quantity"`
	UnitPrice      money.Amount `json:"unit_price"`
	DiscountAmount money.Amount `json:"discount_amount"`
	TotalPrice     money.Amount `json:"total_price"`
	Status         ItemStatus   `json:"status"`
}

type DeliveryAddress struct {
	RecipientName  string   `json:"recipient_name"`
	RecipientPhone string   `json:"recipient_phone"`
	RecipientEmail string   `json:"recipient_email,omitempty"`
	AddressLine1   string   `json:"address_line1"`
	AddressLine2   string   `json:"address_line2,omitempty"`
	City           string   `json:"city"`
	State          string   `json:"state"`
	Pincode        string   `json:"pincode"`
	Landmark       string   `json:"landmark,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}

// TrackingEvent is one row of an order's append-only status history.
type TrackingEvent struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order_id"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
	ActorID     *int64    `json:"actor_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusView is the cached shape served by the status endpoint.
type StatusView struct {
	OrderID       int64         `json:"order_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Summary is the read-only view the payment side prices against.
type Summary struct {
	OrderID       int64         `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	CustomerID    int64         `json:"customer_id"`
	BusinessID    int64         `json:"business_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TotalAmount   money.Amount  `json:"total_amount"`
}

// PaymentOutcome is what the settlement side reports back. OrderStatus is
// only set when the outcome should move the order (success confirms it).
type PaymentOutcome struct {
	OrderStatus    *Status       `json:"order_status,omitempty"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	RefundedAmount *money.Amount `json:"refunded_amount,omitempty"`
	PaymentRef     string        `json:"payment_reference,omitempty"`
}

type CreateOrderInput struct {
	CustomerID          int64                 `json:"customer_id"`
	BusinessID          int64                 `json:"business_id"`
	OrderType           OrderType             `json:"order_type"`
	DeliveryType        DeliveryType          `json:"delivery_type"`
	Items               []ItemInput           `json:"items"`
	Subtotal            money.Amount          `json:"subtotal"`
	TaxAmount           money.Amount          `json:"tax_amount"`
	DiscountAmount      money.Amount          `json:"discount_amount"`
	DeliveryCharges     money.Amount          `json:"delivery_charges"`
	TotalAmount         money.Amount          `json:"total_amount"`
	SpecialInstructions string                `json:"special_instructions"`
	ScheduledAt         *time.Time            `json:"scheduled_at"`
	DeliveryAddress     *DeliveryAddressInput `json:"delivery_address"`
}

type ItemInput struct {
	ProductID      int64        `json:"product_id"`
	ProductName    string       `json:"product_name"`
	ProductSKU     string       `json:"product_sku"`
	Unit           string       `json:"unit"`
	Quantity       int          `json:"quantity"`
	UnitPrice      money.Amount `json:"unit_price"`
	DiscountAmount money.Amount `json:"discount_amount"`
	TotalPrice     money.Amount `json:"total_price"`
}

type DeliveryAddressInput = DeliveryAddress

// Filter narrows order listings. Zero Status means any.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
