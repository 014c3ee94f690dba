package orders

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusOutForDelivery: true, StatusCancelled: true},
	StatusOutForDelivery: {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// SourcesOf lists every status that may move to `to`.
func SourcesOf(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusConfirmed, StatusOutForDelivery, StatusDelivered, StatusCancelled} {
		if validNext[from][to] {
			out = append(out, from)
		}
	}
	return out
}

func (s Status) Terminal() bool { return s == StatusDelivered || s == StatusCancelled }

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// Settled reports whether money has been collected for the order at some point.
func (p PaymentStatus) Settled() bool {
	return p == PaymentCompleted || p == PaymentRefunded || p == PaymentPartiallyRefunded
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemConfirmed ItemStatus = "CONFIRMED"
	ItemDelivered ItemStatus = "DELIVERED"
	ItemCancelled ItemStatus = "CANCELLED"
)

type OrderType string

const (
	OrderTypeOneTime      OrderType = "ONE_TIME"
	OrderTypeSubscription OrderType = "SUBSCRIPTION"
)

type DeliveryType string

const (
	DeliveryStandard  DeliveryType = "STANDARD"
	DeliveryExpress   DeliveryType = "EXPRESS"
	DeliveryScheduled DeliveryType = "SCHEDULED"
)
