package redisx

import "time"

const (
	// Create-order idempotency: idem:order:create:{Idempotency-Key} -> order id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Order status cache: order_status:{order_id} -> StatusView JSON
	KeyOrderStatus = "order_status:%s"

	// Webhook dedup: dedup:webhook:{gateway}:{event_id}
	KeyWebhookDedup = "dedup:webhook:%s:%s"

	// Consumer dedup: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
