package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{user_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cached order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Event dedup: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cart hash: cart:{user_id} -> product_id => qty
	KeyCart = "cart:%s"

	// Admin dashboard snapshot
	KeyAdminStats = "stats:admin"

	// Stripe webhook replay guard: webhook:stripe:{event_id}
	KeyWebhookEvent = "webhook:stripe:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLCart        = 7 * 24 * time.Hour
	TTLAdminStats  = 60 * time.Second
	TTLWebhook     = 72 * time.Hour
)
