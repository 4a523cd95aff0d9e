package domain

// SubscriptionAction is the desired end state expressed by an intent.
type SubscriptionAction string

const (
	ActionSubscribe   SubscriptionAction = "subscribe"
	ActionUnsubscribe SubscriptionAction = "unsubscribe"
)

// SubscriptionIntent is a queued, transient wish to (un)subscribe a
// mint's trade feed. Intents collapse to a per-mint final state before
// a batch is sent; they are at-most-once and idempotent upstream.
type SubscriptionIntent struct {
	Mint        string
	Action      SubscriptionAction
	EnqueueTime int64 // unix ms
}

// SubscriptionStatus is the durable state of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Subscription is the persisted subscription intent for a mint, used to
// recover intended state after a restart when auto-resubscribe is on.
type Subscription struct {
	Mint          string
	SubscribeTime int64 // unix ms
	Status        SubscriptionStatus
}
