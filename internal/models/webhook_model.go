package models

import "time"

type WebhookSubscription struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	URL       string    `db:"url" json:"url"`
	Events    []string  `db:"events" json:"events"`
	Secret    string    `db:"secret" json:"-"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WebhookDelivery is the append-style audit record for one outbound
// notification. Rows are created pending and only ever gain attempt
// outcomes; the payload snapshot is never rewritten.
type WebhookDelivery struct {
	ID             int64      `db:"id" json:"id"`
	SubscriptionID int64      `db:"subscription_id" json:"subscription_id"`
	Event          string     `db:"event" json:"event"`
	Payload        []byte     `db:"payload" json:"payload"`
	Status         string     `db:"status" json:"status"`
	Attempts       int        `db:"attempts" json:"attempts"`
	LastError      string     `db:"last_error" json:"last_error,omitempty"`
	LastAttemptAt  *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

const (
	EventPostPublished    = "post.published"
	EventPostFailed       = "post.failed"
	EventAccountConnected = "account.connected"
	EventAccountExpired   = "account.expired"
)

// KnownEvents lists every event name a subscription may filter on.
var KnownEvents = []string{
	EventPostPublished,
	EventPostFailed,
	EventAccountConnected,
	EventAccountExpired,
}
