package transfer

type SubscriptionCreation struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// SubscriptionCreated is the only response shape that ever carries the
// signing secret. Subsequent reads return the subscription without it.
type SubscriptionCreated struct {
	ID      int64    `json:"id"`
	URL     string   `json:"url"`
	Events  []string `json:"events"`
	Secret  string   `json:"secret"`
	Enabled bool     `json:"enabled"`
}

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PostEvent is the stable projection of a post carried in webhook
// payloads. It deliberately exposes less than the internal record.
type PostEvent struct {
	PostID         int64  `json:"post_id"`
	AccountID      int64  `json:"account_id"`
	Platform       string `json:"platform"`
	Status         string `json:"status"`
	PlatformPostID string `json:"platform_post_id,omitempty"`
	PublishedAt    string `json:"published_at,omitempty"`
	Error          string `json:"error,omitempty"`
}

type AccountEvent struct {
	AccountID int64  `json:"account_id"`
	Platform  string `json:"platform"`
	Username  string `json:"username,omitempty"`
	Status    string `json:"status"`
}
