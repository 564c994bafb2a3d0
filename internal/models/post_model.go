package models

import "time"

type Post struct {
	ID             int64             `db:"id" json:"id"`
	UserID         int64             `db:"user_id" json:"user_id"`
	AccountID      int64             `db:"account_id" json:"account_id"`
	Caption        string            `db:"caption" json:"caption"`
	MediaURLs      []string          `db:"media_urls" json:"media_urls"`
	Metadata       map[string]string `db:"metadata" json:"metadata,omitempty"`
	Status         string            `db:"status" json:"status"`
	ScheduledAt    *time.Time        `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt    *time.Time        `db:"published_at" json:"published_at,omitempty"`
	PlatformPostID string            `db:"platform_post_id" json:"platform_post_id,omitempty"`
	ErrorMessage   string            `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

// PublishableStatuses are the statuses a post may be in when a publish
// attempt starts. Everything else is a Conflict.
var PublishableStatuses = []string{PostStatusDraft, PostStatusScheduled, PostStatusFailed}

type EngagementSnapshot struct {
	PostID      int64     `db:"post_id" json:"post_id"`
	Impressions int64     `db:"impressions" json:"impressions"`
	Reach       int64     `db:"reach" json:"reach"`
	Likes       int64     `db:"likes" json:"likes"`
	Comments    int64     `db:"comments" json:"comments"`
	Shares      int64     `db:"shares" json:"shares"`
	Saves       int64     `db:"saves" json:"saves"`
	FetchedAt   time.Time `db:"fetched_at" json:"fetched_at"`
}
