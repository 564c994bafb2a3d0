package transfer

type PostCreation struct {
	AccountID   int64             `json:"account_id"`
	Caption     string            `json:"caption"`
	MediaURLs   []string          `json:"media_urls"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ScheduledAt string            `json:"scheduled_at,omitempty"`
}

// PostUpdate carries partial edits. Nil fields are left untouched; an
// empty ScheduledAt pointer clears the schedule back to draft.
type PostUpdate struct {
	Caption     *string            `json:"caption,omitempty"`
	MediaURLs   *[]string          `json:"media_urls,omitempty"`
	Metadata    *map[string]string `json:"metadata,omitempty"`
	ScheduledAt *string            `json:"scheduled_at,omitempty"`
}

type PublishOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
