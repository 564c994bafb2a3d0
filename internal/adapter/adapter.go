package adapter

import (
	"context"
	"net/http"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
)

// Credential is the decrypted platform credential handed to an adapter.
// Refresh and expiry bookkeeping belong to the account layer; adapters
// only consume the token.
type Credential struct {
	AccountID   string
	AccessToken string
}

type PostContent struct {
	Text      string
	MediaURLs []string
	Metadata  map[string]string
}

// PublishResult carries the platform-side id of a live post. Failures are
// reported through the error return of Publish, already normalized to a
// single message; raw platform payloads never cross the adapter boundary.
type PublishResult struct {
	PlatformPostID string
	PublishedAt    time.Time
}

// Adapter is the per-platform publish protocol. Implementations must not
// retry internally: platform publish calls are not idempotent, so retry
// policy stays with the caller.
type Adapter interface {
	Platform() string
	Publish(ctx context.Context, cred Credential, content PostContent) (*PublishResult, error)
	ValidateCredential(ctx context.Context, cred Credential) bool
	FetchEngagement(ctx context.Context, cred Credential, platformPostID string) (*models.EngagementSnapshot, error)
}

// Registry resolves a platform name to its adapter. It is populated once
// at startup and read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *Registry) Lookup(platform string) (Adapter, bool) {
	a, ok := r.adapters[platform]
	return a, ok
}

func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
