package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/conscious-collective/relay-social/internal/adapter"
	"github.com/conscious-collective/relay-social/internal/models"
)

// In-memory repository doubles. TransitionStatus mirrors the SQL
// conditional update so concurrency tests exercise the same guard the
// real repository provides.

type fakePostRepo struct {
	mu    sync.Mutex
	seq   int64
	posts map[int64]*models.Post
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{posts: make(map[int64]*models.Post)}
	for _, p := range posts {
		if p.ID > r.seq {
			r.seq = p.ID
		}
		cp := *p
		r.posts[p.ID] = &cp
	}
	return r
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *post
	cp.ID = r.seq
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.posts[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *post
	return &cp, nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, post := range r.posts {
		if post.UserID == userID {
			cp := *post
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[postID]
	return ok && post.UserID == userID, nil
}

func (r *fakePostRepo) GetDueScheduled(ctx context.Context, now time.Time) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.Post
	for _, post := range r.posts {
		if post.Status == models.PostStatusScheduled && post.ScheduledAt != nil && !post.ScheduledAt.After(now) {
			cp := *post
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (r *fakePostRepo) TransitionStatus(ctx context.Context, postID int64, from []string, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[postID]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if post.Status == status {
			post.Status = to
			post.ScheduledAt = nil
			post.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePostRepo) MarkPublished(ctx context.Context, postID int64, platformPostID string, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post := r.posts[postID]
	post.Status = models.PostStatusPublished
	post.PlatformPostID = platformPostID
	post.PublishedAt = &publishedAt
	post.ErrorMessage = ""
	post.UpdatedAt = time.Now()
	return nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, postID int64, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post := r.posts[postID]
	post.Status = models.PostStatusFailed
	post.ErrorMessage = errorMessage
	post.UpdatedAt = time.Now()
	return nil
}

func (r *fakePostRepo) UpdateContent(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.posts[post.ID]
	if stored.Status == models.PostStatusPublishing || stored.Status == models.PostStatusPublished {
		return fmt.Errorf("%w: post %d is no longer editable", models.ErrConflict, post.ID)
	}
	stored.Caption = post.Caption
	stored.MediaURLs = post.MediaURLs
	stored.Metadata = post.Metadata
	stored.Status = post.Status
	stored.ScheduledAt = post.ScheduledAt
	stored.ErrorMessage = ""
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *fakePostRepo) FailStuckPublishing(ctx context.Context, stuckSince time.Time, errorMessage string) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, post := range r.posts {
		if post.Status == models.PostStatusPublishing && post.UpdatedAt.Before(stuckSince) {
			post.Status = models.PostStatusFailed
			post.ErrorMessage = errorMessage
			post.UpdatedAt = time.Now()
			ids = append(ids, post.ID)
		}
	}
	return ids, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post, ok := r.posts[id]; ok && post.Status == models.PostStatusPublishing {
		return fmt.Errorf("%w: post %d is being published", models.ErrConflict, id)
	}
	delete(r.posts, id)
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	seq      int64
	accounts map[int64]*models.SocialAccount
}

func newFakeAccountRepo(accounts ...*models.SocialAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[int64]*models.SocialAccount)}
	for _, a := range accounts {
		if a.ID > r.seq {
			r.seq = a.ID
		}
		cp := *a
		r.accounts[a.ID] = &cp
	}
	return r
}

func (r *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *sa
	cp.ID = r.seq
	r.accounts[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sa, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *sa
	return &cp, nil
}

func (r *fakeAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, sa := range r.accounts {
		if sa.UserID == userID {
			cp := *sa
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListExpiringBetween(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, sa := range r.accounts {
		if sa.AccountStatus != models.AccountStatusActive {
			continue
		}
		if sa.TokenExpiresAt.After(initialTime) && sa.TokenExpiresAt.Before(finalTime) {
			cp := *sa
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sa, ok := r.accounts[accountID]
	return ok && sa.UserID == userID, nil
}

func (r *fakeAccountRepo) SetToken(ctx context.Context, accountID int64, sa *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.accounts[accountID]
	stored.AccessToken = sa.AccessToken
	stored.RefreshToken = sa.RefreshToken
	stored.TokenExpiresAt = sa.TokenExpiresAt
	return nil
}

func (r *fakeAccountRepo) SetStatus(ctx context.Context, accountID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[accountID].AccountStatus = status
	return nil
}

func (r *fakeAccountRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

type fakeAdapter struct {
	platform string

	mu            sync.Mutex
	publishCalls  int
	validateCalls int
	lastCred      adapter.Credential
	lastContent   adapter.PostContent

	validateOK    bool
	publishResult *adapter.PublishResult
	publishErr    error
	engagement    *models.EngagementSnapshot
	engagementErr error
}

func (f *fakeAdapter) Platform() string {
	return f.platform
}

func (f *fakeAdapter) Publish(ctx context.Context, cred adapter.Credential, content adapter.PostContent) (*adapter.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishCalls++
	f.lastCred = cred
	f.lastContent = content
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	return f.publishResult, nil
}

func (f *fakeAdapter) ValidateCredential(ctx context.Context, cred adapter.Credential) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls++
	f.lastCred = cred
	return f.validateOK
}

func (f *fakeAdapter) FetchEngagement(ctx context.Context, cred adapter.Credential, platformPostID string) (*models.EngagementSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.engagementErr != nil {
		return nil, f.engagementErr
	}
	return f.engagement, nil
}

func (f *fakeAdapter) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishCalls
}

type notifiedEvent struct {
	userID int64
	event  string
	data   interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, userID int64, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedEvent{userID: userID, event: event, data: data})
}

func (n *recordingNotifier) named(event string) []notifiedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifiedEvent
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}
