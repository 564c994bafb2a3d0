package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/transfer"
)

type fakePublisher struct {
	mu      sync.Mutex
	calls   []int64
	outcome *transfer.PublishOutcome
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, postID int64) (*transfer.PublishOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, postID)
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &transfer.PublishOutcome{Success: true}, nil
}

func (f *fakePublisher) FailStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newPostServiceFixture(t *testing.T) (PostService, *fakePostRepo, *fakePublisher) {
	posts := newFakePostRepo()
	accounts := newFakeAccountRepo(testAccount(t, "instagram"))
	publisher := &fakePublisher{}
	return NewPostService(posts, accounts, publisher), posts, publisher
}

func TestCreatePostDraft(t *testing.T) {
	svc, posts, publisher := newPostServiceFixture(t)

	post, outcome, err := svc.Create(context.Background(), 7, &transfer.PostCreation{
		AccountID: 1,
		Caption:   "my draft",
		MediaURLs: []string{"https://cdn.example.com/a.jpg"},
	})

	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	assert.Nil(t, post.ScheduledAt)
	assert.Equal(t, 0, publisher.callCount())

	stored, _ := posts.GetByID(context.Background(), post.ID)
	assert.Equal(t, "my draft", stored.Caption)
}

func TestCreatePostScheduled(t *testing.T) {
	svc, _, publisher := newPostServiceFixture(t)

	future := time.Now().Add(2 * time.Hour)
	post, outcome, err := svc.Create(context.Background(), 7, &transfer.PostCreation{
		AccountID:   1,
		Caption:     "later",
		MediaURLs:   []string{"https://cdn.example.com/a.jpg"},
		ScheduledAt: future.Format(time.RFC3339),
	})

	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	require.NotNil(t, post.ScheduledAt)
	assert.WithinDuration(t, future, *post.ScheduledAt, time.Second)
	assert.Equal(t, 0, publisher.callCount())
}

func TestCreatePostPastTimePublishesImmediately(t *testing.T) {
	svc, _, publisher := newPostServiceFixture(t)

	post, outcome, err := svc.Create(context.Background(), 7, &transfer.PostCreation{
		AccountID:   1,
		Caption:     "now",
		MediaURLs:   []string{"https://cdn.example.com/a.jpg"},
		ScheduledAt: time.Now().Add(-time.Minute).Format(time.RFC3339),
	})

	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, publisher.callCount())
	assert.Nil(t, post.ScheduledAt)
}

func TestCreatePostValidation(t *testing.T) {
	svc, _, _ := newPostServiceFixture(t)

	_, _, err := svc.Create(context.Background(), 7, &transfer.PostCreation{AccountID: 1})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, _, err = svc.Create(context.Background(), 7, &transfer.PostCreation{
		AccountID:   1,
		Caption:     "bad time",
		ScheduledAt: "tomorrow at noon",
	})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, _, err = svc.Create(context.Background(), 7, &transfer.PostCreation{
		AccountID: 42,
		Caption:   "ghost account",
	})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUpdatePostImmutableWhenPublished(t *testing.T) {
	svc, posts, _ := newPostServiceFixture(t)

	post := testPost(models.PostStatusPublished)
	postID, _ := posts.Create(context.Background(), nil, post)

	caption := "edited"
	_, _, err := svc.Update(context.Background(), 7, postID, &transfer.PostUpdate{Caption: &caption})
	assert.True(t, errors.Is(err, models.ErrConflict))

	post.Status = models.PostStatusPublishing
	publishingID, _ := posts.Create(context.Background(), nil, post)
	_, _, err = svc.Update(context.Background(), 7, publishingID, &transfer.PostUpdate{Caption: &caption})
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestUpdatePostReschedulePastPublishes(t *testing.T) {
	svc, posts, publisher := newPostServiceFixture(t)

	postID, _ := posts.Create(context.Background(), nil, testPost(models.PostStatusDraft))

	past := time.Now().Add(-time.Minute).Format(time.RFC3339)
	_, outcome, err := svc.Update(context.Background(), 7, postID, &transfer.PostUpdate{ScheduledAt: &past})

	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, 1, publisher.callCount())
}

func TestUpdatePostClearSchedule(t *testing.T) {
	svc, posts, publisher := newPostServiceFixture(t)

	scheduled := testPost(models.PostStatusScheduled)
	at := time.Now().Add(time.Hour)
	scheduled.ScheduledAt = &at
	postID, _ := posts.Create(context.Background(), nil, scheduled)

	empty := ""
	post, outcome, err := svc.Update(context.Background(), 7, postID, &transfer.PostUpdate{ScheduledAt: &empty})

	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	assert.Nil(t, post.ScheduledAt)
	assert.Equal(t, 0, publisher.callCount())
}

func TestUpdateFailedPostClearsError(t *testing.T) {
	svc, posts, _ := newPostServiceFixture(t)

	failed := testPost(models.PostStatusFailed)
	failed.ErrorMessage = "platform said no"
	postID, _ := posts.Create(context.Background(), nil, failed)

	caption := "second try"
	post, _, err := svc.Update(context.Background(), 7, postID, &transfer.PostUpdate{Caption: &caption})

	require.NoError(t, err)
	assert.Equal(t, "second try", post.Caption)
	assert.Empty(t, post.ErrorMessage)
	assert.Equal(t, models.PostStatusFailed, post.Status)
}

func TestRemovePost(t *testing.T) {
	svc, posts, _ := newPostServiceFixture(t)

	postID, _ := posts.Create(context.Background(), nil, testPost(models.PostStatusDraft))
	require.NoError(t, svc.Remove(context.Background(), 7, postID))

	stored, _ := posts.GetByID(context.Background(), postID)
	assert.Nil(t, stored)
}

func TestRemovePostWhilePublishing(t *testing.T) {
	svc, posts, _ := newPostServiceFixture(t)

	postID, _ := posts.Create(context.Background(), nil, testPost(models.PostStatusPublishing))

	err := svc.Remove(context.Background(), 7, postID)
	assert.True(t, errors.Is(err, models.ErrConflict))

	stored, _ := posts.GetByID(context.Background(), postID)
	assert.NotNil(t, stored)
}

func TestPostOwnershipIsScopedToUser(t *testing.T) {
	svc, posts, _ := newPostServiceFixture(t)

	postID, _ := posts.Create(context.Background(), nil, testPost(models.PostStatusDraft))

	_, err := svc.PostInfo(context.Background(), postID, 99)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = svc.PublishNow(context.Background(), 99, postID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	err = svc.Remove(context.Background(), 99, postID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

// staleReadPostRepo serves one pre-recorded snapshot from GetByID so a
// test can interleave a status flip between a service's guard read and
// its conditional write.
type staleReadPostRepo struct {
	*fakePostRepo
	mu    sync.Mutex
	stale *models.Post
}

func (r *staleReadPostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stale != nil && r.stale.ID == id {
		cp := *r.stale
		r.stale = nil
		return &cp, nil
	}
	return r.fakePostRepo.GetByID(ctx, id)
}

func TestUpdatePostLosesRaceWithPublish(t *testing.T) {
	draft := testPost(models.PostStatusDraft)
	posts := newFakePostRepo(draft)
	stale := *draft
	repo := &staleReadPostRepo{fakePostRepo: posts, stale: &stale}

	// The row is published after the edit's guard read but before its write.
	require.NoError(t, posts.MarkPublished(context.Background(), draft.ID, "ig-55", time.Now()))

	svc := NewPostService(repo, newFakeAccountRepo(testAccount(t, "instagram")), &fakePublisher{})

	caption := "rewritten"
	_, _, err := svc.Update(context.Background(), 7, draft.ID, &transfer.PostUpdate{Caption: &caption})
	require.ErrorIs(t, err, models.ErrConflict)

	stored, _ := posts.GetByID(context.Background(), draft.ID)
	assert.Equal(t, models.PostStatusPublished, stored.Status)
	assert.Equal(t, "caption", stored.Caption)
	assert.Equal(t, "ig-55", stored.PlatformPostID)
}

func TestRemovePostLosesRaceWithPublish(t *testing.T) {
	draft := testPost(models.PostStatusDraft)
	posts := newFakePostRepo(draft)
	stale := *draft
	repo := &staleReadPostRepo{fakePostRepo: posts, stale: &stale}

	ok, err := posts.TransitionStatus(context.Background(), draft.ID, models.PublishableStatuses, models.PostStatusPublishing)
	require.NoError(t, err)
	require.True(t, ok)

	svc := NewPostService(repo, newFakeAccountRepo(testAccount(t, "instagram")), &fakePublisher{})

	err = svc.Remove(context.Background(), 7, draft.ID)
	require.ErrorIs(t, err, models.ErrConflict)

	stored, _ := posts.GetByID(context.Background(), draft.ID)
	require.NotNil(t, stored)
	assert.Equal(t, models.PostStatusPublishing, stored.Status)
}
