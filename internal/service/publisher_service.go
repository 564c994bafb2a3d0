package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/adapter"
	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/repository"
	"github.com/conscious-collective/relay-social/internal/transfer"
	"github.com/conscious-collective/relay-social/pkg/utils"
)

// Notifier receives domain events for webhook fan-out. Implementations
// must never block or surface errors into the publish path.
type Notifier interface {
	Notify(ctx context.Context, userID int64, event string, data interface{})
}

type PublisherService interface {
	Publish(ctx context.Context, postID int64) (*transfer.PublishOutcome, error)
	FailStuck(ctx context.Context, olderThan time.Duration) (int, error)
}

type publisherService struct {
	cfg      config.Config
	pr       repository.PostRepository
	ac       repository.SocialAccountRepository
	registry *adapter.Registry
	notifier Notifier
}

func NewPublisherService(
	cfg config.Config,
	pr repository.PostRepository,
	ac repository.SocialAccountRepository,
	registry *adapter.Registry,
	notifier Notifier) PublisherService {
	return &publisherService{
		cfg:      cfg,
		pr:       pr,
		ac:       ac,
		registry: registry,
		notifier: notifier,
	}
}

// Publish runs one publish attempt for one post. The conditional flip to
// publishing is the mutual-exclusion point: of two concurrent callers,
// exactly one proceeds and the other gets ErrConflict with no side
// effect. After the flip the post always ends in published or failed.
func (s *publisherService) Publish(ctx context.Context, postID int64) (*transfer.PublishOutcome, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: post %d", models.ErrNotFound, postID)
	}

	ok, err := s.pr.TransitionStatus(ctx, postID, models.PublishableStatuses, models.PostStatusPublishing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: post %d is not in a publishable status", models.ErrConflict, postID)
	}

	return s.attempt(ctx, post), nil
}

// attempt runs the publish sequence after the status flip. Every exit
// path lands the post in a terminal status; a post is never left in
// publishing by a completed attempt.
func (s *publisherService) attempt(ctx context.Context, post *models.Post) (outcome *transfer.PublishOutcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during publish", "post_id", post.ID, "panic", r)
			outcome = s.fail(ctx, post, nil, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if len(post.MediaURLs) == 0 {
		return s.fail(ctx, post, nil, "post has no media attached")
	}

	account, err := s.ac.GetByID(ctx, post.AccountID)
	if err != nil {
		return s.fail(ctx, post, nil, fmt.Sprintf("failed to resolve account: %v", err))
	}
	if account == nil {
		return s.fail(ctx, post, nil, fmt.Sprintf("account %d not found", post.AccountID))
	}

	platformAdapter, ok := s.registry.Lookup(account.Platform)
	if !ok {
		return s.fail(ctx, post, account, fmt.Sprintf("%v: %s", models.ErrUnsupportedPlatform, account.Platform))
	}

	accessToken, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return s.failCredential(ctx, post, account, "Invalid account credentials: unreadable access token")
	}

	cred := adapter.Credential{
		AccountID:   account.AccountID,
		AccessToken: accessToken,
	}

	if !platformAdapter.ValidateCredential(ctx, cred) {
		return s.failCredential(ctx, post, account, "Invalid account credentials")
	}

	content := adapter.PostContent{
		Text:      post.Caption,
		MediaURLs: post.MediaURLs,
		Metadata:  post.Metadata,
	}

	result, err := platformAdapter.Publish(ctx, cred, content)
	if err != nil {
		return s.fail(ctx, post, account, err.Error())
	}

	if err := s.pr.MarkPublished(ctx, post.ID, result.PlatformPostID, result.PublishedAt); err != nil {
		slog.Error("failed to record published post", "post_id", post.ID, "error", err)
		return &transfer.PublishOutcome{Success: false, Error: err.Error()}
	}

	s.notifier.Notify(ctx, post.UserID, models.EventPostPublished, transfer.PostEvent{
		PostID:         post.ID,
		AccountID:      post.AccountID,
		Platform:       account.Platform,
		Status:         models.PostStatusPublished,
		PlatformPostID: result.PlatformPostID,
		PublishedAt:    result.PublishedAt.UTC().Format(time.RFC3339),
	})

	return &transfer.PublishOutcome{Success: true}
}

func (s *publisherService) fail(ctx context.Context, post *models.Post, account *models.SocialAccount, message string) *transfer.PublishOutcome {
	if err := s.pr.MarkFailed(ctx, post.ID, message); err != nil {
		slog.Error("failed to record publish failure", "post_id", post.ID, "error", err)
	}

	event := transfer.PostEvent{
		PostID:    post.ID,
		AccountID: post.AccountID,
		Status:    models.PostStatusFailed,
		Error:     message,
	}
	if account != nil {
		event.Platform = account.Platform
	}
	s.notifier.Notify(ctx, post.UserID, models.EventPostFailed, event)

	return &transfer.PublishOutcome{Success: false, Error: message}
}

// failCredential is the invalid-credential variant: the post fails the
// same way, and the owning account additionally raises account.expired.
func (s *publisherService) failCredential(ctx context.Context, post *models.Post, account *models.SocialAccount, message string) *transfer.PublishOutcome {
	outcome := s.fail(ctx, post, account, message)

	s.notifier.Notify(ctx, post.UserID, models.EventAccountExpired, transfer.AccountEvent{
		AccountID: account.ID,
		Platform:  account.Platform,
		Username:  account.AccountUsername,
		Status:    models.AccountStatusExpired,
	})

	return outcome
}

// FailStuck moves posts abandoned in publishing (interrupted process,
// lost network) to failed so they become manually retryable. Returns how
// many posts were swept.
func (s *publisherService) FailStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	const message = "publishing timed out; the platform call may or may not have completed"

	ids, err := s.pr.FailStuckPublishing(ctx, time.Now().Add(-olderThan), message)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		post, err := s.pr.GetByID(ctx, id)
		if err != nil || post == nil {
			slog.Info("swept stuck post no longer readable", "post_id", id)
			continue
		}
		s.notifier.Notify(ctx, post.UserID, models.EventPostFailed, transfer.PostEvent{
			PostID:    post.ID,
			AccountID: post.AccountID,
			Status:    models.PostStatusFailed,
			Error:     message,
		})
	}

	return len(ids), nil
}
