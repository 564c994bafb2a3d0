package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/repository"
	"github.com/conscious-collective/relay-social/internal/transfer"
)

type PostService interface {
	Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, *transfer.PublishOutcome, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Update(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) (*models.Post, *transfer.PublishOutcome, error)
	Remove(ctx context.Context, userID, postID int64) error
	PublishNow(ctx context.Context, userID, postID int64) (*transfer.PublishOutcome, error)
}

type postService struct {
	pr        repository.PostRepository
	ac        repository.SocialAccountRepository
	publisher PublisherService
}

func NewPostService(
	pr repository.PostRepository,
	ac repository.SocialAccountRepository,
	publisher PublisherService) PostService {
	return &postService{
		pr:        pr,
		ac:        ac,
		publisher: publisher,
	}
}

// Create writes the post and resolves its initial status from the
// schedule time: absent means draft, future means scheduled, past or
// now means a synchronous publish before returning. The last case keeps
// "schedule for now" from sitting a full poll interval.
func (s *postService) Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, *transfer.PublishOutcome, error) {
	if pc == nil {
		return nil, nil, fmt.Errorf("%w: post creation data is nil", models.ErrValidation)
	}
	if pc.Caption == "" {
		return nil, nil, fmt.Errorf("%w: caption cannot be empty", models.ErrValidation)
	}
	if pc.AccountID == 0 {
		return nil, nil, fmt.Errorf("%w: account_id is required", models.ErrValidation)
	}

	exists, err := s.ac.CheckByUserID(ctx, pc.AccountID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, fmt.Errorf("%w: social account %d", models.ErrNotFound, pc.AccountID)
	}

	status := models.PostStatusDraft
	var scheduledAt *time.Time
	publishImmediately := false

	if pc.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, pc.ScheduledAt)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid scheduled_at format: %v", models.ErrValidation, err)
		}
		if parsed.After(time.Now()) {
			status = models.PostStatusScheduled
			scheduledAt = &parsed
		} else {
			publishImmediately = true
		}
	}

	post := &models.Post{
		UserID:      userID,
		AccountID:   pc.AccountID,
		Caption:     pc.Caption,
		MediaURLs:   pc.MediaURLs,
		Metadata:    pc.Metadata,
		Status:      status,
		ScheduledAt: scheduledAt,
	}

	postID, err := s.pr.Create(ctx, nil, post)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating post: %w", err)
	}

	var outcome *transfer.PublishOutcome
	if publishImmediately {
		outcome, err = s.publisher.Publish(ctx, postID)
		if err != nil {
			slog.Info(err.Error())
			outcome = &transfer.PublishOutcome{Success: false, Error: err.Error()}
		}
	}

	created, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, outcome, err
	}
	return created, outcome, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Update applies partial edits. Published and in-flight posts are
// immutable, which also keeps edits from racing the publisher.
func (s *postService) Update(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) (*models.Post, *transfer.PublishOutcome, error) {
	if pu == nil {
		return nil, nil, fmt.Errorf("%w: post update data is nil", models.ErrValidation)
	}

	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, nil, err
	}

	if post.Status == models.PostStatusPublished || post.Status == models.PostStatusPublishing {
		return nil, nil, fmt.Errorf("%w: post %d is %s and cannot be edited", models.ErrConflict, postID, post.Status)
	}

	if pu.Caption != nil {
		if *pu.Caption == "" {
			return nil, nil, fmt.Errorf("%w: caption cannot be empty", models.ErrValidation)
		}
		post.Caption = *pu.Caption
	}
	if pu.MediaURLs != nil {
		post.MediaURLs = *pu.MediaURLs
	}
	if pu.Metadata != nil {
		post.Metadata = *pu.Metadata
	}

	publishImmediately := false
	if pu.ScheduledAt != nil {
		switch {
		case *pu.ScheduledAt == "":
			post.Status = models.PostStatusDraft
			post.ScheduledAt = nil
		default:
			parsed, err := time.Parse(time.RFC3339, *pu.ScheduledAt)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: invalid scheduled_at format: %v", models.ErrValidation, err)
			}
			if parsed.After(time.Now()) {
				post.Status = models.PostStatusScheduled
				post.ScheduledAt = &parsed
			} else {
				post.Status = models.PostStatusDraft
				post.ScheduledAt = nil
				publishImmediately = true
			}
		}
	}

	if err := s.pr.UpdateContent(ctx, post); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("error updating post: %w", err)
	}

	var outcome *transfer.PublishOutcome
	if publishImmediately {
		outcome, err = s.publisher.Publish(ctx, postID)
		if err != nil {
			slog.Info(err.Error())
			outcome = &transfer.PublishOutcome{Success: false, Error: err.Error()}
		}
	}

	updated, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, outcome, err
	}
	return updated, outcome, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	if post.Status == models.PostStatusPublishing {
		return fmt.Errorf("%w: post %d is being published", models.ErrConflict, postID)
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return err
		}
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}

func (s *postService) PublishNow(ctx context.Context, userID, postID int64) (*transfer.PublishOutcome, error) {
	if _, err := s.ownedPost(ctx, userID, postID); err != nil {
		return nil, err
	}

	return s.publisher.Publish(ctx, postID)
}

func (s *postService) ownedPost(ctx context.Context, userID, postID int64) (*models.Post, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user is not valid", models.ErrValidation)
	}
	if postID == 0 {
		return nil, fmt.Errorf("%w: post id is not valid", models.ErrValidation)
	}

	isOwner, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isOwner {
		return nil, fmt.Errorf("%w: post %d", models.ErrNotFound, postID)
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: post %d", models.ErrNotFound, postID)
	}
	return post, nil
}
