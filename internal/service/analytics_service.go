package service

import (
	"context"
	"fmt"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/adapter"
	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/repository"
	"github.com/conscious-collective/relay-social/pkg/utils"
)

type AnalyticsService interface {
	Engagement(ctx context.Context, userID, postID int64) (*models.EngagementSnapshot, error)
}

type analyticsService struct {
	cfg      *config.Config
	pr       repository.PostRepository
	ac       repository.SocialAccountRepository
	er       repository.EngagementRepository
	registry *adapter.Registry
}

func NewAnalyticsService(
	cfg *config.Config,
	pr repository.PostRepository,
	ac repository.SocialAccountRepository,
	er repository.EngagementRepository,
	registry *adapter.Registry) AnalyticsService {
	return &analyticsService{
		cfg:      cfg,
		pr:       pr,
		ac:       ac,
		er:       er,
		registry: registry,
	}
}

// Engagement fetches fresh counters from the platform and records them,
// falling back to the last stored snapshot when the platform call fails.
func (s *analyticsService) Engagement(ctx context.Context, userID, postID int64) (*models.EngagementSnapshot, error) {
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

	if post.Status != models.PostStatusPublished || post.PlatformPostID == "" {
		return nil, fmt.Errorf("%w: post %d is not published", models.ErrValidation, postID)
	}

	account, err := s.ac.GetByID(ctx, post.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: social account %d", models.ErrNotFound, post.AccountID)
	}

	platformAdapter, ok := s.registry.Lookup(account.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedPlatform, account.Platform)
	}

	accessToken, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decrypt access token", models.ErrInvalidCredential)
	}

	snapshot, err := platformAdapter.FetchEngagement(ctx, adapter.Credential{
		AccountID:   account.AccountID,
		AccessToken: accessToken,
	}, post.PlatformPostID)
	if err != nil {
		stored, storedErr := s.er.GetByPostID(ctx, postID)
		if storedErr == nil && stored != nil {
			return stored, nil
		}
		return nil, fmt.Errorf("failed to fetch engagement: %w", err)
	}

	snapshot.PostID = postID
	if err := s.er.Upsert(ctx, snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}
