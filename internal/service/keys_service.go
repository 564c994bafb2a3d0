package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/repository"
	"github.com/conscious-collective/relay-social/pkg/utils"
)

const maxKeysPerUser = 5

type ApiKeyService interface {
	Create(ctx context.Context, userID int64) (string, error)
	List(ctx context.Context, userID int64) ([]*models.ApiKey, error)
	GetUserID(ctx context.Context, apiKey string) (int64, error)
	RemoveAPIKey(ctx context.Context, userID, keyID int64) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
	}
}

func (s *apiKeyService) Create(ctx context.Context, userID int64) (string, error) {
	keys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}

	if len(keys) >= maxKeysPerUser {
		return "", fmt.Errorf("%w: only %d API keys can be created", models.ErrValidation, maxKeysPerUser)
	}

	key, err := utils.GenerateAPIKey()
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("error generating API key")
	}

	apiKey := &models.ApiKey{
		UserID: userID,
		ApiKey: key,
	}

	_, err = s.k.Create(ctx, apiKey)
	if err != nil {
		return "", fmt.Errorf("error saving API key")
	}
	return key, nil
}

func (s *apiKeyService) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	userID, found, err := s.k.LookupUserID(ctx, apiKey)
	if err != nil {
		return 0, err
	}

	if !found {
		return 0, fmt.Errorf("%w: api key", models.ErrNotFound)
	}

	return userID, nil
}

func (s *apiKeyService) List(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting API keys")
	}
	return apiKeys, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, userID, keyID int64) error {
	if userID == 0 {
		return fmt.Errorf("%w: user is not valid", models.ErrValidation)
	}
	if keyID == 0 {
		return fmt.Errorf("%w: key id is not valid", models.ErrValidation)
	}

	isValid, err := s.k.CheckByUserID(ctx, keyID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		return fmt.Errorf("%w: api key %d", models.ErrNotFound, keyID)
	}

	return s.k.Remove(ctx, keyID)
}
