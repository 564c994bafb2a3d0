package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/repository"
)

// File types the supported platforms accept. Sniffed from content, the
// client-supplied extension is never trusted.
var allowedTypes = map[string]string{
	"jpg": "image/jpeg",
	"png": "image/png",
	"mp4": "video/mp4",
	"mov": "video/quicktime",
}

type MediaService interface {
	Upload(ctx context.Context, userID int64, file *multipart.FileHeader) (*models.MediaAsset, error)
	List(ctx context.Context, userID int64) ([]*models.MediaAsset, error)
}

type mediaService struct {
	cfg *config.Config
	ma  repository.MediaAssetRepository
	r2  *R2Service
}

func NewMediaService(cfg *config.Config, ma repository.MediaAssetRepository, r2 *R2Service) MediaService {
	return &mediaService{
		cfg: cfg,
		ma:  ma,
		r2:  r2,
	}
}

func (s *mediaService) Upload(ctx context.Context, userID int64, file *multipart.FileHeader) (*models.MediaAsset, error) {
	if file == nil {
		return nil, fmt.Errorf("%w: no file provided", models.ErrValidation)
	}

	fileContent, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer fileContent.Close()

	fileBytes, err := io.ReadAll(fileContent)
	if err != nil {
		return nil, fmt.Errorf("error reading file content: %w", err)
	}

	fileType, err := filetype.Match(fileBytes)
	if err != nil || fileType == types.Unknown {
		return nil, fmt.Errorf("%w: unsupported file type", models.ErrValidation)
	}
	contentType, ok := allowedTypes[fileType.Extension]
	if !ok {
		return nil, fmt.Errorf("%w: file type %s is not allowed", models.ErrValidation, fileType.Extension)
	}

	key, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	key = key + "." + fileType.Extension

	if err := s.r2.UploadToR2(ctx, key, fileBytes, contentType); err != nil {
		return nil, fmt.Errorf("error uploading file: %w", err)
	}

	asset := &models.MediaAsset{
		UserID:   userID,
		FileName: file.Filename,
		FileType: contentType,
		FileSize: int64(len(fileBytes)),
		FileURL:  fmt.Sprintf("%s/%s", s.cfg.R2.PublicURL, key),
	}

	id, err := s.ma.Create(ctx, asset)
	if err != nil {
		return nil, err
	}
	asset.ID = id

	return asset, nil
}

func (s *mediaService) List(ctx context.Context, userID int64) ([]*models.MediaAsset, error) {
	assets, err := s.ma.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing media assets: %w", err)
	}
	return assets, nil
}
