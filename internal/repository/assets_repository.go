package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/conscious-collective/relay-social/internal/models"
)

type MediaAssetRepository interface {
	Create(ctx context.Context, asset *models.MediaAsset) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.MediaAsset, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.MediaAsset, error)
}

type mediaAssetRepository struct {
	db *sql.DB
}

func NewMediaAssetRepository(db *sql.DB) MediaAssetRepository {
	return &mediaAssetRepository{db: db}
}

func (r *mediaAssetRepository) Create(ctx context.Context, asset *models.MediaAsset) (int64, error) {
	query := `
		INSERT INTO media_assets (user_id, file_name, file_type, file_size, file_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, asset.UserID, asset.FileName,
		asset.FileType, asset.FileSize, asset.FileURL).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *mediaAssetRepository) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	query := `SELECT id, user_id, file_name, file_type, file_size, file_url, created_at FROM media_assets WHERE id = $1`

	var asset models.MediaAsset
	err := r.db.QueryRowContext(ctx, query, id).Scan(&asset.ID, &asset.UserID,
		&asset.FileName, &asset.FileType, &asset.FileSize, &asset.FileURL, &asset.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &asset, nil
}

func (r *mediaAssetRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.MediaAsset, error) {
	query := `SELECT id, user_id, file_name, file_type, file_size, file_url, created_at FROM media_assets WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	for rows.Next() {
		var asset models.MediaAsset
		err := rows.Scan(&asset.ID, &asset.UserID, &asset.FileName, &asset.FileType,
			&asset.FileSize, &asset.FileURL, &asset.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}
