package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
)

// EngagementRepository stores the latest externally-fetched engagement
// counters per post. Engagement is the only post-adjacent data that may
// still change after a post is published.
type EngagementRepository interface {
	Upsert(ctx context.Context, snapshot *models.EngagementSnapshot) error
	GetByPostID(ctx context.Context, postID int64) (*models.EngagementSnapshot, error)
}

type engagementRepository struct {
	db *sql.DB
}

func NewEngagementRepository(db *sql.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

func (r *engagementRepository) Upsert(ctx context.Context, snapshot *models.EngagementSnapshot) error {
	query := `
		INSERT INTO post_engagement (post_id, impressions, reach, likes, comments, shares, saves, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (post_id) DO UPDATE
		SET impressions = $2, reach = $3, likes = $4, comments = $5, shares = $6, saves = $7, fetched_at = $8
	`
	_, err := r.db.ExecContext(ctx, query, snapshot.PostID, snapshot.Impressions,
		snapshot.Reach, snapshot.Likes, snapshot.Comments, snapshot.Shares,
		snapshot.Saves, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *engagementRepository) GetByPostID(ctx context.Context, postID int64) (*models.EngagementSnapshot, error) {
	query := `SELECT post_id, impressions, reach, likes, comments, shares, saves, fetched_at FROM post_engagement WHERE post_id = $1`

	var s models.EngagementSnapshot
	err := r.db.QueryRowContext(ctx, query, postID).Scan(&s.PostID, &s.Impressions,
		&s.Reach, &s.Likes, &s.Comments, &s.Shares, &s.Saves, &s.FetchedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &s, nil
}
