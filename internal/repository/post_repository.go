package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/lib/pq"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	GetDueScheduled(ctx context.Context, now time.Time) ([]*models.Post, error)
	TransitionStatus(ctx context.Context, postID int64, from []string, to string) (bool, error)
	MarkPublished(ctx context.Context, postID int64, platformPostID string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, postID int64, errorMessage string) error
	UpdateContent(ctx context.Context, post *models.Post) error
	FailStuckPublishing(ctx context.Context, stuckSince time.Time, errorMessage string) ([]int64, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, account_id, caption, media_urls, metadata, status, scheduled_at, published_at, platform_post_id, error_message, created_at, updated_at`

func scanPost(row interface{ Scan(...interface{}) error }) (*models.Post, error) {
	var post models.Post
	var metadata []byte
	var platformPostID, errorMessage sql.NullString

	err := row.Scan(&post.ID, &post.UserID, &post.AccountID, &post.Caption,
		pq.Array(&post.MediaURLs), &metadata, &post.Status, &post.ScheduledAt,
		&post.PublishedAt, &platformPostID, &errorMessage, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	post.PlatformPostID = platformPostID.String
	post.ErrorMessage = errorMessage.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &post.Metadata); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
	}

	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, account_id, caption, media_urls, metadata, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	metadata, err := json.Marshal(post.Metadata)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	var id int64
	args := []interface{}{post.UserID, post.AccountID, post.Caption,
		pq.Array(post.MediaURLs), metadata, post.Status, post.ScheduledAt}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) GetDueScheduled(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_at <= $2 ORDER BY scheduled_at`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// TransitionStatus flips a post to the target status only while its
// current status is in from. The single conditional UPDATE is the
// mutual-exclusion point for concurrent publish attempts; callers losing
// the race see ok == false and must not proceed. The schedule time is
// cleared in the same statement: a post only carries scheduled_at while
// its status is scheduled.
func (r *postRepository) TransitionStatus(ctx context.Context, postID int64, from []string, to string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, scheduled_at = NULL, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
	`
	res, err := r.db.ExecContext(ctx, query, to, time.Now(), postID, pq.Array(from))
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) MarkPublished(ctx context.Context, postID int64, platformPostID string, publishedAt time.Time) error {
	query := `
		UPDATE posts
		SET status = $1, platform_post_id = $2, published_at = $3, error_message = NULL, updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, platformPostID, publishedAt, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkFailed(ctx context.Context, postID int64, errorMessage string) error {
	query := `
		UPDATE posts
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, errorMessage, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// UpdateContent rewrites an editable post. The status guard lives in the
// WHERE clause so an edit that races a publish loses cleanly instead of
// overwriting the published row.
func (r *postRepository) UpdateContent(ctx context.Context, post *models.Post) error {
	query := `
		UPDATE posts
		SET caption = $1, media_urls = $2, metadata = $3, status = $4, scheduled_at = $5, error_message = NULL, updated_at = $6
		WHERE id = $7 AND status NOT IN ($8, $9)
	`

	metadata, err := json.Marshal(post.Metadata)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	res, err := r.db.ExecContext(ctx, query, post.Caption, pq.Array(post.MediaURLs),
		metadata, post.Status, post.ScheduledAt, time.Now(), post.ID,
		models.PostStatusPublishing, models.PostStatusPublished)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: post %d is no longer editable", models.ErrConflict, post.ID)
	}
	return nil
}

// FailStuckPublishing sweeps posts abandoned mid-publish (process died
// between the two platform calls). Returns the ids it moved to failed so
// the caller can emit the matching events.
func (r *postRepository) FailStuckPublishing(ctx context.Context, stuckSince time.Time, errorMessage string) ([]int64, error) {
	query := `
		UPDATE posts
		SET status = $1, error_message = $2, updated_at = $3
		WHERE status = $4 AND updated_at <= $5
		RETURNING id
	`
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusFailed, errorMessage,
		time.Now(), models.PostStatusPublishing, stuckSince)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Remove deletes a post unless a publish attempt holds it. Deleting a
// row mid-publish would orphan the in-flight platform call.
func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1 AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, id, models.PostStatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: post %d is being published", models.ErrConflict, id)
	}
	return nil
}
