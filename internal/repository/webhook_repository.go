package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/lib/pq"
)

type WebhookSubscriptionRepository interface {
	Create(ctx context.Context, sub *models.WebhookSubscription) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.WebhookSubscription, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error)
	ListEnabledByEvent(ctx context.Context, userID int64, event string) ([]*models.WebhookSubscription, error)
	CheckByUserID(ctx context.Context, subscriptionID, userID int64) (bool, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Remove(ctx context.Context, id int64) error
}

type webhookSubscriptionRepository struct {
	db *sql.DB
}

func NewWebhookSubscriptionRepository(db *sql.DB) WebhookSubscriptionRepository {
	return &webhookSubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, url, events, secret, enabled, created_at, updated_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.URL, pq.Array(&sub.Events),
		&sub.Secret, &sub.Enabled, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *webhookSubscriptionRepository) Create(ctx context.Context, sub *models.WebhookSubscription) (int64, error) {
	query := `
		INSERT INTO webhook_subscriptions (user_id, url, events, secret, enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, sub.UserID, sub.URL,
		pq.Array(sub.Events), sub.Secret, sub.Enabled).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *webhookSubscriptionRepository) GetByID(ctx context.Context, id int64) (*models.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sub, nil
}

func (r *webhookSubscriptionRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var subs []*models.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *webhookSubscriptionRepository) ListEnabledByEvent(ctx context.Context, userID int64, event string) ([]*models.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE user_id = $1 AND enabled = TRUE AND $2 = ANY(events)`

	rows, err := r.db.QueryContext(ctx, query, userID, event)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var subs []*models.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *webhookSubscriptionRepository) CheckByUserID(ctx context.Context, subscriptionID, userID int64) (bool, error) {
	query := "SELECT 1 FROM webhook_subscriptions WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, subscriptionID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

func (r *webhookSubscriptionRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	query := `UPDATE webhook_subscriptions SET enabled = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, enabled, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookSubscriptionRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM webhook_subscriptions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
