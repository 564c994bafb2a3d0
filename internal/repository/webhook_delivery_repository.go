package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/conscious-collective/relay-social/internal/models"
)

type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *models.WebhookDelivery) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.WebhookDelivery, error)
	RecordAttempt(ctx context.Context, id int64, delivered bool, attemptError string) error
	ListBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]*models.WebhookDelivery, error)
}

type webhookDeliveryRepository struct {
	db *sql.DB
}

func NewWebhookDeliveryRepository(db *sql.DB) WebhookDeliveryRepository {
	return &webhookDeliveryRepository{db: db}
}

const deliveryColumns = `id, subscription_id, event, payload, status, attempts, last_error, last_attempt_at, delivered_at, created_at`

func scanDelivery(row interface{ Scan(...interface{}) error }) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	var lastError sql.NullString

	err := row.Scan(&d.ID, &d.SubscriptionID, &d.Event, &d.Payload, &d.Status,
		&d.Attempts, &lastError, &d.LastAttemptAt, &d.DeliveredAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.LastError = lastError.String
	return &d, nil
}

func (r *webhookDeliveryRepository) Create(ctx context.Context, delivery *models.WebhookDelivery) (int64, error) {
	query := `
		INSERT INTO webhook_deliveries (subscription_id, event, payload, status, attempts)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, delivery.SubscriptionID, delivery.Event,
		delivery.Payload, models.DeliveryStatusPending).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *webhookDeliveryRepository) GetByID(ctx context.Context, id int64) (*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`

	d, err := scanDelivery(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return d, nil
}

// RecordAttempt appends one attempt outcome. The payload snapshot and the
// prior attempt history are never rewritten.
func (r *webhookDeliveryRepository) RecordAttempt(ctx context.Context, id int64, delivered bool, attemptError string) error {
	now := time.Now()

	if delivered {
		query := `
			UPDATE webhook_deliveries
			SET status = $1, attempts = attempts + 1, last_error = NULL, last_attempt_at = $2, delivered_at = $2
			WHERE id = $3
		`
		_, err := r.db.ExecContext(ctx, query, models.DeliveryStatusDelivered, now, id)
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		return nil
	}

	query := `
		UPDATE webhook_deliveries
		SET status = $1, attempts = attempts + 1, last_error = $2, last_attempt_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.DeliveryStatusFailed, attemptError, now, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *webhookDeliveryRepository) ListBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE subscription_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, subscriptionID, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
