package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/repository"
	"github.com/conscious-collective/relay-social/internal/transfer"
	"github.com/conscious-collective/relay-social/pkg/utils"
	"github.com/google/uuid"
)

// DeliveryQueue schedules one delivery attempt for asynchronous
// execution with bounded retry.
type DeliveryQueue interface {
	EnqueueDelivery(deliveryID int64) error
}

// maxDeliveryAttempts bounds retries per delivery: the first attempt
// plus four backed-off retries, after which the row stays failed.
const maxDeliveryAttempts = 5

type WebhookService interface {
	CreateSubscription(ctx context.Context, userID int64, sc *transfer.SubscriptionCreation) (*transfer.SubscriptionCreated, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error)
	ToggleSubscription(ctx context.Context, userID, subscriptionID int64, enabled bool) error
	RemoveSubscription(ctx context.Context, userID, subscriptionID int64) error
	ListDeliveries(ctx context.Context, userID, subscriptionID int64) ([]*models.WebhookDelivery, error)
	Notify(ctx context.Context, userID int64, event string, data interface{})
	Deliver(ctx context.Context, deliveryID int64) error
}

type webhookService struct {
	cfg    config.Config
	ws     repository.WebhookSubscriptionRepository
	wd     repository.WebhookDeliveryRepository
	queue  DeliveryQueue
	client *http.Client
}

func NewWebhookService(
	cfg config.Config,
	ws repository.WebhookSubscriptionRepository,
	wd repository.WebhookDeliveryRepository,
	queue DeliveryQueue) WebhookService {
	return &webhookService{
		cfg:   cfg,
		ws:    ws,
		wd:    wd,
		queue: queue,
		client: &http.Client{
			Timeout: cfg.WebhookTimeout,
		},
	}
}

func (s *webhookService) CreateSubscription(ctx context.Context, userID int64, sc *transfer.SubscriptionCreation) (*transfer.SubscriptionCreated, error) {
	if sc == nil || sc.URL == "" {
		return nil, fmt.Errorf("%w: url is required", models.ErrValidation)
	}
	if len(sc.Events) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", models.ErrValidation)
	}
	for _, event := range sc.Events {
		if !knownEvent(event) {
			return nil, fmt.Errorf("%w: unknown event %q", models.ErrValidation, event)
		}
	}

	sub := &models.WebhookSubscription{
		UserID:  userID,
		URL:     sc.URL,
		Events:  sc.Events,
		Secret:  uuid.NewString(),
		Enabled: true,
	}

	id, err := s.ws.Create(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("error saving webhook subscription: %w", err)
	}

	// The secret appears in this response and nowhere else, ever.
	return &transfer.SubscriptionCreated{
		ID:      id,
		URL:     sub.URL,
		Events:  sub.Events,
		Secret:  sub.Secret,
		Enabled: true,
	}, nil
}

func knownEvent(event string) bool {
	for _, known := range models.KnownEvents {
		if event == known {
			return true
		}
	}
	return false
}

func (s *webhookService) ListSubscriptions(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error) {
	subs, err := s.ws.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing webhook subscriptions: %w", err)
	}
	return subs, nil
}

func (s *webhookService) ToggleSubscription(ctx context.Context, userID, subscriptionID int64, enabled bool) error {
	isOwner, err := s.ws.CheckByUserID(ctx, subscriptionID, userID)
	if err != nil {
		return err
	}
	if !isOwner {
		return fmt.Errorf("%w: webhook subscription %d", models.ErrNotFound, subscriptionID)
	}

	return s.ws.SetEnabled(ctx, subscriptionID, enabled)
}

func (s *webhookService) RemoveSubscription(ctx context.Context, userID, subscriptionID int64) error {
	isOwner, err := s.ws.CheckByUserID(ctx, subscriptionID, userID)
	if err != nil {
		return err
	}
	if !isOwner {
		return fmt.Errorf("%w: webhook subscription %d", models.ErrNotFound, subscriptionID)
	}

	return s.ws.Remove(ctx, subscriptionID)
}

func (s *webhookService) ListDeliveries(ctx context.Context, userID, subscriptionID int64) ([]*models.WebhookDelivery, error) {
	isOwner, err := s.ws.CheckByUserID(ctx, subscriptionID, userID)
	if err != nil {
		return nil, err
	}
	if !isOwner {
		return nil, fmt.Errorf("%w: webhook subscription %d", models.ErrNotFound, subscriptionID)
	}

	return s.wd.ListBySubscription(ctx, subscriptionID, 50)
}

// Notify fans an event out to every enabled matching subscription: one
// pending delivery row plus one queued attempt per subscription. Errors
// are logged and swallowed; event emission never fails the caller.
func (s *webhookService) Notify(ctx context.Context, userID int64, event string, data interface{}) {
	subs, err := s.ws.ListEnabledByEvent(ctx, userID, event)
	if err != nil {
		slog.Error("failed to resolve webhook subscriptions", "event", event, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := transfer.WebhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to serialize webhook payload", "event", event, "error", err)
		return
	}

	for _, sub := range subs {
		deliveryID, err := s.wd.Create(ctx, &models.WebhookDelivery{
			SubscriptionID: sub.ID,
			Event:          event,
			Payload:        body,
		})
		if err != nil {
			slog.Error("failed to record webhook delivery", "subscription_id", sub.ID, "error", err)
			continue
		}

		if err := s.queue.EnqueueDelivery(deliveryID); err != nil {
			slog.Error("failed to enqueue webhook delivery", "delivery_id", deliveryID, "error", err)
		}
	}
}

// Deliver makes exactly one delivery attempt and appends the outcome to
// the delivery record. A non-nil return asks the queue to retry; nil
// means done, whether delivered or terminally failed.
func (s *webhookService) Deliver(ctx context.Context, deliveryID int64) error {
	delivery, err := s.wd.GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	if delivery == nil {
		slog.Info("webhook delivery no longer exists", "delivery_id", deliveryID)
		return nil
	}
	if delivery.Status == models.DeliveryStatusDelivered {
		return nil
	}
	if delivery.Attempts >= maxDeliveryAttempts {
		return nil
	}

	sub, err := s.ws.GetByID(ctx, delivery.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || !sub.Enabled {
		// Subscription removed or switched off between fan-out and
		// attempt; record and stop retrying.
		return s.wd.RecordAttempt(ctx, deliveryID, false, "subscription disabled or removed")
	}

	if err := s.attemptDelivery(ctx, sub, delivery); err != nil {
		if recordErr := s.wd.RecordAttempt(ctx, deliveryID, false, err.Error()); recordErr != nil {
			slog.Error("failed to record delivery attempt", "delivery_id", deliveryID, "error", recordErr)
		}
		return err
	}

	return s.wd.RecordAttempt(ctx, deliveryID, true, "")
}

func (s *webhookService) attemptDelivery(ctx context.Context, sub *models.WebhookSubscription, delivery *models.WebhookDelivery) error {
	signature := utils.SignPayload(delivery.Payload, sub.Secret)

	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Signature", signature)
	req.Header.Set("X-Relay-Event", delivery.Event)
	req.Header.Set("User-Agent", "Relay-Social-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(snippet))
	}

	return nil
}

var _ Notifier = (*webhookService)(nil)
