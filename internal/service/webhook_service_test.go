package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/models"
	"github.com/conscious-collective/relay-social/internal/transfer"
	"github.com/conscious-collective/relay-social/pkg/utils"
)

type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	seq  int64
	subs map[int64]*models.WebhookSubscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[int64]*models.WebhookSubscription)}
}

func (r *fakeSubscriptionRepo) Create(ctx context.Context, sub *models.WebhookSubscription) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *sub
	cp.ID = r.seq
	r.subs[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeSubscriptionRepo) GetByID(ctx context.Context, id int64) (*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeSubscriptionRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, sub := range r.subs {
		if sub.UserID == userID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSubscriptionRepo) ListEnabledByEvent(ctx context.Context, userID int64, event string) ([]*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, sub := range r.subs {
		if sub.UserID != userID || !sub.Enabled {
			continue
		}
		for _, e := range sub.Events {
			if e == event {
				cp := *sub
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeSubscriptionRepo) CheckByUserID(ctx context.Context, subscriptionID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[subscriptionID]
	return ok && sub.UserID == userID, nil
}

func (r *fakeSubscriptionRepo) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[id].Enabled = enabled
	return nil
}

func (r *fakeSubscriptionRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	return nil
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	seq        int64
	deliveries map[int64]*models.WebhookDelivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{deliveries: make(map[int64]*models.WebhookDelivery)}
}

func (r *fakeDeliveryRepo) Create(ctx context.Context, delivery *models.WebhookDelivery) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *delivery
	cp.ID = r.seq
	cp.Status = models.DeliveryStatusPending
	cp.CreatedAt = time.Now()
	r.deliveries[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeDeliveryRepo) GetByID(ctx context.Context, id int64) (*models.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delivery, ok := r.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *delivery
	return &cp, nil
}

func (r *fakeDeliveryRepo) RecordAttempt(ctx context.Context, id int64, delivered bool, attemptError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delivery := r.deliveries[id]
	delivery.Attempts++
	now := time.Now()
	delivery.LastAttemptAt = &now
	if delivered {
		delivery.Status = models.DeliveryStatusDelivered
		delivery.DeliveredAt = &now
		delivery.LastError = ""
	} else {
		delivery.Status = models.DeliveryStatusFailed
		delivery.LastError = attemptError
	}
	return nil
}

func (r *fakeDeliveryRepo) ListBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]*models.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, delivery := range r.deliveries {
		if delivery.SubscriptionID == subscriptionID {
			cp := *delivery
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []int64
}

func (q *fakeQueue) EnqueueDelivery(deliveryID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, deliveryID)
	return nil
}

func newWebhookFixture() (WebhookService, *fakeSubscriptionRepo, *fakeDeliveryRepo, *fakeQueue) {
	subs := newFakeSubscriptionRepo()
	deliveries := newFakeDeliveryRepo()
	queue := &fakeQueue{}
	svc := NewWebhookService(config.Config{WebhookTimeout: 5 * time.Second}, subs, deliveries, queue)
	return svc, subs, deliveries, queue
}

func TestCreateSubscriptionReturnsSecretOnce(t *testing.T) {
	svc, _, _, _ := newWebhookFixture()

	created, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    "https://example.com/hook",
		Events: []string{models.EventPostPublished, models.EventPostFailed},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Secret)
	assert.True(t, created.Enabled)

	// Listing must never expose the secret again.
	subs, err := svc.ListSubscriptions(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	serialized, err := json.Marshal(subs[0])
	require.NoError(t, err)
	assert.NotContains(t, string(serialized), created.Secret)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	svc, _, _, _ := newWebhookFixture()

	_, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		Events: []string{models.EventPostPublished},
	})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL: "https://example.com/hook",
	})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    "https://example.com/hook",
		Events: []string{"post.liked"},
	})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestNotifyFansOutToMatchingSubscriptions(t *testing.T) {
	svc, _, deliveries, queue := newWebhookFixture()

	matching, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    "https://example.com/hook1",
		Events: []string{models.EventPostPublished},
	})
	require.NoError(t, err)

	_, err = svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    "https://example.com/hook2",
		Events: []string{models.EventAccountExpired},
	})
	require.NoError(t, err)

	svc.Notify(context.Background(), 7, models.EventPostPublished, transfer.PostEvent{PostID: 1})

	require.Len(t, queue.enqueued, 1)

	delivery, err := deliveries.GetByID(context.Background(), queue.enqueued[0])
	require.NoError(t, err)
	assert.Equal(t, matching.ID, delivery.SubscriptionID)
	assert.Equal(t, models.EventPostPublished, delivery.Event)
	assert.Equal(t, models.DeliveryStatusPending, delivery.Status)

	var payload transfer.WebhookPayload
	require.NoError(t, json.Unmarshal(delivery.Payload, &payload))
	assert.Equal(t, models.EventPostPublished, payload.Event)
	_, err = time.Parse(time.RFC3339, payload.Timestamp)
	assert.NoError(t, err)
}

func TestNotifySkipsDisabledSubscriptions(t *testing.T) {
	svc, _, _, queue := newWebhookFixture()

	created, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    "https://example.com/hook",
		Events: []string{models.EventPostPublished},
	})
	require.NoError(t, err)
	require.NoError(t, svc.ToggleSubscription(context.Background(), 7, created.ID, false))

	svc.Notify(context.Background(), 7, models.EventPostPublished, transfer.PostEvent{PostID: 1})

	assert.Empty(t, queue.enqueued)
}

func TestDeliverSignsPayload(t *testing.T) {
	var received []byte
	var signature, eventHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		signature = r.Header.Get("X-Relay-Signature")
		eventHeader = r.Header.Get("X-Relay-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, _, deliveries, queue := newWebhookFixture()

	created, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    srv.URL,
		Events: []string{models.EventPostPublished},
	})
	require.NoError(t, err)

	svc.Notify(context.Background(), 7, models.EventPostPublished, transfer.PostEvent{PostID: 42})
	require.Len(t, queue.enqueued, 1)

	require.NoError(t, svc.Deliver(context.Background(), queue.enqueued[0]))

	assert.Equal(t, models.EventPostPublished, eventHeader)
	assert.True(t, utils.VerifySignature(received, signature, created.Secret))

	// A flipped byte must break verification.
	tampered := append([]byte{}, received...)
	tampered[0] ^= 0xff
	assert.False(t, utils.VerifySignature(tampered, signature, created.Secret))

	delivery, _ := deliveries.GetByID(context.Background(), queue.enqueued[0])
	assert.Equal(t, models.DeliveryStatusDelivered, delivery.Status)
	assert.Equal(t, 1, delivery.Attempts)
	assert.NotNil(t, delivery.DeliveredAt)
}

func TestDeliverRecordsFailureAndAsksForRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, _, deliveries, queue := newWebhookFixture()

	_, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    srv.URL,
		Events: []string{models.EventPostFailed},
	})
	require.NoError(t, err)

	svc.Notify(context.Background(), 7, models.EventPostFailed, transfer.PostEvent{PostID: 1})
	require.Len(t, queue.enqueued, 1)

	err = svc.Deliver(context.Background(), queue.enqueued[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	delivery, _ := deliveries.GetByID(context.Background(), queue.enqueued[0])
	assert.Equal(t, models.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, 1, delivery.Attempts)
	assert.Contains(t, delivery.LastError, "500")
}

func TestDeliverStopsAfterMaxAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	svc, _, deliveries, queue := newWebhookFixture()

	_, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    srv.URL,
		Events: []string{models.EventPostFailed},
	})
	require.NoError(t, err)

	svc.Notify(context.Background(), 7, models.EventPostFailed, transfer.PostEvent{PostID: 1})
	require.Len(t, queue.enqueued, 1)
	deliveryID := queue.enqueued[0]

	for i := 0; i < maxDeliveryAttempts; i++ {
		require.Error(t, svc.Deliver(context.Background(), deliveryID))
	}

	// Past the cap, Deliver is a no-op that reports done to the queue.
	require.NoError(t, svc.Deliver(context.Background(), deliveryID))
	assert.Equal(t, maxDeliveryAttempts, calls)

	delivery, _ := deliveries.GetByID(context.Background(), deliveryID)
	assert.Equal(t, models.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, maxDeliveryAttempts, delivery.Attempts)
}

func TestDeliverSkipsDisabledSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("disabled subscription must not be called")
	}))
	defer srv.Close()

	svc, _, deliveries, queue := newWebhookFixture()

	created, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    srv.URL,
		Events: []string{models.EventPostPublished},
	})
	require.NoError(t, err)

	svc.Notify(context.Background(), 7, models.EventPostPublished, transfer.PostEvent{PostID: 1})
	require.Len(t, queue.enqueued, 1)

	require.NoError(t, svc.ToggleSubscription(context.Background(), 7, created.ID, false))
	require.NoError(t, svc.Deliver(context.Background(), queue.enqueued[0]))

	delivery, _ := deliveries.GetByID(context.Background(), queue.enqueued[0])
	assert.Equal(t, models.DeliveryStatusFailed, delivery.Status)
	assert.Contains(t, delivery.LastError, "disabled")
}

func TestSubscriptionOwnershipScoped(t *testing.T) {
	svc, _, _, _ := newWebhookFixture()

	created, err := svc.CreateSubscription(context.Background(), 7, &transfer.SubscriptionCreation{
		URL:    "https://example.com/hook",
		Events: []string{models.EventPostPublished},
	})
	require.NoError(t, err)

	err = svc.ToggleSubscription(context.Background(), 99, created.ID, false)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	err = svc.RemoveSubscription(context.Background(), 99, created.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = svc.ListDeliveries(context.Background(), 99, created.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
