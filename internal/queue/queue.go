package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskTypeDeliverWebhook = "webhook:deliver"

type DeliverWebhookPayload struct {
	DeliveryID int64 `json:"delivery_id"`
}

// Client enqueues webhook delivery attempts. MaxRetry(4) plus the first
// run gives each delivery five attempts with asynq's exponential
// backoff before the task is dead and the row stays failed.
type Client struct {
	asynqClient *asynq.Client
}

func NewClient(asynqClient *asynq.Client) *Client {
	return &Client{asynqClient: asynqClient}
}

func (c *Client) EnqueueDelivery(deliveryID int64) error {
	taskPayload, err := json.Marshal(DeliverWebhookPayload{DeliveryID: deliveryID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeDeliverWebhook, taskPayload)

	_, err = c.asynqClient.Enqueue(task, asynq.MaxRetry(4), asynq.Timeout(time.Minute))
	return err
}
