package queue

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Deliverer makes one webhook delivery attempt. A non-nil error asks
// asynq to retry the task.
type Deliverer interface {
	Deliver(ctx context.Context, deliveryID int64) error
}

type Worker struct {
	deliverer Deliverer
}

func NewWorker(deliverer Deliverer) *Worker {
	return &Worker{deliverer: deliverer}
}

func (w *Worker) HandleDeliverWebhookTask(ctx context.Context, task *asynq.Task) error {
	var payload DeliverWebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return w.deliverer.Deliver(ctx, payload.DeliveryID)
}
