package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"paie/internal/attendance"
	"paie/internal/queue"
)

// MessageType marks queue messages carrying a Job.
const MessageType = "otc.delivery"

// Job is a queued delivery.
type Job struct {
	ID         string              `json:"id"`
	Delivery   attendance.Delivery `json:"delivery"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// ExpiresAt is when the carried code stops being useful.
func (j Job) ExpiresAt() time.Time {
	return j.EnqueuedAt.Add(time.Duration(j.Delivery.ExpiryMinutes) * time.Minute)
}

// Queued hands deliveries to the worker through a queue. A publish failure
// is the delivery failure seen by the caller.
type Queued struct {
	q   queue.Queue
	now func() time.Time
}

// NewQueued creates a queue-backed deliverer.
func NewQueued(q queue.Queue) *Queued {
	return &Queued{q: q, now: time.Now}
}

// Deliver publishes a delivery job.
func (d *Queued) Deliver(ctx context.Context, del attendance.Delivery) error {
	body, err := json.Marshal(Job{ID: uuid.NewString(), Delivery: del, EnqueuedAt: d.now().UTC()})
	if err != nil {
		return err
	}
	return d.q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}
