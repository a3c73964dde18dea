package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"paie/internal/attendance"
	"paie/internal/queue"
)

// Worker consumes queued jobs and sends them with bounded retries.
type Worker struct {
	queue      queue.Queue
	sender     attendance.Deliverer
	maxTries   uint
	newBackOff func() backoff.BackOff
	now        func() time.Time
	sent       func(Job, error)
}

// NewWorker creates a worker. maxRetries below one means a single attempt.
func NewWorker(q queue.Queue, sender attendance.Deliverer, maxRetries int) *Worker {
	tries := uint(1)
	if maxRetries > 0 {
		tries = uint(maxRetries) + 1
	}
	return &Worker{
		queue:    q,
		sender:   sender,
		maxTries: tries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
		now:  time.Now,
		sent: func(Job, error) {},
	}
}

// OnResult registers a callback invoked after every job.
func (w *Worker) OnResult(fn func(Job, error)) {
	if fn != nil {
		w.sent = fn
	}
}

// Run consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}
	log := zerolog.Ctx(ctx)
	log.Info().Msg("delivery worker started")
	for msg := range messages {
		if msg.Type != MessageType {
			log.Debug().Str("type", msg.Type).Msg("skipping unknown message")
			continue
		}
		var job Job
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			log.Warn().Err(err).Msg("dropping malformed delivery job")
			continue
		}
		err := w.Handle(ctx, job)
		w.sent(job, err)
	}
	log.Info().Msg("delivery worker stopped")
	return nil
}

// Handle sends one job. Jobs whose code already expired are dropped.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	log := zerolog.Ctx(ctx).With().Str("job_id", job.ID).Logger()
	if w.now().After(job.ExpiresAt()) {
		log.Warn().Time("expired_at", job.ExpiresAt()).Msg("dropping delivery for expired code")
		return attendance.ErrExpired
	}
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := w.sender.Deliver(ctx, job.Delivery); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("delivery attempt failed")
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(w.newBackOff()), backoff.WithMaxTries(w.maxTries))
	if err != nil {
		log.Error().Err(err).Int("attempts", attempt).Msg("delivery failed")
		return err
	}
	log.Info().Int("attempts", attempt).Msg("code delivered")
	return nil
}
