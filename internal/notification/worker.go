package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"ms-storefront/internal/logger"
)

const TopicNotificationsFailed = "storefront.notifications.failed"

// Worker delivers messages consumed from the notifications topic with a
// bounded number of attempts. Messages that still fail are parked on the
// failed topic.
type Worker struct {
	sender       Sender
	deadLetters  Publisher
	log          *logger.Logger
	maxAttempts  int
	initialDelay time.Duration
}

func NewWorker(sender Sender, deadLetters Publisher, maxAttempts int, log *logger.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{
		sender:       sender,
		deadLetters:  deadLetters,
		log:          log,
		maxAttempts:  maxAttempts,
		initialDelay: time.Second,
	}
}

// HandleMessage is a kafka.Handler.
func (w *Worker) HandleMessage(ctx context.Context, raw kafka.Message) error {
	var msg Message
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		w.log.Error("NOTIFY", fmt.Sprintf("undecodable message at offset %d: %v", raw.Offset, err))
		return nil
	}
	return w.Deliver(ctx, msg)
}

// Deliver sends msg, retrying with exponential backoff.
func (w *Worker) Deliver(ctx context.Context, msg Message) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.initialDelay
	policy.MaxElapsedTime = 0

	op := func() error {
		msg.Attempt++
		return w.sender.Send(ctx, msg)
	}
	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(w.maxAttempts-1)), ctx)
	err := backoff.Retry(op, retries)
	if err == nil {
		w.log.LogNotification("SENT", msg.Recipient, fmt.Sprintf("%s %s after %d attempt(s)", msg.Category, msg.OrderNumber, msg.Attempt))
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg.LastError = err.Error()
	w.log.Error("NOTIFY", fmt.Sprintf("giving up on %s to %s after %d attempts: %v", msg.ID, msg.Recipient, msg.Attempt, err))
	if w.deadLetters != nil {
		if perr := w.deadLetters.PublishJSON(ctx, TopicNotificationsFailed, msg.OrderNumber, msg); perr != nil {
			w.log.Error("NOTIFY", fmt.Sprintf("park %s on %s: %v", msg.ID, TopicNotificationsFailed, perr))
		}
	}
	return err
}
