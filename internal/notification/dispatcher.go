package notification

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ms-storefront/internal/logger"
)

const (
	TopicNotifications = "storefront.notifications"

	DefaultPublishTimeout = 15 * time.Second
	parkTimeout           = 5 * time.Second
)

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

// Dispatcher is an in-process buffer between request handlers and Kafka.
// Enqueue never blocks the caller. A message that cannot reach the
// notifications topic within the publish timeout is parked on the failed
// topic.
type Dispatcher struct {
	queue          chan Message
	overflow       chan struct{}
	spills         sync.WaitGroup
	publisher      Publisher
	topic          string
	log            *logger.Logger
	publishTimeout time.Duration
	spilled        atomic.Int64
	dropped        atomic.Int64
}

func NewDispatcher(publisher Publisher, bufferSize int, log *logger.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Dispatcher{
		queue:          make(chan Message, bufferSize),
		overflow:       make(chan struct{}, bufferSize),
		publisher:      publisher,
		topic:          TopicNotifications,
		log:            log,
		publishTimeout: DefaultPublishTimeout,
	}
}

// WithPublishTimeout bounds how long one message may retry before it is
// parked.
func (d *Dispatcher) WithPublishTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.publishTimeout = timeout
	}
	return d
}

// Enqueue hands msg to the background publisher. When the buffer is full the
// message is published from its own goroutine instead; only when those are
// saturated as well is it dropped with an ERROR entry.
func (d *Dispatcher) Enqueue(msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	default:
	}

	select {
	case d.overflow <- struct{}{}:
		d.spilled.Add(1)
		d.log.Warn("NOTIFY", fmt.Sprintf("queue full, publishing %s for order %s directly", msg.Category, msg.OrderNumber))
		d.spills.Add(1)
		go func() {
			defer d.spills.Done()
			defer func() { <-d.overflow }()
			d.publish(context.Background(), msg)
		}()
		return true
	default:
		d.dropped.Add(1)
		d.log.Error("NOTIFY", fmt.Sprintf("queue full, dropped %s for %s (order %s)", msg.Category, msg.Recipient, msg.OrderNumber))
		return false
	}
}

// Spilled counts messages that bypassed the full buffer.
func (d *Dispatcher) Spilled() int64 {
	return d.spilled.Load()
}

// Dropped counts messages that reached neither topic.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run publishes queued messages until ctx is cancelled, then flushes what is
// left with a short grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.LogProcess("DISPATCHER", "notification dispatcher started")
	for {
		select {
		case msg := <-d.queue:
			d.publish(ctx, msg)
		case <-ctx.Done():
			d.flush()
			d.spills.Wait()
			return nil
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case msg := <-d.queue:
			d.publish(ctx, msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = d.publishTimeout

	op := func() error {
		return d.publisher.PublishJSON(ctx, d.topic, msg.OrderNumber, msg)
	}
	notify := func(err error, wait time.Duration) {
		d.log.Warn("NOTIFY", fmt.Sprintf("publish %s retry in %s: %v", msg.ID, wait, err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		d.log.Error("NOTIFY", fmt.Sprintf("publish %s for %s failed: %v", msg.Category, msg.OrderNumber, err))
		d.park(msg)
		return
	}
	d.log.LogKafka("PUBLISHED", d.topic, fmt.Sprintf("%s %s", msg.Category, msg.ID))
}

// park makes one attempt to put msg on the failed topic for later replay.
func (d *Dispatcher) park(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), parkTimeout)
	defer cancel()
	if err := d.publisher.PublishJSON(ctx, TopicNotificationsFailed, msg.OrderNumber, msg); err != nil {
		d.dropped.Add(1)
		d.log.Error("NOTIFY", fmt.Sprintf("park %s on %s: %v", msg.ID, TopicNotificationsFailed, err))
		return
	}
	d.log.LogKafka("PARKED", TopicNotificationsFailed, fmt.Sprintf("%s %s", msg.Category, msg.ID))
}
