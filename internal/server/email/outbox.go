package email

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/observability"
)

// Outbox delivers messages in the background so request handlers never
// wait on the email provider. Each message is retried once.
type Outbox struct {
	sender     Sender
	queue      chan Message
	workers    int
	retryDelay time.Duration
	log        logging.Logger
	metrics    *observability.Metrics
}

func NewOutbox(sender Sender, workers, queueSize int, log logging.Logger, metrics *observability.Metrics) *Outbox {
	if workers < 1 {
		workers = 1
	}
	return &Outbox{
		sender:     sender,
		queue:      make(chan Message, queueSize),
		workers:    workers,
		retryDelay: 2 * time.Second,
		log:        log.With("module", "email_outbox"),
		metrics:    metrics,
	}
}

// Enqueue queues m without blocking. It reports false when the queue is full
// and the message was dropped.
func (o *Outbox) Enqueue(m Message) bool {
	select {
	case o.queue <- m:
		return true
	default:
		o.log.Warn(context.Background(), "email outbox full, message dropped", "kind", m.Kind, "to", m.To)
		o.metrics.EmailDropped()
		return false
	}
}

// Run delivers messages until ctx is cancelled. Messages still queued at
// that point are logged as undelivered.
func (o *Outbox) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.work(ctx)
		}()
	}
	wg.Wait()

	if n := len(o.queue); n > 0 {
		o.log.Warn(context.Background(), "email outbox stopped with undelivered messages", "count", n)
	}
}

func (o *Outbox) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-o.queue:
			o.deliver(ctx, m)
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, m Message) {
	err := o.sender.Send(ctx, m.To, m.Subject, m.Body)
	if err != nil {
		o.log.Warn(ctx, "email send failed, retrying", "kind", m.Kind, "error", err)

		select {
		case <-ctx.Done():
			o.metrics.EmailSent(m.Kind, ctx.Err())
			return
		case <-time.After(o.retryDelay):
		}
		err = o.sender.Send(ctx, m.To, m.Subject, m.Body)
	}

	o.metrics.EmailSent(m.Kind, err)
	if err != nil {
		o.log.Error(ctx, "email delivery failed", "kind", m.Kind, "error", err)
		return
	}
	o.log.Debug(ctx, "email delivered", "kind", m.Kind)
}
