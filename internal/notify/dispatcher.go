package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/config"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/messaging"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/metrics"
)

// Dispatcher submits notification messages to the outbound queue.
// Submission is fire and forget: failures are logged and counted but
// never surfaced to the caller, so a gateway outage cannot block a
// stage transition or an ingestion run.
type Dispatcher struct {
	sender  messaging.QueueSender
	metrics *metrics.Collector
	timeout time.Duration

	linkBaseURL string
}

func NewDispatcher(sender messaging.QueueSender, collector *metrics.Collector, cfg config.NotifyConfig) *Dispatcher {
	timeout := time.Duration(cfg.SendTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sender:      sender,
		metrics:     collector,
		timeout:     timeout,
		linkBaseURL: cfg.DeliveryConfirmBaseURL,
	}
}

// LinkBaseURL exposes the configured delivery confirmation base so
// callers can render rider messages.
func (d *Dispatcher) LinkBaseURL() string {
	return d.linkBaseURL
}

// Submit enqueues the message asynchronously and returns immediately.
func (d *Dispatcher) Submit(msg Message) {
	if d == nil || d.sender == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sender.SendMessage(ctx, msg); err != nil {
			d.metrics.Increment(metrics.CounterNotificationErrors)
			log.Error().Err(err).
				Str("trigger", msg.Trigger).
				Str("order", msg.OrderName).
				Msg("failed to submit notification")
			return
		}

		d.metrics.Increment(metrics.CounterNotificationsSent)
		log.Debug().
			Str("trigger", msg.Trigger).
			Str("order", msg.OrderName).
			Msg("notification submitted")
	}()
}
