package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/config"
)

// QueueSender sends messages to a Service Bus queue
type QueueSender interface {
	SendMessage(ctx context.Context, body interface{}) error
	Close() error
}

// MessageHandler processes one received queue message. A nil return
// completes the message; an error abandons it for redelivery.
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage) error

// ServiceBus wraps the Azure Service Bus client for the order events
// queue (inbound) and the notifications queue (outbound).
type ServiceBus struct {
	client *azservicebus.Client
}

// queueSender implements QueueSender
type queueSender struct {
	sender    *azservicebus.Sender
	queueName string
	source    string
}

// NewServiceBus creates a new Service Bus wrapper
func NewServiceBus(cfg config.AzureConfig) (*ServiceBus, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	return &ServiceBus{client: client}, nil
}

// NewSender creates a sender for a queue
func (s *ServiceBus) NewSender(queueName, source string) (QueueSender, error) {
	sender, err := s.client.NewSender(queueName, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create sender for queue %s", queueName)
	}

	return &queueSender{
		sender:    sender,
		queueName: queueName,
		source:    source,
	}, nil
}

// SendMessage marshals the body and sends it to the queue
func (q *queueSender) SendMessage(ctx context.Context, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": q.source,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	return q.sender.SendMessage(ctx, msg, nil)
}

// Close closes the sender
func (q *queueSender) Close() error {
	if q.sender != nil {
		return q.sender.Close(context.Background())
	}
	return nil
}

// ProcessMessages receives from a queue in a loop until the context is
// cancelled, handing each message to the handler. Handled messages are
// completed; handler errors abandon the message for redelivery.
func (s *ServiceBus) ProcessMessages(ctx context.Context, queueName string, handler MessageHandler) error {
	receiver, err := s.client.NewReceiverForQueue(queueName, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create receiver for queue %s", queueName)
	}
	defer func() {
		_ = receiver.Close(context.Background())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("queue", queueName).Msg("Failed to receive messages, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, message := range messages {
			if err := handler(ctx, message); err != nil {
				log.Error().Err(err).Str("queue", queueName).
					Str("message_id", message.MessageID).
					Msg("Message handler failed, abandoning message")
				if abandonErr := receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Msg("Failed to abandon message")
				}
				continue
			}
			if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
				log.Error().Err(err).Msg("Failed to complete message")
			}
		}
	}
}

// Close closes the underlying client
func (s *ServiceBus) Close() error {
	if s.client != nil {
		return s.client.Close(context.Background())
	}
	return nil
}
