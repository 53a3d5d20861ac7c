package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	notificationsExchange = "notifications"
	emailQueue            = "notifications.email.q"
	smsQueue              = "notifications.sms.q"
)

// AMQPSender publishes notification jobs to a durable topic exchange drained
// by the delivery gateways.
type AMQPSender struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

type notificationJob struct {
	MessageID   string            `json:"message_id"`
	Recipient   string            `json:"recipient"`
	TemplateKey string            `json:"template_key"`
	Variables   map[string]string `json:"variables"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
}

// NewAMQPSender dials the broker and declares the notification topology.
func NewAMQPSender(url string, logger *slog.Logger) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	s := &AMQPSender{conn: conn, ch: ch, logger: logger}
	if err := s.declare(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *AMQPSender) declare() error {
	if err := s.ch.ExchangeDeclare(notificationsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	for queue, key := range map[string]string{emailQueue: "notify.email", smsQueue: "notify.sms"} {
		if _, err := s.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := s.ch.QueueBind(queue, key, notificationsExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// Send publishes the notification persistently and reports the message id.
func (s *AMQPSender) Send(ctx context.Context, recipient, templateKey string, variables map[string]string) (*Result, error) {
	messageID := uuid.NewString()
	body, err := json.Marshal(notificationJob{
		MessageID:   messageID,
		Recipient:   recipient,
		TemplateKey: templateKey,
		Variables:   variables,
		EnqueuedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	err = s.ch.PublishWithContext(ctx, notificationsExchange, routingKey(recipient), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return &Result{Success: false, Reason: err.Error()}, nil
	}
	return &Result{Success: true, ProviderMessageID: messageID}, nil
}

// Close releases broker resources.
func (s *AMQPSender) Close() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func routingKey(recipient string) string {
	if strings.Contains(recipient, "@") {
		return "notify.email"
	}
	return "notify.sms"
}
