package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"storyteller/internal/domain"
)

// TypeRead is the message type of read events. Story events are typed
// "story." followed by the action.
const TypeRead = "story.read"

func storyType(action domain.StoryAction) string {
	return "story." + string(action)
}

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger.With("component", "publisher"),
	}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

type StoryMessage struct {
	Action    domain.StoryAction `json:"action"`
	Story     domain.Story       `json:"story"`
	Timestamp time.Time          `json:"timestamp"`
}

type ReadMessage struct {
	Entry     domain.ReadLogEntry `json:"entry"`
	Timestamp time.Time           `json:"timestamp"`
}

// PublishStory announces that a story was created, updated or deleted.
// Deleted stories only carry their id.
func (r *RabbitMQ) PublishStory(ctx context.Context, story *domain.Story, action domain.StoryAction) error {
	msg := StoryMessage{
		Action:    action,
		Story:     *story,
		Timestamp: time.Now().UTC(),
	}
	if err := r.publish(ctx, storyType(action), msg); err != nil {
		return err
	}

	r.logger.Debug("published story",
		"story_id", story.ID,
		"action", action,
	)
	return nil
}

func (r *RabbitMQ) PublishRead(ctx context.Context, entry *domain.ReadLogEntry) error {
	msg := ReadMessage{
		Entry:     *entry,
		Timestamp: time.Now().UTC(),
	}
	if err := r.publish(ctx, TypeRead, msg); err != nil {
		return err
	}

	r.logger.Debug("published read",
		"story_id", entry.StoryID,
		"source", entry.Source,
	)
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, kind string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         kind,
			MessageId:    uuid.NewString(),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s message: %w", kind, err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
