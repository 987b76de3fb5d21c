package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes price events to a RabbitMQ exchange.
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	service  string
	logger   *zap.Logger
}

// ConnectRabbit dials url and opens a channel. An empty exchange publishes
// through the default exchange with the subject as queue name.
func ConnectRabbit(url, exchange, service string, logger *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if exchange != "" {
		if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = channel.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
		}
	}

	return &RabbitPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		service:  service,
		logger:   logger,
	}, nil
}

func (p *RabbitPublisher) Name() string { return "rabbitmq" }

func (p *RabbitPublisher) PublishPriceUpdated(ctx context.Context, ev PriceUpdated) error {
	env, err := NewEnvelope(p.service, ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("Failed to marshal price event", zap.Error(err))
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,          // exchange
		SubjectPriceUpdated, // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.ID.String(),
			CorrelationId: env.CorrelationID.String(),
			Type:          env.EventType,
			AppId:         p.service,
			Timestamp:     env.Timestamp,
			Body:          body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish price event",
			zap.String("game", string(ev.Game)),
			zap.String("item_key", ev.ItemKey),
			zap.Error(err))
		return err
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
