package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// amqpChannel is the part of *amqp091.Channel the publisher needs.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher publishes events as persistent JSON messages on a durable
// direct exchange.
type AMQPPublisher struct {
	channel    amqpChannel
	conn       io.Closer
	exchange   string
	routingKey string
	log        zerolog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange, routingKey string, log zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p, err := NewAMQPPublisher(channel, conn, exchange, routingKey, log)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	return p, nil
}

// NewAMQPPublisher wraps an open channel. conn may be nil.
func NewAMQPPublisher(channel amqpChannel, conn io.Closer, exchange, routingKey string, log zerolog.Logger) (*AMQPPublisher, error) {
	err := channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPPublisher{
		channel:    channel,
		conn:       conn,
		exchange:   exchange,
		routingKey: routingKey,
		log:        log,
	}, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    e.ID,
			Type:         string(e.Type),
			Timestamp:    e.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}

	p.log.Debug().
		Str("event_id", e.ID).
		Str("event_type", string(e.Type)).
		Str("exchange", p.exchange).
		Msg("Published event to AMQP")
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
