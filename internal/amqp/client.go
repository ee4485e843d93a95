package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Client wraps one connection to the tally change exchange. The exchange is
// a fanout: every board replica sees every change, while the mirror worker
// binds its own durable queue for at-least-once processing.
type Client struct {
	url          string
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
}

func NewClient(url, exchangeName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

// PublishTallyChanged publishes a change announcement for one increment.
func (c *Client) PublishTallyChanged(ctx context.Context, msg *TallyChangedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		"",             // routing key ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published tally change",
		"day", msg.Day,
		"category", msg.Category,
		"version", msg.Version,
		"exchange", c.exchangeName)

	return nil
}

// ConsumeBoardUpdates feeds change messages to a board replica. Each caller
// gets its own exclusive auto-delete queue, so every replica observes every
// change. Failed handlers drop the message: the next change re-syncs the day.
func (c *Client) ConsumeBoardUpdates(ctx context.Context, handler func(*TallyChangedMessage) error) error {
	return c.consumeLoop(ctx, "", false, handler)
}

// ConsumeMirrorQueue feeds change messages to the mirror worker through a
// durable named queue with manual ack and requeue on handler failure.
func (c *Client) ConsumeMirrorQueue(ctx context.Context, queueName string, handler func(*TallyChangedMessage) error) error {
	return c.consumeLoop(ctx, queueName, true, handler)
}

func (c *Client) consumeLoop(ctx context.Context, queueName string, requeue bool, handler func(*TallyChangedMessage) error) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeSession(ctx, queueName, requeue, handler)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		delay := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP consume session lost, reconnecting",
			"error", err, "attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err := c.reconnect(); err != nil {
			slog.ErrorContext(ctx, "AMQP reconnect failed", "error", err, "attempt", attempt)
		} else {
			attempt = -1 // fresh session, reset backoff
		}
	}
}

func (c *Client) consumeSession(ctx context.Context, queueName string, requeue bool, handler func(*TallyChangedMessage) error) error {
	durable := queueName != ""
	q, err := c.channel.QueueDeclare(
		queueName, // empty name lets the broker generate one
		durable,   // durable
		!durable,  // delete when unused
		!durable,  // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, "", c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := c.channel.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack (we want manual ack)
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming tally changes", "queue", q.Name, "exchange", c.exchangeName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return nil
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := TallyChangedMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle tally change",
					"error", err,
					"day", msg.Day,
					"category", msg.Category)
				delivery.Nack(false, requeue)
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) reconnect() error {
	c.closeQuietly()
	return c.connect()
}

func (c *Client) closeQuietly() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Second << uint(attempt)
	if attempt >= 5 || delay > 30*time.Second {
		return 30 * time.Second
	}
	return delay
}

// isConnectionError classifies failures worth a redial rather than a bail.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
		"channel/connection is not open",
		"message channel closed",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
