package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finsync/internal/events"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config describes the exchange and, for consumers, the queue and the event
// types bound to it.
type Config struct {
	URL      string
	Exchange string
	Queue    string
	// Bindings are the routing keys (event types) the queue receives.
	Bindings []string
}

type publishFunc func(ctx context.Context, routingKey string, msg amqp091.Publishing) error

// Client publishes and consumes domain events on a durable direct exchange.
// Publishing is guarded by a circuit breaker so a dead broker costs one fast
// failure per event instead of a blocked caller.
type Client struct {
	cfg    Config
	logger *slog.Logger
	cb     *gobreaker.CircuitBreaker

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	publish publishFunc

	reconnecting atomic.Bool
}

var _ events.Publisher = (*Client)(nil)

// NewClient dials the broker and declares the topology.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	c := newClient(cfg, logger)
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{cfg: cfg, logger: logger.With("exchange", cfg.Exchange)}
	c.publish = c.channelPublish
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "amqp-publish",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("AMQP circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.cfg); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(channel *amqp091.Channel, cfg Config) error {
	err := channel.ExchangeDeclare(
		cfg.Exchange, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if cfg.Queue == "" {
		return nil
	}

	_, err = channel.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	for _, key := range cfg.Bindings {
		if err := channel.QueueBind(cfg.Queue, key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue to %s: %w", key, err)
		}
	}
	return nil
}

func (c *Client) channelPublish(ctx context.Context, routingKey string, msg amqp091.Publishing) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil || channel.IsClosed() {
		return amqp091.ErrClosed
	}
	return channel.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, msg)
}

// Publish sends ev with its type as routing key.
func (c *Client) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := publishing(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.publish(ctx, ev.Type, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("publish %s: %w", ev.Type, ErrCircuitOpen)
	}
	if err != nil {
		if isConnectionError(err) {
			go c.reconnect()
		}
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	c.logger.DebugContext(ctx, "Published event",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"record_id", ev.RecordID)
	return nil
}

func (c *Client) reconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnecting.Store(false)

	c.mu.Lock()
	stale := c.conn
	c.mu.Unlock()
	if stale != nil && !stale.IsClosed() {
		return
	}
	if err := c.connect(); err != nil {
		c.logger.Warn("AMQP reconnect failed", "error", err)
	}
}

// Consume delivers every event of the configured queue to handler until ctx
// ends. Lost connections are re-established with exponential backoff.
func (c *Client) Consume(ctx context.Context, handler events.Handler) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handler, func() { attempt = 0 })
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "AMQP consumer disconnected, reconnecting",
			"error", err,
			"attempt", attempt,
			"backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.connect(); err != nil {
			c.logger.WarnContext(ctx, "AMQP reconnect failed", "error", err)
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler events.Handler, connected func()) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil || channel.IsClosed() {
		return amqp091.ErrClosed
	}

	msgs, err := channel.Consume(
		c.cfg.Queue, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()
	c.logger.InfoContext(ctx, "Started consuming events", "queue", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed: %w", amqp091.ErrClosed)
			}
			dispatch(ctx, c.logger, delivery.Body, delivery, handler)
		}
	}
}

// Close releases the channel and the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
