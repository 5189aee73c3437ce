package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"insight/internal/log"
)

// ErrReject tells Consume to drop a message without requeueing it. Wrap it
// for messages that can never succeed, such as a sheet that fails validation.
var ErrReject = errors.New("reject message")

// Circuit breaker states for publishing.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

type binding struct {
	queue      string
	routingKey string
}

type Client struct {
	url          string
	exchangeName string
	logger       *log.Logger

	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	bindings []binding

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient connects to the broker and declares the durable direct exchange.
func NewClient(url, exchangeName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.NewDefault()
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
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
		"direct",       // type
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

	c.conn, c.channel = conn, channel
	for _, b := range c.bindings {
		if err := c.bindLocked(b); err != nil {
			return err
		}
	}
	return nil
}

// Declare creates a durable queue bound to routingKey on the exchange. The
// binding is replayed after a reconnect.
func (c *Client) Declare(queue, routingKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := binding{queue: queue, routingKey: routingKey}
	if err := c.bindLocked(b); err != nil {
		return err
	}
	c.bindings = append(c.bindings, b)
	return nil
}

func (c *Client) bindLocked(b binding) error {
	if c.channel == nil {
		return errors.New("amqp channel not open")
	}
	_, err := c.channel.QueueDeclare(
		b.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", b.queue, err)
	}
	if err := c.channel.QueueBind(b.queue, b.routingKey, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", b.queue, err)
	}
	return nil
}

func (c *Client) reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		if c.channel != nil {
			c.channel.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
		c.channel, c.conn = nil, nil
		err := c.connectLocked()
		c.mu.Unlock()
		if err == nil {
			c.logger.InfoContext(ctx, "Reconnected to AMQP broker", "attempt", attempt+1)
			return nil
		}

		wait := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "AMQP reconnect failed", log.FieldError, err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Publish sends msg as a persistent JSON message under its routing key.
// After maxFailures consecutive failures publishing is refused until
// openTimeout has passed.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return errors.New("amqp publish refused: circuit breaker is open")
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = c.publish(ctx, msg.RoutingKey(), body)
	if err != nil && isConnectionError(err) {
		if rerr := c.reconnectOnce(); rerr == nil {
			err = c.publish(ctx, msg.RoutingKey(), body)
		}
	}
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published message",
		log.FieldRoutingKey, msg.RoutingKey(),
		"exchange", c.exchangeName)
	return nil
}

func (c *Client) reconnectOnce() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.channel, c.conn = nil, nil
	return c.connectLocked()
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return errors.New("connection closed")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// PublishRefreshRequest asks a worker to refresh the dataset.
func (c *Client) PublishRefreshRequest(ctx context.Context, requestID, reason string) error {
	return c.Publish(ctx, NewRefreshRequestMessage(requestID, reason))
}

// ConsumeRefreshRequests blocks handling refresh requests from queue until ctx is done.
func (c *Client) ConsumeRefreshRequests(ctx context.Context, queue string, handler func(context.Context, *RefreshRequestMessage) error) error {
	return c.consume(ctx, queue, func(ctx context.Context, body []byte) error {
		msg, err := RefreshRequestMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: decode refresh request: %v", ErrReject, err)
		}
		return handler(ctx, msg)
	})
}

// ConsumeDatasetArchived blocks handling archive announcements from queue until ctx is done.
func (c *Client) ConsumeDatasetArchived(ctx context.Context, queue string, handler func(context.Context, *DatasetArchivedMessage) error) error {
	return c.consume(ctx, queue, func(ctx context.Context, body []byte) error {
		msg, err := DatasetArchivedMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: decode dataset archived: %v", ErrReject, err)
		}
		return handler(ctx, msg)
	})
}

func (c *Client) consume(ctx context.Context, queue string, handle func(context.Context, []byte) error) error {
	logger := c.logger.With(log.FieldQueue, queue)
	for {
		c.mu.Lock()
		ch := c.channel
		c.mu.Unlock()
		if ch == nil {
			return errors.New("amqp channel not open")
		}

		msgs, err := ch.Consume(
			queue, // queue
			"",    // consumer
			false, // auto-ack (we want manual ack)
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("start consuming %s: %w", queue, err)
		}
		logger.InfoContext(ctx, "Started consuming messages")

		closed := false
		for !closed {
			select {
			case <-ctx.Done():
				logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
				return ctx.Err()
			case delivery, ok := <-msgs:
				if !ok {
					closed = true
					break
				}
				handleDelivery(ctx, logger, delivery, handle)
			}
		}

		logger.WarnContext(ctx, "Delivery channel closed, reconnecting")
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

// handleDelivery acks on success. Errors wrapping ErrReject, and failures of
// a message that was already redelivered once, are dropped; any other error
// requeues the message.
func handleDelivery(ctx context.Context, logger *log.Logger, d amqp091.Delivery, handle func(context.Context, []byte) error) {
	err := handle(ctx, d.Body)
	switch {
	case err == nil:
		d.Ack(false)
	case errors.Is(err, ErrReject):
		logger.ErrorContext(ctx, "Rejecting message", log.FieldError, err)
		d.Nack(false, false)
	case d.Redelivered:
		logger.ErrorContext(ctx, "Message failed after redelivery, dropping", log.FieldError, err)
		d.Nack(false, false)
	default:
		logger.WarnContext(ctx, "Message failed, requeueing", log.FieldError, err)
		d.Nack(false, true)
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
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
	for _, s := range []string{"connection refused", "connection closed", "eof", "broken pipe", "closed network connection", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

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
