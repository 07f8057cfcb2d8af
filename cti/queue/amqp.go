package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// MessageProcessor is a type for functions that can process raw messages.
type MessageProcessor func(msg string)

// Route says where AMQP events travel. By default they are broadcast through
// the fanout Exchange and every listener gets its own queue. Setting Queue
// switches to work-queue mode: one durable queue whose consumers compete, so
// each event reaches exactly one of them.
type Route struct {
	Exchange string
	Queue    string
}

// WorkQueue reports whether r uses a shared durable queue.
func (r Route) WorkQueue() bool { return r.Queue != "" }

func (r Route) String() string {
	if r.WorkQueue() {
		return "queue:" + r.Queue
	}
	return "exchange:" + r.Exchange
}

// topology is the part of *amqp.Channel used to declare routes.
type topology interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// AMQPPublisher publishes events along a Route over one long-lived
// connection, redialing when the connection has dropped.
type AMQPPublisher struct {
	url   string
	route Route

	exchange string
	key      string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher creates a publisher for route at url. The connection is
// opened on first publish.
func NewAMQPPublisher(url string, route Route) *AMQPPublisher {
	return &AMQPPublisher{url: url, route: route}
}

// Publish sends event along the route.
func (p *AMQPPublisher) Publish(ctx context.Context, event ScanEvent) error {
	body, err := event.Encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.ensureChannel(); err != nil {
		return err
	}

	err = p.ch.Publish(
		p.exchange, // exchange
		p.key,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.ID,
			Timestamp:    event.Timestamp,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish to %s: %w", p.route, err)
	}

	slog.Debug("Sent scan event", "route", p.route.String(), "event", event.ID)
	return nil
}

func (p *AMQPPublisher) ensureChannel() error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil {
		return nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	exchange, key, err := declarePublish(ch, p.route)
	if err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	p.exchange, p.key = exchange, key
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close closes the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

func declareQueue(ch topology, qName string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		qName, // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return q, fmt.Errorf("declare queue '%s': %w", qName, err)
	}
	return q, nil
}

func declareExchange(ch topology, name string) error {
	err := ch.ExchangeDeclare(
		name,     // name
		"fanout", // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange '%s': %w", name, err)
	}
	return nil
}

// declarePublish declares route and returns the exchange and routing key to
// publish with.
func declarePublish(ch topology, route Route) (string, string, error) {
	if route.WorkQueue() {
		if _, err := declareQueue(ch, route.Queue); err != nil {
			return "", "", err
		}
		return "", route.Queue, nil
	}
	if err := declareExchange(ch, route.Exchange); err != nil {
		return "", "", err
	}
	return route.Exchange, "", nil
}

// declareConsume declares route and returns the queue to consume. In fanout
// mode that is a fresh exclusive queue bound to the exchange, removed by the
// broker when the listener disconnects.
func declareConsume(ch topology, route Route) (string, error) {
	if route.WorkQueue() {
		q, err := declareQueue(ch, route.Queue)
		return q.Name, err
	}
	if err := declareExchange(ch, route.Exchange); err != nil {
		return "", err
	}
	q, err := ch.QueueDeclare(
		"",    // name, assigned by the broker
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare listener queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", route.Exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind '%s' to exchange '%s': %w", q.Name, route.Exchange, err)
	}
	return q.Name, nil
}

// ListenEvents consumes scan events from route until ctx is cancelled.
// Undecodable messages are logged and dropped.
func ListenEvents(ctx context.Context, url string, route Route, handler EventHandler) {
	ListenWithRetry(ctx, url, route, func(msg string) {
		event, err := Decode([]byte(msg))
		if err != nil {
			slog.Warn("Dropping undecodable message", "route", route.String(), "error", err)
			return
		}
		handler(event)
	})
}

// ListenWithRetry listens on a RabbitMQ route with automatic reconnection.
// It retries the connection with exponential backoff (1s → 30s cap) and
// reconnects if the broker drops the connection. The listener stops cleanly
// when ctx is cancelled.
func ListenWithRetry(ctx context.Context, url string, route Route, messageProcessor MessageProcessor) {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		if ctx.Err() != nil {
			slog.Info("Listener shutting down (context cancelled)", "route", route.String())
			return
		}

		err := listenOnce(ctx, url, route, messageProcessor)
		if ctx.Err() != nil {
			slog.Info("Listener stopped", "route", route.String())
			return
		}

		if err != nil {
			slog.Warn("Listener error, retrying", "route", route.String(), "error", err, "backoff", backoff)
		} else {
			// Channel closed without error (e.g. broker restart)
			slog.Info("Listener disconnected, reconnecting", "route", route.String())
			backoff = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	return min(current*2, limit)
}

// listenOnce consumes from route until the connection drops or ctx is
// cancelled. Messages are processed in order on the listener goroutine so
// history receives them in delivery order.
func listenOnce(ctx context.Context, url string, route Route, messageProcessor MessageProcessor) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	qName, err := declareConsume(ch, route)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		qName, // queue
		"",    // consumer
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("register consumer on '%s': %w", qName, err)
	}

	slog.Info("Connected to broker", "route", route.String(), "queue", qName)

	connCloseCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-connCloseCh:
			if amqpErr != nil {
				return fmt.Errorf("connection closed: %s", amqpErr.Error())
			}
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			messageProcessor(string(msg.Body))
		}
	}
}
