package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue events are published to.
const DefaultQueue = "auth.events"

const (
	publishBuffer = 256
	redialBackoff = 5 * time.Second
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url, queue string, timeout time.Duration) (*amqp.Connection, channel, error)

// AMQPPublisher publishes events as persistent JSON messages to a durable queue
// through the default exchange.
//
// Record only enqueues. One worker goroutine owns the connection and publishes
// in order; when the buffer is full the event is dropped and logged. After a
// failed dial the worker drops events until the backoff has elapsed.
type AMQPPublisher struct {
	url     string
	queue   string
	log     *slog.Logger
	dial    dialFunc
	backoff time.Duration
	now     func() time.Time

	events    chan Event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the worker once started.
	conn    *amqp.Connection
	ch      channel
	retryAt time.Time
}

// NewAMQPPublisher dials url, declares queue (DefaultQueue when blank) and
// starts the publishing worker.
func NewAMQPPublisher(url, queue string, log *slog.Logger) (*AMQPPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("audit: empty amqp url")
	}

	p := newAMQPPublisher(url, queue, log, dialAMQP, publishBuffer)
	conn, ch, err := p.dial(p.url, p.queue, recordTimeout)
	if err != nil {
		return nil, err
	}
	p.conn, p.ch = conn, ch
	p.start()
	return p, nil
}

func newAMQPPublisher(url, queue string, log *slog.Logger, dial dialFunc, buffer int) *AMQPPublisher {
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = slog.Default()
	}
	return &AMQPPublisher{
		url:     url,
		queue:   queue,
		log:     log,
		dial:    dial,
		backoff: redialBackoff,
		now:     time.Now,
		events:  make(chan Event, buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func dialAMQP(url, queue string, timeout time.Duration) (*amqp.Connection, channel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) start() {
	go p.run()
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.events:
			p.publish(ev)
		case <-p.quit:
			for {
				select {
				case ev := <-p.events:
					p.publish(ev)
				default:
					p.reset()
					return
				}
			}
		}
	}
}

// Record queues ev for publishing and never blocks on the broker.
func (p *AMQPPublisher) Record(_ context.Context, ev Event) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	select {
	case <-p.quit:
		return
	default:
	}

	select {
	case p.events <- ev:
	default:
		p.log.Warn("auth.audit.publish.drop", "action", ev.Action, "reason", "buffer_full")
	}
}

func (p *AMQPPublisher) publish(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("auth.audit.publish.fail", "err", err, "action", ev.Action)
		return
	}

	if p.ch == nil {
		if p.now().Before(p.retryAt) {
			p.log.Warn("auth.audit.publish.drop", "action", ev.Action, "reason", "broker_unavailable")
			return
		}
		conn, ch, err := p.dial(p.url, p.queue, recordTimeout)
		if err != nil {
			p.retryAt = p.now().Add(p.backoff)
			p.log.Error("auth.audit.publish.fail", "err", err, "action", ev.Action, "stage", "dial")
			return
		}
		p.conn, p.ch = conn, ch
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.At,
			Type:         ev.Action,
			Body:         body,
		},
	)
	if err != nil {
		p.log.Error("auth.audit.publish.fail", "err", err, "action", ev.Action)
		p.reset()
	}
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close publishes what is already queued, then releases the channel and
// connection.
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() { close(p.quit) })
	<-p.done
	return nil
}
