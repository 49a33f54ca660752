package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/iliyamo/ppv-access/internal/queue"
)

// Publisher delivers audit events.  Publishing is best effort: callers log
// failures and never fail a request because of them.  Implementations must
// not block on the broker.
type Publisher interface {
	Publish(ctx context.Context, ev q.AccessEvent) error
}

// NopPublisher drops every event.  It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, q.AccessEvent) error { return nil }

// ErrPublisherBusy is returned when the outbound buffer is full and the
// event was dropped.
var ErrPublisherBusy = errors.New("audit publisher busy")

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("audit publisher closed")

// AMQPPublisher publishes audit events to the access.events queue as
// persistent JSON messages.  Publish only enqueues; one goroutine owns the
// broker connection, so a slow or silent broker never holds up a request.
// The connection is opened lazily and reopened after a failure, with dial
// attempts spaced by retryDelay while the broker is down.
type AMQPPublisher struct {
	url        string
	timeout    time.Duration
	retryDelay time.Duration
	log        *zap.Logger

	events  chan q.AccessEvent
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// owned by run
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// NewAMQPPublisher starts a publisher for the broker at url.  buffer bounds
// the events waiting to be sent; timeout bounds each dial and publish.
func NewAMQPPublisher(url string, buffer int, timeout time.Duration, log *zap.Logger) *AMQPPublisher {
	if buffer < 1 {
		buffer = 1
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	p := &AMQPPublisher{
		url:        url,
		timeout:    timeout,
		retryDelay: 5 * time.Second,
		log:        log.Named("publisher"),
		events:     make(chan q.AccessEvent, buffer),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues ev without blocking.  A full buffer drops the event.
func (p *AMQPPublisher) Publish(_ context.Context, ev q.AccessEvent) error {
	select {
	case <-p.quit:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrPublisherBusy
	}
}

// Close stops the sender and releases the broker connection.  Events still
// buffered are discarded.
func (p *AMQPPublisher) Close() {
	p.once.Do(func() { close(p.quit) })
	<-p.stopped
}

func (p *AMQPPublisher) run() {
	defer close(p.stopped)
	defer p.closeConn()
	for {
		select {
		case <-p.quit:
			return
		case ev := <-p.events:
			p.send(ev)
		}
	}
}

func (p *AMQPPublisher) send(ev q.AccessEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	ch, err := p.channel()
	if err != nil {
		p.log.Debug("audit event dropped", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err = ch.PublishWithContext(ctx,
		"",                  // default exchange
		q.AccessEventsQueue, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    time.Now().UTC(),
			Type:         ev.Type,
			Body:         body,
		})
	if err != nil {
		p.log.Warn("publish failed", zap.String("type", ev.Type), zap.Error(err))
		p.closeConn()
	}
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeConn()
	if time.Now().Before(p.nextDial) {
		return nil, errors.New("rabbitmq unavailable")
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:      amqp.DefaultDial(p.timeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		p.nextDial = time.Now().Add(p.retryDelay)
		p.log.Warn("rabbitmq unavailable", zap.Error(err), zap.Duration("retry_in", p.retryDelay))
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.nextDial = time.Now().Add(p.retryDelay)
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.AccessEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		p.nextDial = time.Now().Add(p.retryDelay)
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) closeConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// emit fills the envelope fields and publishes ev, logging failures.
func emit(ctx context.Context, pub Publisher, log *zap.Logger, now time.Time, ev q.AccessEvent) {
	if pub == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.OccurredAt = now.UTC().Format(time.RFC3339)
	if err := pub.Publish(ctx, ev); err != nil {
		log.Debug("audit event dropped", zap.String("type", ev.Type), zap.Error(err))
	}
}
